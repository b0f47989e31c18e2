// Package features turns exam records into numeric vectors for the regressor.
//
// Each vector carries the five categorical fields as integer codes plus the
// year and two temporal features computed per (student, subject) group in
// input order:
//
//	previous_mark  mark of the group's preceding record, 0 for the first
//	trend          marks[i-1] - marks[i-2] within the group, 0 until defined
//
// Grouping follows batch order, not chronology. Callers wanting chronological
// lags sort by year first.
package features

import (
	"log/slog"

	"github.com/HatiCode/markcast/pkg/records"
)

// Columns names the entries of Vector.Values, in order.
var Columns = []string{
	"student",
	"subject",
	"class",
	"examType",
	"term",
	"year",
	"previous_exam_performance",
	"performance_trend",
}

// Vector is the numeric projection of one ExamRecord.
type Vector struct {
	StudentCode  int
	SubjectCode  int
	ClassCode    int
	ExamTypeCode int
	TermCode     int
	Year         int
	PreviousMark float64
	Trend        float64
}

// Values returns the vector laid out as Columns.
func (v Vector) Values() []float64 {
	return []float64{
		float64(v.StudentCode),
		float64(v.SubjectCode),
		float64(v.ClassCode),
		float64(v.ExamTypeCode),
		float64(v.TermCode),
		float64(v.Year),
		v.PreviousMark,
		v.Trend,
	}
}

// Frame is a feature matrix aligned row-for-row with the records kept from
// the input batch.
type Frame struct {
	Records []records.ExamRecord
	Vectors []Vector

	// Dropped counts input records skipped for missing fields.
	Dropped int

	// Unknown counts, per categorical field, values that mapped to
	// UnknownCode. Always empty in training mode.
	Unknown map[string]int
}

// Len returns the number of rows.
func (f Frame) Len() int {
	return len(f.Vectors)
}

// Matrix returns the rows as float slices.
func (f Frame) Matrix() [][]float64 {
	m := make([][]float64, len(f.Vectors))
	for i, v := range f.Vectors {
		m[i] = v.Values()
	}
	return m
}

// Targets returns the observed marks of each row.
func (f Frame) Targets() []float64 {
	y := make([]float64, len(f.Records))
	for i, r := range f.Records {
		y[i] = r.Marks
	}
	return y
}

// UnknownTotal sums Unknown over all fields.
func (f Frame) UnknownTotal() int {
	total := 0
	for _, n := range f.Unknown {
		total += n
	}
	return total
}

// Builder builds feature frames.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger.With("component", "features")}
}

// Fit builds a frame in training mode: a fresh code assignment is fitted over
// the kept records and returned for persistence alongside the model.
func (b *Builder) Fit(recs []records.ExamRecord) (Frame, Encoders) {
	kept, dropped := keepComplete(recs)

	values := make(map[string][]string, len(CategoricalFields))
	for _, r := range kept {
		for _, field := range CategoricalFields {
			values[field] = append(values[field], categoryValue(r, field))
		}
	}

	enc := make(Encoders, len(CategoricalFields))
	for _, field := range CategoricalFields {
		enc[field] = FitEncoder(values[field])
	}

	frame := b.build(kept, enc)
	frame.Dropped = dropped

	b.logger.Debug("fitted features",
		"rows", frame.Len(),
		"dropped", dropped,
		"categories", enc.Sizes(),
	)

	return frame, enc
}

// Transform builds a frame in inference mode using the trained encoders.
// Values unseen at training time encode to UnknownCode. Missing encoders
// yield an *EncodingMismatchError.
func (b *Builder) Transform(recs []records.ExamRecord, enc Encoders) (Frame, error) {
	if err := enc.Validate(); err != nil {
		return Frame{}, err
	}

	kept, dropped := keepComplete(recs)
	frame := b.build(kept, enc)
	frame.Dropped = dropped

	if frame.UnknownTotal() > 0 {
		b.logger.Warn("records contain categories unseen at training time",
			"rows", frame.Len(),
			"unknown", frame.Unknown,
		)
	}

	return frame, nil
}

func (b *Builder) build(kept []records.ExamRecord, enc Encoders) Frame {
	unknown := make(map[string]int)
	code := func(r records.ExamRecord, field string) int {
		c, ok := enc[field].Code(categoryValue(r, field))
		if !ok {
			unknown[field]++
		}
		return c
	}

	prev, trend := lagFeatures(kept)

	vectors := make([]Vector, len(kept))
	for i, r := range kept {
		vectors[i] = Vector{
			StudentCode:  code(r, FieldStudent),
			SubjectCode:  code(r, FieldSubject),
			ClassCode:    code(r, FieldClass),
			ExamTypeCode: code(r, FieldExamType),
			TermCode:     code(r, FieldTerm),
			Year:         r.Year,
			PreviousMark: prev[i],
			Trend:        trend[i],
		}
	}

	return Frame{Records: kept, Vectors: vectors, Unknown: unknown}
}

// lagFeatures computes previous_mark and trend per (student, subject) group.
// Groups key on raw ids so distinct unseen students never share a history.
func lagFeatures(recs []records.ExamRecord) (prev, trend []float64) {
	type key struct{ student, subject string }
	type history struct {
		last, beforeLast float64
		n                int
	}

	prev = make([]float64, len(recs))
	trend = make([]float64, len(recs))
	groups := make(map[key]*history)

	for i, r := range recs {
		k := key{r.Student, r.Subject}
		h, ok := groups[k]
		if !ok {
			h = &history{}
			groups[k] = h
		}

		if h.n >= 1 {
			prev[i] = h.last
		}
		if h.n >= 2 {
			trend[i] = h.last - h.beforeLast
		}

		h.beforeLast, h.last = h.last, r.Marks
		h.n++
	}

	return prev, trend
}

func keepComplete(recs []records.ExamRecord) ([]records.ExamRecord, int) {
	kept := make([]records.ExamRecord, 0, len(recs))
	for _, r := range recs {
		if r.Complete() {
			kept = append(kept, r)
		}
	}
	return kept, len(recs) - len(kept)
}

func categoryValue(r records.ExamRecord, field string) string {
	switch field {
	case FieldStudent:
		return r.Student
	case FieldSubject:
		return r.Subject
	case FieldClass:
		return r.Class
	case FieldExamType:
		return r.ExamType
	case FieldTerm:
		return r.Term
	}
	return ""
}
