// Package analytics summarises a batch of exam records per student and per
// subject. Summaries are derived from the batch alone; nothing accumulates
// across calls.
package analytics

import (
	"cmp"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/markcast/pkg/records"
)

// Resolver maps ids to display names. reference.Set implements it.
type Resolver interface {
	Student(id string) string
	Subject(id string) string
	Class(id string) string
}

// Enriched is an exam record with its display names resolved.
type Enriched struct {
	records.ExamRecord
	StudentName string
	SubjectName string
	ClassName   string
}

// Enrich resolves names for every record.
func Enrich(recs []records.ExamRecord, names Resolver) []Enriched {
	out := make([]Enriched, len(recs))
	for i, r := range recs {
		out[i] = Enriched{
			ExamRecord:  r,
			StudentName: names.Student(r.Student),
			SubjectName: names.Subject(r.Subject),
			ClassName:   names.Class(r.Class),
		}
	}
	return out
}

// StudentProgress is one student's marks ordered by exam year. Marks,
// ExamDates and Subjects are parallel.
type StudentProgress struct {
	Student   string    `json:"student"`
	Marks     []float64 `json:"marks"`
	ExamDates []int     `json:"exam_dates"`
	Subjects  []string  `json:"subjects"`
}

// SubjectSummary is the mean mark for one subject.
type SubjectSummary struct {
	SubjectName string  `json:"subject_name"`
	AvgMarks    float64 `json:"avg_marks"`
}

// Summarize builds per-student progress timelines and per-subject averages.
//
// Groups are keyed by id, not display name, so two students sharing a first
// name stay separate. Groups are emitted in ascending id order. Within a
// student, records are stably sorted by year.
func Summarize(batch []Enriched) ([]StudentProgress, []SubjectSummary) {
	return studentProgress(batch), subjectAnalytics(batch)
}

func studentProgress(batch []Enriched) []StudentProgress {
	groups := groupBy(batch, func(e Enriched) string { return e.Student })

	out := make([]StudentProgress, 0, len(groups))
	for _, g := range groups {
		slices.SortStableFunc(g, func(a, b Enriched) int { return cmp.Compare(a.Year, b.Year) })

		p := StudentProgress{
			Student:   g[0].StudentName,
			Marks:     make([]float64, len(g)),
			ExamDates: make([]int, len(g)),
			Subjects:  make([]string, len(g)),
		}
		for i, e := range g {
			p.Marks[i] = e.Marks
			p.ExamDates[i] = e.Year
			p.Subjects[i] = e.SubjectName
		}
		out = append(out, p)
	}
	return out
}

func subjectAnalytics(batch []Enriched) []SubjectSummary {
	groups := groupBy(batch, func(e Enriched) string { return e.Subject })

	out := make([]SubjectSummary, 0, len(groups))
	for _, g := range groups {
		marks := make([]float64, len(g))
		for i, e := range g {
			marks[i] = e.Marks
		}
		out = append(out, SubjectSummary{
			SubjectName: g[0].SubjectName,
			AvgMarks:    stat.Mean(marks, nil),
		})
	}
	return out
}

// groupBy partitions batch by key, keeping input order inside each group and
// returning groups in ascending key order.
func groupBy(batch []Enriched, key func(Enriched) string) [][]Enriched {
	index := make(map[string]int)
	var keys []string
	var groups [][]Enriched

	for _, e := range batch {
		k := key(e)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			keys = append(keys, k)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return strings.Compare(keys[a], keys[b]) })

	sorted := make([][]Enriched, len(groups))
	for i, j := range order {
		sorted[i] = groups[j]
	}
	return sorted
}
