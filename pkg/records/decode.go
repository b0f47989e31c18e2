package records

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Batch is the outcome of decoding a list of exam documents. Rejected records
// are dropped from Records by policy; they are kept only for diagnostics.
type Batch struct {
	Records  []ExamRecord
	Rejected []*ValidationError
}

// Dropped returns the number of documents that did not produce a record.
func (b Batch) Dropped() int {
	return len(b.Rejected)
}

// DecodeBatch decodes a request body holding a JSON array of exam objects.
//
// Elements with missing or malformed fields are dropped and reported in
// Batch.Rejected. Only a body that is not a JSON array fails as a whole.
func DecodeBatch(body []byte) (Batch, error) {
	if !gjson.ValidBytes(body) {
		return Batch{}, &ValidationError{Index: -1, Reason: "body is not valid JSON"}
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return Batch{}, &ValidationError{Index: -1, Reason: "body must be a JSON array of exam records"}
	}

	return FromDocuments(root.Array()), nil
}

// FromDocuments converts raw exam documents into records, dropping the ones
// that fail validation.
func FromDocuments(docs []gjson.Result) Batch {
	batch := Batch{Records: make([]ExamRecord, 0, len(docs))}

	for i, doc := range docs {
		rec, verr := decodeRecord(i, doc)
		if verr != nil {
			batch.Rejected = append(batch.Rejected, verr)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	return batch
}

func decodeRecord(i int, doc gjson.Result) (ExamRecord, *ValidationError) {
	if !doc.IsObject() {
		return ExamRecord{}, &ValidationError{Index: i, Reason: "record must be a JSON object"}
	}

	var rec ExamRecord

	ids := []struct {
		field string
		dst   *string
	}{
		{"student", &rec.Student},
		{"subject", &rec.Subject},
		{"class", &rec.Class},
	}
	for _, f := range ids {
		id, ok := CanonicalID(doc.Get(f.field))
		if !ok {
			return ExamRecord{}, fieldError(i, f.field, doc.Get(f.field))
		}
		*f.dst = id
	}

	labels := []struct {
		field string
		dst   *string
	}{
		{"examType", &rec.ExamType},
		{"term", &rec.Term},
	}
	for _, f := range labels {
		v, ok := label(doc.Get(f.field))
		if !ok {
			return ExamRecord{}, fieldError(i, f.field, doc.Get(f.field))
		}
		*f.dst = v
	}

	year, ok := number(doc.Get("year"))
	if !ok || year != math.Trunc(year) || math.Abs(year) > math.MaxInt32 {
		return ExamRecord{}, fieldError(i, "year", doc.Get("year"))
	}
	rec.Year = int(year)

	marks, ok := number(doc.Get("marks"))
	if !ok {
		return ExamRecord{}, fieldError(i, "marks", doc.Get("marks"))
	}
	rec.Marks = marks

	return rec, nil
}

func fieldError(i int, field string, v gjson.Result) *ValidationError {
	reason := "unsupported value " + v.Raw
	if !v.Exists() || v.Type == gjson.Null {
		reason = "missing"
	}
	return &ValidationError{Index: i, Field: field, Reason: reason}
}

// CanonicalID converts an id-like JSON value to the canonical string used for
// joins across sources. Strings are trimmed, integral numbers lose any
// fraction formatting, and Mongo-style {"$oid": "..."} objects are unwrapped.
// It reports false for null, empty, array and other object values.
func CanonicalID(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		return s, s != ""
	case gjson.Number:
		return formatNumber(v), true
	case gjson.True, gjson.False:
		return v.String(), true
	case gjson.JSON:
		if v.IsObject() {
			if oid := v.Get("$oid"); oid.Type == gjson.String {
				return CanonicalID(oid)
			}
		}
	}
	return "", false
}

// DocumentID returns the canonical id of a stored document, read from "_id"
// and falling back to "id".
func DocumentID(doc gjson.Result) (string, bool) {
	if id, ok := CanonicalID(doc.Get("_id")); ok {
		return id, true
	}
	return CanonicalID(doc.Get("id"))
}

func label(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		return s, s != ""
	case gjson.Number:
		return formatNumber(v), true
	}
	return "", false
}

func number(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatNumber(v gjson.Result) string {
	raw := strings.TrimPrefix(v.Raw, "-")
	if raw != "" && strings.Trim(raw, "0123456789") == "" {
		return v.Raw
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}
