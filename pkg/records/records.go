// Package records provides the exam record store connectors used by markcast.
//
// A Source retrieves every document of one Kind (marks, students, subjects or
// classes) from an external system and hands the raw JSON documents back.
// Available sources:
//   - PostgresSource: reads one table per kind through pgx
//   - HTTPSource: calls a REST backend and extracts documents with gjson paths
//   - StaticSource: serves documents from an in-memory JSON seed (files, tests)
//
// Sources are intentionally thin. Shaping documents into ExamRecords is done by
// DecodeBatch and FromDocuments so that request bodies and stored documents go
// through the same field validation.
package records

import (
	"context"

	"github.com/tidwall/gjson"
)

// Kind identifies one collection of the record store.
type Kind struct {
	// Name is the short identifier used in logs and errors.
	Name string

	// Collection is the table, collection or path segment holding the documents.
	Collection string

	// NameField is the document field carrying the display name.
	// Empty for kinds without a display name (marks).
	NameField string
}

var (
	Marks    = Kind{Name: "marks", Collection: "marks"}
	Students = Kind{Name: "student", Collection: "students", NameField: "firstName"}
	Subjects = Kind{Name: "subject", Collection: "subjects", NameField: "name"}
	Classes  = Kind{Name: "class", Collection: "class", NameField: "className"}
)

// Kinds lists every kind a Source is expected to serve.
var Kinds = []Kind{Marks, Students, Subjects, Classes}

// ExamRecord is one exam result. Marks is the prediction target; every other
// field is a predictor. Ids are held in canonical string form.
type ExamRecord struct {
	Student  string  `json:"student"`
	Subject  string  `json:"subject"`
	Class    string  `json:"class"`
	ExamType string  `json:"examType"`
	Term     string  `json:"term"`
	Year     int     `json:"year"`
	Marks    float64 `json:"marks"`
}

// Complete reports whether every required field carries a value.
func (r ExamRecord) Complete() bool {
	return r.Student != "" && r.Subject != "" && r.Class != "" && r.ExamType != "" && r.Term != ""
}

// Source is the interface every record store connector implements.
//
// Find is synchronous, respects context cancellation and returns every
// document of the kind. Failures are reported as *DataSourceError.
type Source interface {
	Find(ctx context.Context, kind Kind) ([]gjson.Result, error)

	// Name returns a short identifier such as "postgres" or "http".
	Name() string
}
