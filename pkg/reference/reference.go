// Package reference resolves student, subject and class ids to display names.
//
// Maps are read-only snapshots taken from the record store at load time. They
// may go stale if the store changes afterwards; lookups of unknown ids resolve
// to Unknown instead of failing.
package reference

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/markcast/pkg/records"
)

// Unknown is the display name for ids missing from a Map.
const Unknown = "Unknown"

// Map projects entity ids to display names for one kind.
type Map map[string]string

// Name returns the display name for id, or Unknown.
func (m Map) Name(id string) string {
	if name, ok := m[id]; ok && name != "" {
		return name
	}
	return Unknown
}

// Set bundles the three reference maps used by one request or training run.
type Set struct {
	Students Map
	Subjects Map
	Classes  Map
}

func (s Set) Student(id string) string { return s.Students.Name(id) }
func (s Set) Subject(id string) string { return s.Subjects.Name(id) }
func (s Set) Class(id string) string   { return s.Classes.Name(id) }

// Loader reads reference maps from a record source.
type Loader struct {
	source records.Source
	logger *slog.Logger
}

// NewLoader creates a Loader backed by source.
func NewLoader(source records.Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger}
}

// Load fetches every document of kind and projects id to display name.
//
// Documents without an id are malformed and fail the load with a
// *records.DataSourceError. Documents without a name are kept out of the map
// so lookups fall back to Unknown.
func (l *Loader) Load(ctx context.Context, kind records.Kind) (Map, error) {
	if kind.NameField == "" {
		return nil, fmt.Errorf("reference: kind %q has no display name", kind.Name)
	}

	docs, err := l.source.Find(ctx, kind)
	if err != nil {
		return nil, err
	}

	m := make(Map, len(docs))
	unnamed := 0
	for i, doc := range docs {
		id, ok := records.DocumentID(doc)
		if !ok {
			return nil, &records.DataSourceError{
				Source: l.source.Name(),
				Kind:   kind.Name,
				Op:     "load",
				Err:    fmt.Errorf("document %d has no id", i),
			}
		}

		name := doc.Get(kind.NameField)
		if name.Type == gjson.Null || name.String() == "" {
			unnamed++
			continue
		}
		m[id] = name.String()
	}

	l.logger.Debug("loaded reference data",
		"kind", kind.Name,
		"source", l.source.Name(),
		"entries", len(m),
		"unnamed", unnamed,
	)

	return m, nil
}

// LoadAll loads the student, subject and class maps.
func (l *Loader) LoadAll(ctx context.Context) (Set, error) {
	var set Set
	var err error

	if set.Students, err = l.Load(ctx, records.Students); err != nil {
		return Set{}, err
	}
	if set.Subjects, err = l.Load(ctx, records.Subjects); err != nil {
		return Set{}, err
	}
	if set.Classes, err = l.Load(ctx, records.Classes); err != nil {
		return Set{}, err
	}

	return set, nil
}
