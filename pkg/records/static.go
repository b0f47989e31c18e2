package records

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// StaticSource serves documents from a JSON seed shaped as
//
//	{"marks": [...], "students": [...], "subjects": [...], "class": [...]}
//
// keyed by Kind.Collection. Collections missing from the seed are empty.
type StaticSource struct {
	seed gjson.Result
}

// NewStaticSource parses a seed document.
func NewStaticSource(data []byte) (*StaticSource, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("static source: seed is not valid JSON")
	}

	seed := gjson.ParseBytes(data)
	if !seed.IsObject() {
		return nil, errors.New("static source: seed must be a JSON object keyed by collection")
	}

	return &StaticSource{seed: seed}, nil
}

// LoadStaticSource reads a seed file from disk.
func LoadStaticSource(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("static source: %w", err)
	}
	return NewStaticSource(data)
}

func (s *StaticSource) Name() string { return "static" }

// Find implements Source.
func (s *StaticSource) Find(ctx context.Context, kind Kind) ([]gjson.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DataSourceError{Source: s.Name(), Kind: kind.Name, Op: "find", Err: err}
	}

	docs := s.seed.Get(gjson.Escape(kind.Collection))
	if !docs.Exists() {
		return nil, nil
	}
	if !docs.IsArray() {
		return nil, &DataSourceError{
			Source: s.Name(),
			Kind:   kind.Name,
			Op:     "find",
			Err:    fmt.Errorf("collection %q is not an array", kind.Collection),
		}
	}

	return docs.Array(), nil
}
