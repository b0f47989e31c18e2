package records

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const seed = `{
	"marks": [
		{"student":"s1","subject":"m1","class":"c1","examType":"Midterm","term":"Spring","year":2023,"marks":85}
	],
	"students": [{"_id":"s1","firstName":"Amina"}],
	"class": "oops"
}`

func TestStaticSource_Find(t *testing.T) {
	src, err := NewStaticSource([]byte(seed))
	if err != nil {
		t.Fatalf("NewStaticSource error: %v", err)
	}

	marks, err := src.Find(context.Background(), Marks)
	if err != nil {
		t.Fatalf("Find(marks) error: %v", err)
	}
	if len(marks) != 1 {
		t.Fatalf("len(marks) = %d, want 1", len(marks))
	}

	subjects, err := src.Find(context.Background(), Subjects)
	if err != nil {
		t.Fatalf("Find(subjects) error: %v", err)
	}
	if len(subjects) != 0 {
		t.Errorf("missing collection should be empty, got %d", len(subjects))
	}

	if _, err := src.Find(context.Background(), Classes); !errors.Is(err, ErrDataSource) {
		t.Errorf("non-array collection should fail with ErrDataSource, got %v", err)
	}
}

func TestStaticSource_CanceledContext(t *testing.T) {
	src, err := NewStaticSource([]byte(seed))
	if err != nil {
		t.Fatalf("NewStaticSource error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Find(ctx, Marks); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewStaticSource_Invalid(t *testing.T) {
	for _, data := range []string{`[1,2]`, `{nope`} {
		if _, err := NewStaticSource([]byte(data)); err == nil {
			t.Errorf("NewStaticSource(%s) expected error", data)
		}
	}
}

func TestLoadStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	src, err := LoadStaticSource(path)
	if err != nil {
		t.Fatalf("LoadStaticSource error: %v", err)
	}
	students, err := src.Find(context.Background(), Students)
	if err != nil || len(students) != 1 {
		t.Fatalf("Find(students) = %d docs, err %v", len(students), err)
	}

	if _, err := LoadStaticSource(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
