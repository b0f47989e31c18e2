package reference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/HatiCode/markcast/pkg/records"
)

func newTestLoader(t *testing.T, seed string) *Loader {
	t.Helper()
	src, err := records.NewStaticSource([]byte(seed))
	if err != nil {
		t.Fatalf("NewStaticSource error: %v", err)
	}
	return NewLoader(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoader_Load(t *testing.T) {
	loader := newTestLoader(t, `{
		"students": [
			{"_id": "s1", "firstName": "Amina"},
			{"_id": {"$oid": "65ab"}, "firstName": "Brian"},
			{"id": 7, "firstName": "Chen"},
			{"_id": "s4"}
		]
	}`)

	m, err := loader.Load(context.Background(), records.Students)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	tests := []struct {
		id   string
		want string
	}{
		{"s1", "Amina"},
		{"65ab", "Brian"},
		{"7", "Chen"},
		{"s4", Unknown},
		{"missing", Unknown},
	}
	for _, tt := range tests {
		if got := m.Name(tt.id); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
	if len(m) != 3 {
		t.Errorf("len(map) = %d, want 3", len(m))
	}
}

func TestLoader_Load_MalformedDocument(t *testing.T) {
	loader := newTestLoader(t, `{"subjects": [{"name": "Math"}]}`)

	_, err := loader.Load(context.Background(), records.Subjects)
	if !errors.Is(err, records.ErrDataSource) {
		t.Fatalf("expected ErrDataSource, got %v", err)
	}
}

func TestLoader_Load_KindWithoutName(t *testing.T) {
	loader := newTestLoader(t, `{}`)
	if _, err := loader.Load(context.Background(), records.Marks); err == nil {
		t.Fatal("expected error for kind without display name")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	loader := newTestLoader(t, `{
		"students": [{"_id": "s1", "firstName": "Amina"}],
		"subjects": [{"_id": "m1", "name": "Math"}],
		"class": [{"_id": "c1", "className": "Form 1"}]
	}`)

	set, err := loader.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if set.Student("s1") != "Amina" {
		t.Errorf("Student(s1) = %q", set.Student("s1"))
	}
	if set.Subject("m1") != "Math" {
		t.Errorf("Subject(m1) = %q", set.Subject("m1"))
	}
	if set.Class("c1") != "Form 1" {
		t.Errorf("Class(c1) = %q", set.Class("c1"))
	}
	if set.Class("c2") != Unknown {
		t.Errorf("Class(c2) = %q, want %q", set.Class("c2"), Unknown)
	}
}

func TestSet_ZeroValueResolvesUnknown(t *testing.T) {
	var set Set
	if set.Student("s1") != Unknown || set.Subject("m1") != Unknown || set.Class("c1") != Unknown {
		t.Error("zero Set should resolve every id to Unknown")
	}
}
