//go:build integration

package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a Postgres container and returns its URL.
func setupPostgresContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "markcast",
			"POSTGRES_PASSWORD": "markcast",
			"POSTGRES_DB":       "school_management",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	return fmt.Sprintf("postgres://markcast:markcast@%s:%s/school_management?sslmode=disable", host, port.Port())
}

func TestPostgresSource_Find(t *testing.T) {
	url := setupPostgresContainer(t)
	ctx := context.Background()

	src, err := NewPostgresSource(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresSource error: %v", err)
	}
	defer src.Close()

	if err := src.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}

	_, err = src.pool.Exec(ctx, `
		INSERT INTO students ("_id", "firstName") VALUES ('s1', 'Amina'), ('s2', 'Brian');
		INSERT INTO subjects ("_id", "name") VALUES ('m1', 'Math');
		INSERT INTO marks ("student", "subject", "class", "examType", "term", "year", "marks")
		VALUES ('s1', 'm1', 'c1', 'Midterm', 'Spring', 2023, 85),
		       ('s1', 'm1', 'c1', 'Final', 'Spring', 2023, 90),
		       ('s2', 'm1', 'c1', NULL, 'Spring', 2023, 70);
	`)
	if err != nil {
		t.Fatalf("seed data: %v", err)
	}

	students, err := src.Find(ctx, Students)
	if err != nil {
		t.Fatalf("Find(students) error: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("len(students) = %d, want 2", len(students))
	}
	if students[0].Get("firstName").String() != "Amina" {
		t.Errorf("students[0].firstName = %q, want Amina", students[0].Get("firstName").String())
	}

	docs, err := src.Find(ctx, Marks)
	if err != nil {
		t.Fatalf("Find(marks) error: %v", err)
	}

	batch := FromDocuments(docs)
	if len(batch.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(batch.Records))
	}
	if batch.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", batch.Dropped())
	}
	if batch.Records[1].Marks != 90 {
		t.Errorf("Records[1].Marks = %v, want 90", batch.Records[1].Marks)
	}
}

func TestPostgresSource_MissingTable(t *testing.T) {
	url := setupPostgresContainer(t)
	ctx := context.Background()

	src, err := NewPostgresSource(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresSource error: %v", err)
	}
	defer src.Close()

	if _, err := src.Find(ctx, Classes); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestPostgresSource_Closed(t *testing.T) {
	url := setupPostgresContainer(t)
	ctx := context.Background()

	src, err := NewPostgresSource(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresSource error: %v", err)
	}
	src.Close()
	src.Close()

	if _, err := src.Find(ctx, Marks); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestNewPostgresSource_InvalidURL(t *testing.T) {
	if _, err := NewPostgresSource(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"); err == nil {
		t.Fatal("expected error for unreachable database")
	}
}
