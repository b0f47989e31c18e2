package analytics

import (
	"math"
	"reflect"
	"testing"

	"github.com/HatiCode/markcast/pkg/records"
	"github.com/HatiCode/markcast/pkg/reference"
)

var names = reference.Set{
	Students: reference.Map{"s1": "Amina", "s2": "Brian", "s3": "Amina"},
	Subjects: reference.Map{"m1": "Math", "m2": "Biology"},
	Classes:  reference.Map{"c1": "Form 1"},
}

func exam(student, subject string, year int, marks float64) records.ExamRecord {
	return records.ExamRecord{
		Student:  student,
		Subject:  subject,
		Class:    "c1",
		ExamType: "Midterm",
		Term:     "Spring",
		Year:     year,
		Marks:    marks,
	}
}

func TestEnrich(t *testing.T) {
	batch := Enrich([]records.ExamRecord{
		exam("s1", "m1", 2023, 85),
		{Student: "s9", Subject: "m9", Class: "c9", Year: 2023, Marks: 10},
	}, names)

	if batch[0].StudentName != "Amina" || batch[0].SubjectName != "Math" || batch[0].ClassName != "Form 1" {
		t.Errorf("batch[0] names = %q/%q/%q", batch[0].StudentName, batch[0].SubjectName, batch[0].ClassName)
	}
	if batch[1].StudentName != reference.Unknown || batch[1].SubjectName != reference.Unknown || batch[1].ClassName != reference.Unknown {
		t.Errorf("unresolved names = %q/%q/%q, want Unknown", batch[1].StudentName, batch[1].SubjectName, batch[1].ClassName)
	}
	if batch[0].Marks != 85 {
		t.Errorf("embedded record lost: Marks = %v", batch[0].Marks)
	}
}

func TestSummarize_MidtermFinalExample(t *testing.T) {
	first := exam("s1", "m1", 2023, 85)
	second := exam("s1", "m1", 2023, 90)
	second.ExamType = "Final"

	progress, subjects := Summarize(Enrich([]records.ExamRecord{first, second}, names))

	wantSubjects := []SubjectSummary{{SubjectName: "Math", AvgMarks: 87.5}}
	if !reflect.DeepEqual(subjects, wantSubjects) {
		t.Errorf("subject analytics = %+v, want %+v", subjects, wantSubjects)
	}

	wantProgress := []StudentProgress{{
		Student:   "Amina",
		Marks:     []float64{85, 90},
		ExamDates: []int{2023, 2023},
		Subjects:  []string{"Math", "Math"},
	}}
	if !reflect.DeepEqual(progress, wantProgress) {
		t.Errorf("student progress = %+v, want %+v", progress, wantProgress)
	}
}

func TestSummarize_SortsByYearStably(t *testing.T) {
	progress, _ := Summarize(Enrich([]records.ExamRecord{
		exam("s1", "m1", 2024, 70),
		exam("s1", "m2", 2022, 60),
		exam("s1", "m1", 2023, 65),
		exam("s1", "m2", 2022, 62),
	}, names))

	if len(progress) != 1 {
		t.Fatalf("len(progress) = %d, want 1", len(progress))
	}
	p := progress[0]
	if !reflect.DeepEqual(p.ExamDates, []int{2022, 2022, 2023, 2024}) {
		t.Errorf("ExamDates = %v", p.ExamDates)
	}
	if !reflect.DeepEqual(p.Marks, []float64{60, 62, 65, 70}) {
		t.Errorf("Marks = %v, want ties kept in input order", p.Marks)
	}
	if !reflect.DeepEqual(p.Subjects, []string{"Biology", "Biology", "Math", "Math"}) {
		t.Errorf("Subjects = %v", p.Subjects)
	}
}

func TestSummarize_SortsExtremeYears(t *testing.T) {
	progress, _ := Summarize(Enrich([]records.ExamRecord{
		exam("s1", "m1", math.MaxInt, 70),
		exam("s1", "m1", math.MinInt, 60),
		exam("s1", "m1", 0, 65),
	}, names))

	want := []int{math.MinInt, 0, math.MaxInt}
	if !reflect.DeepEqual(progress[0].ExamDates, want) {
		t.Errorf("ExamDates = %v, want %v", progress[0].ExamDates, want)
	}
}

func TestSummarize_GroupsByIDInIDOrder(t *testing.T) {
	progress, subjects := Summarize(Enrich([]records.ExamRecord{
		exam("s3", "m2", 2023, 40),
		exam("s1", "m1", 2023, 80),
		exam("s2", "m1", 2023, 60),
		exam("s3", "m1", 2023, 70),
	}, names))

	if len(progress) != 3 {
		t.Fatalf("len(progress) = %d, want 3 (same-name students stay separate)", len(progress))
	}
	gotNames := []string{progress[0].Student, progress[1].Student, progress[2].Student}
	if !reflect.DeepEqual(gotNames, []string{"Amina", "Brian", "Amina"}) {
		t.Errorf("student order = %v", gotNames)
	}
	for i, p := range progress {
		if len(p.Marks) != len(p.ExamDates) || len(p.Marks) != len(p.Subjects) {
			t.Errorf("progress[%d] arrays not parallel: %+v", i, p)
		}
	}

	want := []SubjectSummary{
		{SubjectName: "Math", AvgMarks: 70},
		{SubjectName: "Biology", AvgMarks: 40},
	}
	if !reflect.DeepEqual(subjects, want) {
		t.Errorf("subject analytics = %+v, want %+v", subjects, want)
	}
}

func TestSummarize_UnknownNames(t *testing.T) {
	progress, subjects := Summarize(Enrich([]records.ExamRecord{exam("ghost", "void", 2023, 50)}, reference.Set{}))

	if progress[0].Student != reference.Unknown || progress[0].Subjects[0] != reference.Unknown {
		t.Errorf("progress = %+v, want Unknown names", progress[0])
	}
	if subjects[0].SubjectName != reference.Unknown {
		t.Errorf("subject name = %q, want Unknown", subjects[0].SubjectName)
	}
}

func TestSummarize_Empty(t *testing.T) {
	progress, subjects := Summarize(nil)
	if progress == nil || subjects == nil {
		t.Error("empty batch should yield empty, non-nil slices")
	}
	if len(progress) != 0 || len(subjects) != 0 {
		t.Errorf("got %d progress, %d subjects; want none", len(progress), len(subjects))
	}
}
