package db

import (
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

func labsRelation(t *testing.T) *dataset.Relation {
	t.Helper()
	rel, err := dataset.FromRecords(dataset.SheetLabs,
		[]string{dataset.PatientKey, "lactate", "note", "empty"},
		[][]any{
			{"p1", 2.5, "ok", nil},
			{"p2", nil, 7, nil},
			{"p3", 4.1, nil, nil},
		})
	if err != nil {
		t.Fatalf("build relation: %v", err)
	}
	return rel
}

func TestColumnTypes(t *testing.T) {
	got := columnTypes(labsRelation(t))
	want := []string{"TEXT", "DOUBLE PRECISION", "TEXT", "TEXT"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTableDDL(t *testing.T) {
	ddl := tableDDL(pgx.Identifier{"hf", "Labs"}, []string{dataset.PatientKey, "lactate"}, []string{"TEXT", "DOUBLE PRECISION"})
	want := `CREATE TABLE "hf"."Labs" ("inpatient_number" TEXT, "lactate" DOUBLE PRECISION)`
	if ddl != want {
		t.Errorf("expected %s, got %s", want, ddl)
	}
}

func TestCopyRows(t *testing.T) {
	rel := labsRelation(t)
	rows := copyRows(rel, columnTypes(rel))

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][1] != 2.5 {
		t.Errorf("expected 2.5, got %v", rows[0][1])
	}
	if rows[1][1] != nil {
		t.Errorf("expected nil for null lactate, got %v", rows[1][1])
	}
	// A number in a text column is written as its text form.
	if rows[1][2] != "7" {
		t.Errorf("expected \"7\", got %v", rows[1][2])
	}
	if rows[2][3] != nil {
		t.Errorf("expected nil, got %v", rows[2][3])
	}
}
