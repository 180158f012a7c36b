package repositories

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ DB = (*pgxpool.Pool)(nil)

func TestSchemaDeclaresTables(t *testing.T) {
	for _, table := range []string{"templates", "assets", "jobs", "job_results"} {
		if !strings.Contains(Schema(), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("schema is missing table %s", table)
		}
	}
	if strings.Contains(Schema(), "CREATE TABLE "+"templates") {
		t.Error("schema statements must be idempotent")
	}
}

func TestHelpers(t *testing.T) {
	if nullIfEmpty("  ") != nil {
		t.Error("blank strings map to NULL")
	}
	if nullIfEmpty("x") != "x" {
		t.Error("non-blank strings are kept")
	}
	for in, want := range map[int]int{0: 50, -1: 50, 10: 10, 200: 200, 201: 50} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
