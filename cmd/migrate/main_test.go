package main

import (
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/migrations"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, "0001", "init_schema_migrations"},
		{"0042_add_index.sql", true, "0042", "add_index"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if !tt.valid {
				return
			}
			if m[1] != tt.version || m[2] != tt.name {
				t.Errorf("got version=%q name=%q, want %q %q", m[1], m[2], tt.version, tt.name)
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_second.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id INT64);")},
		"sql/0001_first.sql":  {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (id INT64);")},
		"sql/README.md":       {Data: []byte("notes")},
	}
	log := logger.NewWithWriter(io.Discard)

	got, err := readMigrations(fsys, "sql", "proj", "ds", log)
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Errorf("versions = %d,%d, want 1,2", got[0].Version, got[1].Version)
	}
	if got[0].Name != "first" {
		t.Errorf("name = %q, want first", got[0].Name)
	}
	if !strings.Contains(got[0].SQL, "`proj.ds.a`") {
		t.Errorf("placeholders not substituted: %s", got[0].SQL)
	}
	if got[0].Checksum == got[1].Checksum {
		t.Error("different files should have different checksums")
	}

	again, err := readMigrations(fsys, "sql", "other", "ds2", log)
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if again[0].Checksum != got[0].Checksum {
		t.Error("checksum should not depend on the target dataset")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"0001_b.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := readMigrations(fsys, ".", "p", "d", logger.NewWithWriter(io.Discard)); err == nil {
		t.Fatal("expected an error for duplicate versions")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := readMigrations(migrations.BigQuery, "bigquery", "p", "d", logger.NewWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i, m := range got {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Filename, m.Version, i+1)
		}
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("%s still has placeholders", m.Filename)
		}
	}
}

func TestPlan(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a", Checksum: "c1"},
		{Version: 2, Name: "b", Checksum: "c2-new"},
		{Version: 3, Name: "c", Checksum: "c3"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "c1"},
		{Version: 2, Checksum: "c2-old"},
	}

	pending, drifted := plan(all, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("pending = %+v, want only version 3", pending)
	}
	if len(drifted) != 1 || drifted[0].Version != 2 {
		t.Errorf("drifted = %+v, want only version 2", drifted)
	}
}
