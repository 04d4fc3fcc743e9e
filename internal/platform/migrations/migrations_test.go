package migrations

import (
	"database/sql"
	"os"
	"strings"
	"testing"

	_ "github.com/lib/pq"
)

func TestLatest(t *testing.T) {
	v, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if v != 3 {
		t.Fatalf("latest = %d, want 3", v)
	}
}

func TestEveryUpHasDown(t *testing.T) {
	entries, err := files.ReadDir("sql")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			if !names[down] {
				t.Errorf("%s has no matching %s", name, down)
			}
		}
	}
}

func TestUpIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("up: %v", err)
	}
	v, dirty, err := Version(db)
	if err != nil || dirty || v != 3 {
		t.Fatalf("version = %d dirty=%v err=%v", v, dirty, err)
	}
}
