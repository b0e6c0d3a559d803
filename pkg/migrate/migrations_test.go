package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vendiqhq/vendiq-backend/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migration validation failed: %v", err)
	}
}

func TestInitSchemaContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no init schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE order_status AS ENUM",
		"CREATE UNIQUE INDEX uq_orders_payment_intent ON orders (payment_intent_id)",
		"CHECK (available_qty >= 0)",
		"CHECK (qty > 0)",
		"REFERENCES orders (id) ON DELETE CASCADE",
		"DROP TYPE IF EXISTS order_status",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
