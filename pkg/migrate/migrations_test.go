package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	entries, err := embedded.ReadDir(embeddedDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 embedded migrations, got %d", len(entries))
	}
}

func TestPaymentsMigrationContainsLedgerConstraints(t *testing.T) {
	content := readMigration(t, "*_create_payments.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"CONSTRAINT payments_gateway_order_id_key UNIQUE (gateway_order_id)",
		"CONSTRAINT payments_gateway_payment_id_key UNIQUE (gateway_payment_id)",
		"CONSTRAINT payments_receipt_key UNIQUE (receipt)",
		"CHECK (item_type IN ('mess_plan', 'room_booking', 'service'))",
		"CHECK (status IN ('pending', 'completed', 'failed', 'cancelled', 'refunded'))",
		"CHECK ((paid_at IS NOT NULL) = (status IN ('completed', 'refunded')))",
		"DROP TABLE IF EXISTS payments",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInventoryMigrationGuardsCounters(t *testing.T) {
	content := readMigration(t, "*_create_inventory.sql")
	checks := []string{
		"CHECK (available_rooms >= 0 AND available_rooms <= total_rooms)",
		"CHECK (current_subscribers >= 0 AND current_subscribers <= capacity)",
		"CHECK (current_orders >= 0 AND current_orders <= max_orders)",
		"DROP TABLE IF EXISTS rooms",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFulfillmentMigrationLinksPayments(t *testing.T) {
	content := readMigration(t, "*_create_fulfillment_records.sql")
	checks := []string{
		"CONSTRAINT bookings_payment_id_key UNIQUE (payment_id)",
		"CHECK (check_out > check_in)",
		"CONSTRAINT mess_subscriptions_payment_id_key UNIQUE (payment_id)",
		"CONSTRAINT service_orders_payment_id_key UNIQUE (payment_id)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationScaffoldsFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	path, err := CreateSQLMigration(dir, "Add Room Photos!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260301083000_add_room_photos.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := Validate(os.DirFS(dir), "."); err != nil {
		t.Fatalf("scaffolded migration should validate: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "add room photos", now); err == nil {
		t.Fatal("expected an existing migration not to be overwritten")
	}
	if _, err := CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatal("expected an unusable name to be rejected")
	}
}

func TestValidateRejectsBrokenMigrations(t *testing.T) {
	const good = "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {"m/add_rooms.sql": {Data: []byte(good)}},
		"bad timestamp": {"m/20261399000000_rooms.sql": {Data: []byte(good)}},
		"duplicate version": {
			"m/20260105090000_a.sql": {Data: []byte(good)},
			"m/20260105090000_b.sql": {Data: []byte(good)},
		},
		"missing down": {"m/20260105090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"down before up": {"m/20260105090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"unbalanced block": {"m/20260105090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")}},
		"empty": {"m/README.md": {Data: []byte("notes")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := Validate(fsys, "m"); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(embeddedDir, pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
