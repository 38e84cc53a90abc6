package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/settlement-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	entries, err := fs.ReadDir(migrate.Migrations(), ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("expected 7 embedded migrations, got %d", len(entries))
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	up := "-- +goose Up\nSELECT 1;\n"
	both := up + "-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name":       {"create_orders.sql": {Data: []byte(both)}},
		"duplicate":      {"20260101000000_a.sql": {Data: []byte(both)}, "20260101000000_b.sql": {Data: []byte(both)}},
		"missing down":   {"20260101000000_a.sql": {Data: []byte(up)}},
		"down before up": {"20260101000000_a.sql": {Data: []byte("-- +goose Down\n" + up)}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Validate(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := migrate.Validate(fstest.MapFS{"README.md": {Data: []byte("notes")}}); err != nil {
		t.Fatalf("non-sql files should be ignored: %v", err)
	}
}

func TestMigrationsContainSettlementConstraints(t *testing.T) {
	cases := []struct {
		glob   string
		checks []string
	}{
		{
			glob: "*_create_orders.sql",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS orders",
				"CHECK (commission_amount + gateway_fee_amount + seller_net_amount = total_amount)",
				"CREATE INDEX IF NOT EXISTS idx_orders_gateway_order_id",
				"CREATE TABLE IF NOT EXISTS order_status_events",
				"DROP TABLE IF EXISTS orders",
			},
		},
		{
			glob: "*_create_shipments.sql",
			checks: []string{
				"order_id UUID NOT NULL UNIQUE",
				"CREATE UNIQUE INDEX IF NOT EXISTS ux_shipment_scans_dedupe",
				"ON shipment_scans (shipment_id, occurred_at, description)",
			},
		},
		{
			glob: "*_create_seller_payouts.sql",
			checks: []string{
				"CHECK (period_start <= period_end)",
				"link_state TEXT NOT NULL DEFAULT 'linked'",
				"fk_orders_payout_id",
				"CONSTRAINT ex_seller_payouts_period EXCLUDE USING gist",
			},
		},
		{
			glob: "*_create_coupons.sql",
			checks: []string{
				"ux_coupon_redemptions_checkout",
				"ON coupon_redemptions (coupon_id, gateway_order_id)",
			},
		},
		{
			glob: "*_create_platform_settings.sql",
			checks: []string{
				"id INT PRIMARY KEY CHECK (id = 1)",
				"ON CONFLICT (id) DO NOTHING",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.glob, func(t *testing.T) {
			matches, err := filepath.Glob(filepath.Join("migrations", tc.glob))
			if err != nil {
				t.Fatalf("glob migrations: %v", err)
			}
			if len(matches) != 1 {
				t.Fatalf("expected exactly one migration for %s, got %v", tc.glob, matches)
			}
			data, err := os.ReadFile(matches[0])
			if err != nil {
				t.Fatalf("read migration file: %v", err)
			}
			content := string(data)
			for _, sub := range tc.checks {
				if !strings.Contains(content, sub) {
					t.Errorf("missing expected statement %q", sub)
				}
			}
		})
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Payout Index!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260401093000_add_payout_index.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add payout index", now); err == nil {
		t.Fatal("expected an existing migration not to be overwritten")
	}
}
