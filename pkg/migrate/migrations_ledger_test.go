package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/escrowledger/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestLedgerMigrationIsAppendOnly(t *testing.T) {
	content := readMigration(t, "*_create_ledger_entries.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS ledger_entries",
		"CHECK (amount <> 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_external_id",
		"BEFORE UPDATE OR DELETE ON ledger_entries",
		"DROP TABLE IF EXISTS ledger_entries",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutMigrationEnforcesOnePerOrder(t *testing.T) {
	content := readMigration(t, "*_create_payouts.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_order_id ON payouts (order_id)",
		"CHECK (amount > 0)",
		"payout amount is immutable",
		"CREATE TABLE IF NOT EXISTS payout_history",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestAuditMigrationCarriesIdempotencyIndex(t *testing.T) {
	content := readMigration(t, "*_create_audit_logs.sql")

	if !strings.Contains(content, "ux_audit_logs_action_key ON audit_logs (action, idempotency_key)") {
		t.Errorf("missing idempotency index")
	}
	if !strings.Contains(content, "BEFORE UPDATE OR DELETE ON audit_logs") {
		t.Errorf("missing append-only trigger")
	}
}

func TestSharedTriggerFunctionIsDroppedByItsOwner(t *testing.T) {
	const drop = "DROP FUNCTION IF EXISTS reject_append_only_mutation()"

	ledger := readMigration(t, "*_create_ledger_entries.sql")
	down := ledger[strings.Index(ledger, "-- +goose Down"):]
	fnAt := strings.Index(down, drop)
	if fnAt < 0 {
		t.Fatalf("ledger down does not drop the trigger function")
	}
	if tableAt := strings.Index(down, "DROP TABLE IF EXISTS ledger_entries"); tableAt < 0 || tableAt > fnAt {
		t.Errorf("ledger down must drop its table before the trigger function")
	}

	for _, pattern := range []string{"*_create_audit_logs.sql", "*_create_payouts.sql"} {
		content := readMigration(t, pattern)
		if strings.Contains(content[strings.Index(content, "-- +goose Down"):], drop) {
			t.Errorf("%s down drops a function the ledger trigger still uses", pattern)
		}
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Payout Notes!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	fsys, err := migrate.Source("")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if err := migrate.ValidateFS(fsys); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	embedded, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded=%d disk=%d", len(embedded), len(onDisk))
	}
}

func TestValidateDirRejectsRewritesOfAppendOnlyTables(t *testing.T) {
	cases := map[string]string{
		"20250401000000_fix_amounts.sql": "-- +goose Up\nUPDATE ledger_entries SET amount = 1;\n-- +goose Down\n",
		"20250401000000_purge_audit.sql": "-- +goose Up\nDELETE FROM audit_logs;\n-- +goose Down\n",
		"20250401000000_truncate.sql":    "-- +goose Up\nTRUNCATE TABLE ledger_entries;\n-- +goose Down\n",
		"20250401000000_no_down.sql":     "-- +goose Up\nSELECT 1;\n",
		"20250401000000_down_first.sql":  "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n",
		"2025_bad_name.sql":              "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := migrate.ValidateDir(dir); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	dir := t.TempDir()
	body := "-- +goose Up\nCREATE INDEX ix ON ledger_entries (user_id);\n-- +goose Down\nDELETE FROM ledger_entries WHERE false;\n"
	if err := os.WriteFile(filepath.Join(dir, "20250401000000_index.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("down sections may clean up: %v", err)
	}
}

func TestNewRunnerRequiresDB(t *testing.T) {
	if _, err := migrate.NewRunner(nil, ""); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
