package projector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"eavview/internal/bootstrap/config"
	"eavview/internal/domain/eav"
	"eavview/internal/infrastructure/catalog"
	"eavview/internal/infrastructure/persistence/repository"
	"eavview/internal/infrastructure/persistence/uow"
	"eavview/internal/infrastructure/statestore"
)

var lookupTables = []string{"customerlookup", "policylookup", "providerlookup", "claimlookup", "paymentlookup", "notelookup"}

var entityTables = []string{"customer", "policy", "provider", "claim", "payment", "note"}

type seedRow struct {
	table string
	id    int
	key   string
	value string
}

var custLightSeed = []seedRow{
	{"customerlookup", 7, "IndexName", "Acme Corp"},
	{"customerlookup", 7, "Status", "Active"},
	{"customerlookup", 7, "ProviderRef", "3"},
	{"customerlookup", 8, "IndexName", "Bolt Ltd"},
	{"customerlookup", 8, "Status", "Inactive"},
	{"providerlookup", 3, "IndexName", "North Agency"},
	{"policylookup", 100, "PolicyNumber", "P-100"},
	{"policylookup", 100, "CustomerRef", "7"},
	{"policylookup", 100, "ExpirationDt", "20261231"},
	{"policylookup", 101, "PolicyNumber", "P-101"},
	{"policylookup", 101, "CustomerRef", "abc"},
	{"policylookup", 102, "PolicyNumber", "P-102"},
	{"claimlookup", 500, "ClaimNumber", "C-500"},
	{"claimlookup", 500, "TotalIncurred", "1200.50"},
	{"claimlookup", 500, "PolicyRef", "100"},
	{"claimlookup", 501, "ClaimNumber", "C-501"},
	{"claimlookup", 501, "TotalIncurred", "n/a"},
	{"paymentlookup", 900, "PolicyRef", "100"},
	{"paymentlookup", 900, "PaymentAmount", "250.00"},
	{"notelookup", 40, "PolicyRef", "100"},
	{"notelookup", 40, "Author", "kim"},
}

type fixture struct {
	service *Service
	target  *gorm.DB
	state   *statestore.SQLiteStateStore
}

func openSQLite(t *testing.T, name string) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// createCustLight creates the CustLight source tables except the skipped
// ones and loads custLightSeed into the tables that exist.
func createCustLight(db *gorm.DB, skip map[string]bool) error {
	statements := make([]string, 0, 16)
	for _, table := range lookupTables {
		if skip[table] {
			continue
		}
		statements = append(statements, "CREATE TABLE "+table+" (LookupId INTEGER PRIMARY KEY AUTOINCREMENT, SystemId INTEGER NOT NULL, LookupKey TEXT NOT NULL, LookupValue TEXT)")
	}
	for _, table := range entityTables {
		if skip[table] {
			continue
		}
		statements = append(statements, "CREATE TABLE "+table+" (SystemId INTEGER PRIMARY KEY, XmlContent TEXT)")
	}
	if !skip["commissiondetail"] {
		statements = append(statements,
			"CREATE TABLE commissiondetail (SystemId INTEGER PRIMARY KEY, CommissionAmt TEXT, WrittenPremiumAmt TEXT, TransactionEffectiveDt TEXT, ProviderRef TEXT, SourceRef TEXT, SourceNumber TEXT, Type TEXT, CarrierCd TEXT, ChargedAmt TEXT)",
			"INSERT INTO commissiondetail VALUES (1, '', '1000.00', '2026-01-15', '3', '100', 'P-100', 'New', 'ACME', '0')",
			"INSERT INTO commissiondetail VALUES (2, '125.50', '900', '2026-02-01', '3', '101', 'P-101', 'Renewal', 'ACME', '12.5')",
		)
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	entities := map[string]string{
		"customerlookup": "customer",
		"policylookup":   "policy",
		"providerlookup": "provider",
		"claimlookup":    "claim",
		"paymentlookup":  "payment",
		"notelookup":     "note",
	}
	seen := map[string]bool{}
	for _, row := range custLightSeed {
		if !skip[row.table] {
			if err := db.Exec("INSERT INTO "+row.table+" (SystemId, LookupKey, LookupValue) VALUES (?, ?, ?)", row.id, row.key, row.value).Error; err != nil {
				return err
			}
		}
		entity := entities[row.table]
		entityKey := fmt.Sprintf("%s/%d", entity, row.id)
		if skip[entity] || seen[entityKey] {
			continue
		}
		seen[entityKey] = true
		if err := db.Exec("INSERT INTO "+entity+" (SystemId, XmlContent) VALUES (?, ?)", row.id, "<x/>").Error; err != nil {
			return err
		}
	}
	return nil
}

func newFixture(t *testing.T, skip map[string]bool) fixture {
	t.Helper()

	target := openSQLite(t, "target.sqlite")
	if err := createCustLight(target, skip); err != nil {
		t.Fatalf("create custlight: %v", err)
	}
	return newFixtureOn(t, target)
}

func newFixtureOn(t *testing.T, target *gorm.DB) fixture {
	t.Helper()

	repo, err := repository.NewViewRepository(target, config.DatabaseConfig{Driver: "sqlite", CommandTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewViewRepository() error = %v", err)
	}
	store := statestore.NewSQLiteStateStore(openSQLite(t, "state.sqlite"))
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	builtin, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}

	service, err := NewService(repo, uow.NewUnitOfWork(target), store, builtin, Options{VerifyColumns: true, AuditCoercions: true})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	runs := 0
	service.newRunID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
	service.now = func() time.Time {
		return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	}
	return fixture{service: service, target: target, state: store}
}

func queryRows(t *testing.T, db *gorm.DB, query string) []map[string]any {
	t.Helper()

	var rows []map[string]any
	if err := db.Raw(query).Scan(&rows).Error; err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return rows
}

func mustView(t *testing.T, service *Service, name string) eav.ViewSpec {
	t.Helper()

	spec, ok := service.Catalog().View(name)
	if !ok {
		t.Fatalf("view %s missing from catalog", name)
	}
	return spec
}
