package projector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eavview/internal/domain/eav"
)

func TestProjectAllInstallsCatalogViews(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	batch, err := f.service.ProjectAll(ctx, false)
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}
	if batch.RunID != "run-1" {
		t.Fatalf("run id = %q, want run-1", batch.RunID)
	}
	if got := batch.Count(OutcomeApplied); got != len(f.service.Catalog().Views) {
		t.Fatalf("applied = %d, want %d", got, len(f.service.Catalog().Views))
	}
	for i, result := range batch.Results {
		if result.View != f.service.Catalog().Views[i].Name {
			t.Fatalf("result %d view = %s, want catalog order", i, result.View)
		}
	}

	rows := queryRows(t, f.target, `SELECT customer_id, customer_name, status, email FROM v_customers ORDER BY customer_id`)
	if len(rows) != 2 {
		t.Fatalf("customer rows = %d, want 2", len(rows))
	}
	if rows[0]["customer_name"] != "Acme Corp" || rows[0]["status"] != "Active" {
		t.Fatalf("customer 7 = %#v", rows[0])
	}
	if rows[0]["email"] != nil {
		t.Fatalf("absent key should be NULL, got %#v", rows[0]["email"])
	}

	state, found, err := f.state.Get(ctx, "v_customers")
	if err != nil || !found {
		t.Fatalf("state Get() found=%v err=%v", found, err)
	}
	if state.RunID != "run-1" || state.RowCount != 2 || state.Dialect != "sqlite" {
		t.Fatalf("state = %#v", state)
	}
	if !strings.Contains(state.DDL, `CREATE VIEW "v_customers"`) {
		t.Fatalf("recorded ddl = %q", state.DDL)
	}
}

func TestProjectedCommissionNullsEmptyAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	batch, err := f.service.Apply(ctx, []string{"v_commissions"}, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rows := queryRows(t, f.target, `SELECT commission_id, commission_amount, premium_amount, charged_amount FROM v_commissions ORDER BY commission_id`)
	if len(rows) != 2 {
		t.Fatalf("commission rows = %d, want 2", len(rows))
	}
	if rows[0]["commission_amount"] != nil {
		t.Fatalf("empty CommissionAmt = %#v, want NULL", rows[0]["commission_amount"])
	}
	if rows[0]["premium_amount"] != 1000.0 {
		t.Fatalf("premium of row 1 = %#v, want 1000", rows[0]["premium_amount"])
	}
	if rows[1]["commission_amount"] != 125.5 {
		t.Fatalf("commission of row 2 = %#v, want 125.5", rows[1]["commission_amount"])
	}

	nulled := batch.Results[0].Nulled
	if nulled["commission_amount"] != 1 || nulled["premium_amount"] != 0 || nulled["charged_amount"] != 0 {
		t.Fatalf("nulled = %#v", nulled)
	}
}

func TestProjectedClaimsKeepGoodCellsOfBadRows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	batch, err := f.service.Apply(ctx, []string{"v_claims"}, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rows := queryRows(t, f.target, `SELECT claim_id, claim_number, total_incurred FROM v_claims ORDER BY claim_id`)
	if len(rows) != 2 {
		t.Fatalf("claim rows = %d, want 2", len(rows))
	}
	if rows[0]["total_incurred"] != 1200.5 {
		t.Fatalf("claim 500 total = %#v", rows[0]["total_incurred"])
	}
	if rows[1]["total_incurred"] != nil || rows[1]["claim_number"] != "C-501" {
		t.Fatalf("claim 501 = %#v", rows[1])
	}
	if batch.Results[0].Nulled["total_incurred"] != 1 {
		t.Fatalf("nulled = %#v", batch.Results[0].Nulled)
	}
}

func TestProjectedPolicyDates(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.service.Apply(context.Background(), []string{"v_policies"}, false); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	rows := queryRows(t, f.target, `SELECT policy_id, expiration_date FROM v_policies WHERE policy_id = 100`)
	if len(rows) != 1 || rows[0]["expiration_date"] != "2026-12-31" {
		t.Fatalf("policy 100 = %#v", rows)
	}
}

func TestProjectAllIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("first ProjectAll() error = %v", err)
	}
	before := queryRows(t, f.target, `SELECT * FROM v_policies ORDER BY policy_id`)

	second, err := f.service.ProjectAll(ctx, false)
	if err != nil {
		t.Fatalf("second ProjectAll() error = %v", err)
	}
	if got := second.Count(OutcomeUnchanged); got != len(second.Results) {
		t.Fatalf("unchanged = %d of %d", got, len(second.Results))
	}

	forced, err := f.service.ProjectAll(ctx, true)
	if err != nil {
		t.Fatalf("forced ProjectAll() error = %v", err)
	}
	if got := forced.Count(OutcomeApplied); got != len(forced.Results) {
		t.Fatalf("forced applied = %d of %d", got, len(forced.Results))
	}

	after := queryRows(t, f.target, `SELECT * FROM v_policies ORDER BY policy_id`)
	if len(before) != len(after) {
		t.Fatalf("rows changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		for column, value := range before[i] {
			if after[i][column] != value {
				t.Fatalf("row %d column %s changed: %#v -> %#v", i, column, value, after[i][column])
			}
		}
	}

	state, _, err := f.state.Get(ctx, "v_policies")
	if err != nil {
		t.Fatalf("state Get() error = %v", err)
	}
	if state.RunID != forced.RunID {
		t.Fatalf("state run id = %s, want %s", state.RunID, forced.RunID)
	}
}

func TestProjectAllReprojectsDroppedView(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}
	if err := f.target.Exec(`DROP VIEW v_notes`).Error; err != nil {
		t.Fatalf("drop view: %v", err)
	}

	batch, err := f.service.ProjectAll(ctx, false)
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}
	for _, result := range batch.Results {
		want := OutcomeUnchanged
		if result.View == "v_notes" {
			want = OutcomeApplied
		}
		if result.Outcome != want {
			t.Fatalf("%s outcome = %s, want %s", result.View, result.Outcome, want)
		}
	}
}

func TestProjectAllContinuesPastMissingTable(t *testing.T) {
	f := newFixture(t, map[string]bool{"notelookup": true})
	ctx := context.Background()

	batch, err := f.service.ProjectAll(ctx, false)
	if err == nil {
		t.Fatal("ProjectAll() error = nil, want schema error")
	}
	if !errors.Is(err, eav.ErrSchema) {
		t.Fatalf("errors.Is(err, ErrSchema) = false: %v", err)
	}

	var schemaErr *eav.SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.View != "v_notes" {
		t.Fatalf("schema error = %#v", schemaErr)
	}
	var missing *eav.MissingTableError
	if !errors.As(err, &missing) || missing.Table != "notelookup" {
		t.Fatalf("missing table = %#v", missing)
	}

	if batch.Count(OutcomeFailed) != 1 || batch.Count(OutcomeApplied) != len(batch.Results)-1 {
		t.Fatalf("outcomes applied=%d failed=%d", batch.Count(OutcomeApplied), batch.Count(OutcomeFailed))
	}
	if _, found, _ := f.state.Get(ctx, "v_notes"); found {
		t.Fatal("failed view must not be recorded")
	}
	if rows := queryRows(t, f.target, `SELECT * FROM v_claims`); len(rows) != 2 {
		t.Fatalf("claims after failure = %d rows, want 2", len(rows))
	}
}

func TestProjectViewRejectsInvalidSpec(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.ProjectView(context.Background(), eav.ViewSpec{Name: "v bad", LookupTable: "customerlookup"})
	if !errors.Is(err, eav.ErrInvalidSpec) {
		t.Fatalf("ProjectView() error = %v, want ErrInvalidSpec", err)
	}
}

func TestProjectViewLatestTieBreak(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// customer 8 gets a second, later Status row whose value sorts lower.
	if err := f.target.Exec(`INSERT INTO customerlookup (SystemId, LookupKey, LookupValue) VALUES (8, 'Status', 'Closed')`).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	spec := eav.ViewSpec{
		Name:        "v_customer_status",
		LookupTable: "customerlookup",
		IDAlias:     "customer_id",
		Columns:     []eav.ColumnSpec{{Name: "status", Key: "Status"}},
	}
	if _, err := f.service.ProjectView(ctx, spec); err != nil {
		t.Fatalf("ProjectView(max) error = %v", err)
	}
	rows := queryRows(t, f.target, `SELECT status FROM v_customer_status WHERE customer_id = 8`)
	if len(rows) != 1 || rows[0]["status"] != "Inactive" {
		t.Fatalf("max tie-break = %#v, want Inactive", rows)
	}

	spec.TieBreak = eav.TieBreakLatest
	spec.OrderColumn = "LookupId"
	result, err := f.service.ProjectView(ctx, spec)
	if err != nil {
		t.Fatalf("ProjectView(latest) error = %v", err)
	}
	if result.Outcome != OutcomeApplied || result.Rows != 2 {
		t.Fatalf("result = %#v", result)
	}
	rows = queryRows(t, f.target, `SELECT status FROM v_customer_status WHERE customer_id = 8`)
	if len(rows) != 1 || rows[0]["status"] != "Closed" {
		t.Fatalf("latest tie-break = %#v, want Closed", rows)
	}
}

func TestApplyUnknownView(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Apply(context.Background(), []string{"v_missing"}, false)
	if !errors.Is(err, eav.ErrUnknownView) {
		t.Fatalf("Apply() error = %v, want ErrUnknownView", err)
	}
}

func TestApplyCanceledContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.service.ProjectAll(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("ProjectAll() error = %v, want context.Canceled", err)
	}
}

func TestSetCatalogRejectsInvalid(t *testing.T) {
	f := newFixture(t, nil)
	before := f.service.Catalog()

	bad := eav.Catalog{Version: 1, Views: []eav.ViewSpec{{Name: "v_x"}}}
	if err := f.service.SetCatalog(bad); err == nil {
		t.Fatal("SetCatalog() error = nil, want validation error")
	}
	if len(f.service.Catalog().Views) != len(before.Views) {
		t.Fatal("invalid catalog replaced the active one")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := NewService(nil, nil, nil, f.service.Catalog(), Options{}); err == nil {
		t.Fatal("NewService(nil...) error = nil")
	}
}
