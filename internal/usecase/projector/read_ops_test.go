package projector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eavview/internal/domain/eav"
)

func TestJoinCastMatchesOnlyNumericReferences(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	result, err := f.service.JoinCast(ctx, JoinCastInput{From: "v_policies", RefColumn: "customer_ref", Limit: 10})
	if err != nil {
		t.Fatalf("JoinCast() error = %v", err)
	}
	if result.Join.To != "v_customers" || result.Join.ToColumn != "customer_id" {
		t.Fatalf("join target = %s.%s", result.Join.To, result.Join.ToColumn)
	}
	if result.Rows == nil || len(result.Rows.Rows) != 1 {
		t.Fatalf("joined rows = %#v, want exactly the policy with CustomerRef 7", result.Rows)
	}

	row := map[string]any{}
	for i, column := range result.Rows.Columns {
		row[column] = result.Rows.Rows[0][i]
	}
	if row["policy_number"] != "P-100" || row["v_customers_customer_name"] != "Acme Corp" {
		t.Fatalf("joined row = %#v", row)
	}
}

func TestJoinCastWithoutLimitOnlyBuilds(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.service.JoinCast(context.Background(), JoinCastInput{From: "v_notes", RefColumn: "claim_ref"})
	if err != nil {
		t.Fatalf("JoinCast() error = %v", err)
	}
	if result.Rows != nil {
		t.Fatalf("rows = %#v, want nil", result.Rows)
	}
	if !strings.Contains(result.Join.Query, `JOIN "v_claims" t ON`) {
		t.Fatalf("query = %s", result.Join.Query)
	}
}

func TestJoinCastErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input JoinCastInput
		want  error
	}{
		{name: "unknown from view", input: JoinCastInput{From: "v_nope", RefColumn: "x"}, want: eav.ErrUnknownView},
		{name: "unknown column", input: JoinCastInput{From: "v_policies", RefColumn: "nope"}, want: eav.ErrUnknownColumn},
		{name: "no declared target", input: JoinCastInput{From: "v_policies", RefColumn: "policy_number"}, want: eav.ErrInvalidSpec},
		{name: "unknown target", input: JoinCastInput{From: "v_policies", RefColumn: "customer_ref", To: "v_nope"}, want: eav.ErrUnknownView},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.JoinCast(ctx, tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("JoinCast() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Verify(ctx, "v_customers")
	var schemaErr *eav.SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.View != "v_customers" {
		t.Fatalf("Verify() before projection error = %v, want schema error", err)
	}

	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}
	verification, err := f.service.Verify(ctx, "v_customers")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verification.Rows != 2 || len(verification.Columns) != 14 {
		t.Fatalf("verification = %#v", verification)
	}

	// Replace the view behind the projector's back with a narrower one.
	if err := f.target.Exec(`DROP VIEW v_providers`).Error; err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := f.target.Exec(`CREATE VIEW v_providers AS SELECT SystemId AS provider_id FROM providerlookup`).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	items, err := f.service.VerifyAll(ctx)
	if !errors.Is(err, eav.ErrSchema) {
		t.Fatalf("VerifyAll() error = %v, want schema error", err)
	}
	if len(items) != len(f.service.Catalog().Views)-1 {
		t.Fatalf("verified = %d", len(items))
	}

	if _, err := f.service.Verify(ctx, "v_nope"); !errors.Is(err, eav.ErrUnknownView) {
		t.Fatalf("Verify(unknown) error = %v", err)
	}
}

func TestStatusTracksCatalogChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	items, err := f.service.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, item := range items {
		if item.Installed || item.Recorded || item.Current {
			t.Fatalf("fresh status = %#v", item)
		}
	}

	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	changed := f.service.Catalog()
	changed.Views = append([]eav.ViewSpec(nil), changed.Views...)
	for i := range changed.Views {
		if changed.Views[i].Name == "v_providers" {
			changed.Views[i].Columns = changed.Views[i].Columns[:3]
		}
	}
	if err := f.service.SetCatalog(changed); err != nil {
		t.Fatalf("SetCatalog() error = %v", err)
	}

	items, err = f.service.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, item := range items {
		if !item.Installed || !item.Recorded || item.RunID != "run-1" {
			t.Fatalf("status = %#v", item)
		}
		if item.Current != (item.View != "v_providers") {
			t.Fatalf("%s current = %v", item.View, item.Current)
		}
	}

	batch, err := f.service.ProjectAll(ctx, false)
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}
	if batch.Count(OutcomeApplied) != 1 {
		t.Fatalf("applied after change = %d, want 1", batch.Count(OutcomeApplied))
	}
}

func TestQuery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	rows, err := f.service.Query(ctx, "SELECT customer_name FROM v_customers ORDER BY customer_id;", 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !rows.Truncated || len(rows.Rows) != 1 || rows.Rows[0][0] != "Acme Corp" {
		t.Fatalf("rows = %#v", rows)
	}

	for _, query := range []string{
		"DELETE FROM customerlookup",
		"DROP VIEW v_customers",
		"SELECT 1; DELETE FROM customerlookup",
		"WITH x AS (SELECT 1) DELETE FROM customerlookup",
		"SELECT 1 -- it's\n; DELETE FROM customerlookup",
	} {
		if _, err := f.service.Query(ctx, query, 10); !errors.Is(err, eav.ErrReadOnlyQuery) {
			t.Fatalf("Query(%q) error = %v, want ErrReadOnlyQuery", query, err)
		}
	}
	if rows := queryRows(t, f.target, `SELECT COUNT(*) AS n FROM customerlookup`); rows[0]["n"] != int64(5) {
		t.Fatalf("customerlookup rows = %#v", rows)
	}
}

func TestDropView(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.service.ProjectAll(ctx, false); err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	if err := f.service.DropView(ctx, "v_payments"); err != nil {
		t.Fatalf("DropView() error = %v", err)
	}
	if rows := queryRows(t, f.target, `SELECT name FROM sqlite_master WHERE type = 'view' AND name = 'v_payments'`); len(rows) != 0 {
		t.Fatalf("view still installed: %#v", rows)
	}
	if _, found, _ := f.state.Get(ctx, "v_payments"); found {
		t.Fatal("state still recorded")
	}

	// dropping again is harmless
	if err := f.service.DropView(ctx, "v_payments"); err != nil {
		t.Fatalf("second DropView() error = %v", err)
	}
	if err := f.service.DropView(ctx, "v_nope"); !errors.Is(err, eav.ErrUnknownView) {
		t.Fatalf("DropView(unknown) error = %v", err)
	}
}

func TestPlanAndDescribe(t *testing.T) {
	f := newFixture(t, nil)

	defs, err := f.service.Plan("v_customers", "v_commissions")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(defs) != 2 || defs[0].View != "v_customers" || defs[1].View != "v_commissions" {
		t.Fatalf("defs = %#v", defs)
	}
	if len(defs[0].Statements) != 2 || !strings.HasPrefix(defs[0].Statements[0], "DROP VIEW IF EXISTS") {
		t.Fatalf("statements = %#v", defs[0].Statements)
	}
	if _, err := f.service.Plan("v_nope"); !errors.Is(err, eav.ErrUnknownView) {
		t.Fatalf("Plan(unknown) error = %v", err)
	}

	all, err := f.service.Plan()
	if err != nil || len(all) != len(f.service.Catalog().Views) {
		t.Fatalf("Plan() = %d defs, err %v", len(all), err)
	}

	described := f.service.Describe()
	if len(described) != len(f.service.Catalog().Views) || described[0].Name != "v_customers" {
		t.Fatalf("describe = %#v", described)
	}

	spec, def, err := f.service.Definition("v_payments")
	if err != nil {
		t.Fatalf("Definition() error = %v", err)
	}
	if spec.EntityTable != "payment" || def.View != "v_payments" || def.Fingerprint == "" {
		t.Fatalf("definition = %#v %#v", spec, def)
	}
}
