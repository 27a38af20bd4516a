package eav

import (
	"errors"
	"strings"
	"testing"
)

func customersSpec() ViewSpec {
	return ViewSpec{
		Name:        "v_customers",
		LookupTable: "customerlookup",
		IDAlias:     "customer_id",
		Columns: []ColumnSpec{
			{Name: "customer_name", Key: "IndexName"},
			{Name: "status", Key: "Status"},
			{Name: "provider_ref", Key: "ProviderRef", References: "v_providers"},
		},
	}
}

func TestBuildMySQLPivot(t *testing.T) {
	def, err := Build(customersSpec(), MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := "CREATE OR REPLACE VIEW `v_customers` AS\n" +
		"SELECT\n" +
		"    l.`SystemId` AS `customer_id`,\n" +
		"    MAX(CASE WHEN l.`LookupKey` = 'IndexName' THEN l.`LookupValue` END) AS `customer_name`,\n" +
		"    MAX(CASE WHEN l.`LookupKey` = 'Status' THEN l.`LookupValue` END) AS `status`,\n" +
		"    MAX(CASE WHEN l.`LookupKey` = 'ProviderRef' THEN l.`LookupValue` END) AS `provider_ref`\n" +
		"FROM `customerlookup` l\n" +
		"GROUP BY l.`SystemId`"
	if len(def.Statements) != 1 || def.Statements[0] != want {
		t.Fatalf("Statements = %q\nwant %q", def.Statements, want)
	}
	if def.Select != def.RawSelect {
		t.Fatalf("text-only view must not be wrapped")
	}
	if got := strings.Join(def.Columns, ","); got != "customer_id,customer_name,status,provider_ref" {
		t.Fatalf("Columns = %s", got)
	}
}

func TestBuildEntityTableUsesLeftJoin(t *testing.T) {
	spec := ViewSpec{
		Name:        "v_payments",
		EntityTable: "payment",
		LookupTable: "paymentlookup",
		IDAlias:     "payment_id",
		Columns: []ColumnSpec{
			{Name: "policy_ref", Key: "PolicyRef"},
			{Name: "amount", Key: "PaymentAmount", Type: TypeDecimal},
		},
	}

	def, err := Build(spec, MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(def.RawSelect, "FROM `payment` e\nLEFT JOIN `paymentlookup` l ON l.`SystemId` = e.`SystemId`") {
		t.Fatalf("RawSelect missing entity join:\n%s", def.RawSelect)
	}
	if !strings.Contains(def.RawSelect, "GROUP BY e.`SystemId`") {
		t.Fatalf("RawSelect must group by the entity id:\n%s", def.RawSelect)
	}
	if !strings.Contains(def.Select, "CAST(TRIM(p.`amount`) AS DECIMAL(10,2))") {
		t.Fatalf("Select missing decimal cast:\n%s", def.Select)
	}
	if !strings.Contains(def.Select, "CASE WHEN (TRIM(p.`amount`) REGEXP ") {
		t.Fatalf("decimal cast must be guarded:\n%s", def.Select)
	}
	if !strings.Contains(def.Select, "ROUND(ABS(TRIM(p.`amount`)), 2) < 1e8") {
		t.Fatalf("decimal cast must be bounded by its precision:\n%s", def.Select)
	}
}

func TestBuildPassthrough(t *testing.T) {
	spec := ViewSpec{
		Name:        "v_commissions",
		Mode:        ModePassthrough,
		LookupTable: "commissiondetail",
		IDAlias:     "commission_id",
		Columns: []ColumnSpec{
			{Name: "commission_amount", Key: "CommissionAmt", Type: TypeDecimal, Precision: 12, Scale: 2},
			{Name: "provider_ref", Key: "ProviderRef"},
		},
	}

	def, err := Build(spec, SQLite{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(def.RawSelect, `s."CommissionAmt" AS "commission_amount"`) {
		t.Fatalf("RawSelect = %s", def.RawSelect)
	}
	if len(def.Statements) != 2 || def.Statements[0] != `DROP VIEW IF EXISTS "v_commissions"` {
		t.Fatalf("Statements = %q", def.Statements)
	}
	if !strings.HasPrefix(def.Statements[1], `CREATE VIEW "v_commissions" AS`) {
		t.Fatalf("Statements[1] = %s", def.Statements[1])
	}
}

func TestBuildLatestTieBreak(t *testing.T) {
	spec := customersSpec()
	spec.TieBreak = TieBreakLatest
	spec.OrderColumn = "LookupId"

	def, err := Build(spec, MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := "(SELECT l2.`LookupValue` FROM `customerlookup` l2 WHERE l2.`SystemId` = l.`SystemId` AND l2.`LookupKey` = 'Status' ORDER BY l2.`LookupId` DESC LIMIT 1) AS `status`"
	if !strings.Contains(def.Select, want) {
		t.Fatalf("Select missing latest pick:\n%s", def.Select)
	}
}

func TestBuildMinTieBreak(t *testing.T) {
	spec := customersSpec()
	spec.TieBreak = TieBreakMin

	def, err := Build(spec, SQLite{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if strings.Contains(def.Select, "MAX(") || !strings.Contains(def.Select, "MIN(CASE WHEN") {
		t.Fatalf("Select must use MIN:\n%s", def.Select)
	}
}

func TestBuildFingerprint(t *testing.T) {
	first, err := Build(customersSpec(), MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	again, err := Build(customersSpec(), MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if first.Fingerprint != again.Fingerprint {
		t.Fatalf("fingerprint is not stable")
	}

	changed := customersSpec()
	changed.Columns = append(changed.Columns, ColumnSpec{Name: "email", Key: "EmailAddr"})
	other, err := Build(changed, MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if other.Fingerprint == first.Fingerprint {
		t.Fatalf("fingerprint must change with the definition")
	}

	sqlite, err := Build(customersSpec(), SQLite{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if sqlite.Fingerprint == first.Fingerprint {
		t.Fatalf("fingerprint must depend on the dialect")
	}
}

func TestBuildEscapesLookupKeyLiteral(t *testing.T) {
	if got := quoteLiteral("O'Brien"); got != "'O''Brien'" {
		t.Fatalf("quoteLiteral() = %s", got)
	}
	if got := (MySQL{}).QuoteIdent("we`ird"); got != "`we``ird`" {
		t.Fatalf("QuoteIdent() = %s", got)
	}
}

func TestBuildRejectsInvalidSpec(t *testing.T) {
	spec := customersSpec()
	spec.Columns[0].Key = "Index Name; DROP TABLE x"

	_, err := Build(spec, MySQL{})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("Build() error = %v, want ErrInvalidSpec", err)
	}
}

func TestAuditQuery(t *testing.T) {
	spec := ViewSpec{
		Name:        "v_claims",
		LookupTable: "claimlookup",
		Columns:     []ColumnSpec{{Name: "total_incurred", Key: "TotalIncurred", Type: TypeDecimal}},
	}
	def, err := Build(spec, MySQL{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	query := AuditQuery(def, spec.Columns[0].Normalized(), MySQL{})
	if !strings.HasPrefix(query, "SELECT COUNT(*) FROM (\nSELECT") {
		t.Fatalf("AuditQuery() = %s", query)
	}
	if !strings.Contains(query, "WHERE p.`total_incurred` IS NOT NULL AND NOT ((TRIM(p.`total_incurred`) REGEXP") {
		t.Fatalf("AuditQuery() = %s", query)
	}
}
