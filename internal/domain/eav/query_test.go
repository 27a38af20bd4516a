package eav

import (
	"errors"
	"testing"
)

func TestCheckReadOnly(t *testing.T) {
	accepted := []struct {
		in   string
		want string
	}{
		{in: "SELECT * FROM v_customers", want: "SELECT * FROM v_customers"},
		{in: "  select 1;  ", want: "select 1"},
		{in: "-- top customers\nSELECT 1", want: "SELECT 1"},
		{in: "/* note */ WITH x AS (SELECT 1) SELECT * FROM x", want: "WITH x AS (SELECT 1) SELECT * FROM x"},
		{in: "(SELECT 1)", want: "(SELECT 1)"},
		{in: "SELECT ';' AS sep", want: "SELECT ';' AS sep"},
		{in: "SELECT REPLACE(name, 'a', 'b') FROM v_customers", want: "SELECT REPLACE(name, 'a', 'b') FROM v_customers"},
		{in: "SELECT 'it''s' AS s", want: "SELECT 'it''s' AS s"},
		{in: "SELECT updated_at FROM v_policies", want: "SELECT updated_at FROM v_policies"},
	}
	for _, testCase := range accepted {
		got, err := CheckReadOnly(testCase.in)
		if err != nil {
			t.Fatalf("CheckReadOnly(%q) error = %v", testCase.in, err)
		}
		if got != testCase.want {
			t.Fatalf("CheckReadOnly(%q) = %q, want %q", testCase.in, got, testCase.want)
		}
	}

	rejected := []string{
		"",
		"   ",
		"-- only a comment",
		"DROP VIEW v_customers",
		"delete from customerlookup",
		"SELECT 1; DROP TABLE customerlookup",
		"((",
		"WITH x AS (SELECT 1) DELETE FROM customerlookup",
		"with x as (select 1) update customerlookup set LookupValue = ''",
		"WITH x AS (SELECT 1) INSERT INTO customerlookup SELECT * FROM customerlookup",
		"WITH x AS (SELECT 1) REPLACE INTO customerlookup VALUES (1, 'k', 'v')",
		"SELECT * FROM v_customers FOR UPDATE",
		"SELECT 1 INTO OUTFILE '/tmp/x'",
		"SELECT 1 -- it's\n; DELETE FROM customerlookup",
		"SELECT 'a\\'; DELETE FROM customerlookup; --'",
		"SELECT 1 /* open",
		"SELECT (1",
	}
	for _, in := range rejected {
		if _, err := CheckReadOnly(in); !errors.Is(err, ErrReadOnlyQuery) {
			t.Fatalf("CheckReadOnly(%q) error = %v, want ErrReadOnlyQuery", in, err)
		}
	}
}

func TestLimitQuery(t *testing.T) {
	testCases := []struct {
		in    string
		limit int
		want  string
	}{
		{in: "SELECT * FROM v_customers", limit: 10, want: "SELECT * FROM v_customers\nLIMIT 11"},
		{in: "SELECT * FROM v_customers -- note", limit: 1, want: "SELECT * FROM v_customers -- note\nLIMIT 2"},
		{in: "SELECT * FROM v_customers LIMIT 3", limit: 10, want: "SELECT * FROM v_customers LIMIT 3"},
		{in: "SELECT * FROM v WHERE id IN (SELECT id FROM w LIMIT 1)", limit: 5, want: "SELECT * FROM v WHERE id IN (SELECT id FROM w LIMIT 1)\nLIMIT 6"},
		{in: "SELECT 1", limit: 0, want: "SELECT 1"},
	}
	for _, testCase := range testCases {
		if got := LimitQuery(testCase.in, testCase.limit); got != testCase.want {
			t.Fatalf("LimitQuery(%q, %d) = %q, want %q", testCase.in, testCase.limit, got, testCase.want)
		}
	}
}
