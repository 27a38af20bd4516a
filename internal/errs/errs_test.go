package errs

import (
	"errors"
	"testing"
)

var errRoot = errors.New("root cause")

func TestWrapKeepsChain(t *testing.T) {
	err := Wrapf(Wrap(errRoot, "create view"), "project %s", "v_customers")
	if !errors.Is(err, errRoot) {
		t.Fatalf("errors.Is() = false for %v", err)
	}
	if err.Error() != "project v_customers: create view: root cause" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if Wrap(nil, "noop") != nil || Wrapf(nil, "noop %d", 1) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}

func TestCollect(t *testing.T) {
	if err := Collect(nil, nil); err != nil {
		t.Fatalf("Collect(nil, nil) = %v", err)
	}

	other := errors.New("other")
	err := Collect(nil, errRoot, other)
	if !errors.Is(err, errRoot) || !errors.Is(err, other) {
		t.Fatalf("Collect() lost a branch: %v", err)
	}
}

func TestErrorChainStringsWalksJoinedBranches(t *testing.T) {
	err := Wrap(Collect(Wrap(errRoot, "v_claims"), errors.New("v_notes")), "project all")

	chain := ErrorChainStrings(err)
	want := []string{"v_claims: root cause", "root cause", "v_notes"}
	if len(chain) != 1+1+len(want) {
		t.Fatalf("ErrorChainStrings() = %q", chain)
	}
	for i, item := range want {
		if chain[i+2] != item {
			t.Fatalf("chain[%d] = %q, want %q", i+2, chain[i+2], item)
		}
	}
}
