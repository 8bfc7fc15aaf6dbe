package receipt

import "testing"

func TestReceiptRoundTrip(t *testing.T) {
	r := Issue("exec-1", `{"sum":5}`)
	if r == "" {
		t.Fatalf("expected non-empty receipt")
	}
	if !Verify("exec-1", `{"sum":5}`, r) {
		t.Fatalf("receipt must verify against original result")
	}
}

func TestReceiptDetectsTampering(t *testing.T) {
	r := Issue("exec-1", `{"sum":5}`)

	if Verify("exec-1", `{"sum":6}`, r) {
		t.Fatalf("mutated result must fail verification")
	}
	if Verify("exec-2", `{"sum":5}`, r) {
		t.Fatalf("different execution id must fail verification")
	}
	if Verify("exec-1", `{"sum":5}`, r[:len(r)-1]+"x") {
		t.Fatalf("mutated receipt must fail verification")
	}
}

func TestReceiptDeterministic(t *testing.T) {
	if Issue("id", "result") != Issue("id", "result") {
		t.Fatalf("receipt must be recomputable")
	}
}
