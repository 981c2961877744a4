package enums

import "testing"

func TestParseBodyPart(t *testing.T) {
	got, err := ParseBodyPart("scalp")
	if err != nil || got != BodyPartScalp {
		t.Fatalf("expected scalp, got %q %v", got, err)
	}
	if _, err := ParseBodyPart("elbow"); err == nil {
		t.Fatal("expected error for unknown body part")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPendingPayment: false,
		OrderStatusPaid:           false,
		OrderStatusShipped:        false,
		OrderStatusDelivered:      true,
		OrderStatusCancelled:      true,
		OrderStatusExpired:        true,
	}
	for status, terminal := range cases {
		if status.IsTerminal() != terminal {
			t.Fatalf("%s: expected terminal=%v", status, terminal)
		}
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	if _, err := ParseRole("vendor"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if role, err := ParseRole("admin"); err != nil || role != RoleAdmin {
		t.Fatalf("expected admin, got %q %v", role, err)
	}
}

func TestWithdrawalDecisionValidity(t *testing.T) {
	if !WithdrawalDecisionApprove.IsValid() || !WithdrawalDecisionReject.IsValid() {
		t.Fatal("expected known decisions to be valid")
	}
	if WithdrawalDecision("defer").IsValid() {
		t.Fatal("expected unknown decision to be invalid")
	}
}
