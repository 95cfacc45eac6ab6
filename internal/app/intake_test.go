package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
)

func TestBuildMovementRequestConvertsDecimalAmount(t *testing.T) {
	src := uuid.New().String()
	dst := uuid.New().String()
	req, err := BuildMovementRequest(domain.MovementKindInternal, MovementInput{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               "125.50",
		Memo:                 "  rent  ",
		IdempotencyKey:       "client-key-1",
	})
	if err != nil {
		t.Fatalf("BuildMovementRequest returned error: %v", err)
	}
	if req.Amount != 12550 {
		t.Errorf("amount = %d cents, want 12550", req.Amount)
	}
	if req.Memo != "rent" {
		t.Errorf("memo = %q, want trimmed %q", req.Memo, "rent")
	}
	if req.SourceAccountID == nil || req.SourceAccountID.String() != src {
		t.Errorf("source account not parsed: %v", req.SourceAccountID)
	}
}

func TestBuildMovementRequestValidation(t *testing.T) {
	src := uuid.New().String()
	dst := uuid.New().String()

	cases := []struct {
		name  string
		kind  domain.MovementKind
		input MovementInput
		field string
	}{
		{
			name:  "missing idempotency key",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "10.00"},
			field: "idempotency_key",
		},
		{
			name:  "oversized idempotency key",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "10.00", IdempotencyKey: strings.Repeat("k", 129)},
			field: "idempotency_key",
		},
		{
			name:  "zero amount",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "0", IdempotencyKey: "k"},
			field: "amount",
		},
		{
			name:  "negative amount",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "-5.00", IdempotencyKey: "k"},
			field: "amount",
		},
		{
			name:  "sub-cent precision",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "1.005", IdempotencyKey: "k"},
			field: "amount",
		},
		{
			name:  "non-numeric amount",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "ten", IdempotencyKey: "k"},
			field: "amount",
		},
		{
			name:  "same source and destination",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: src, Amount: "10.00", IdempotencyKey: "k"},
			field: "destination_account_id",
		},
		{
			name:  "malformed account id",
			kind:  domain.MovementKindInternal,
			input: MovementInput{SourceAccountID: "not-a-uuid", DestinationAccountID: dst, Amount: "10.00", IdempotencyKey: "k"},
			field: "source_account_id",
		},
		{
			name:  "deposit with source account",
			kind:  domain.MovementKindDeposit,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "10.00", IdempotencyKey: "k"},
			field: "source_account_id",
		},
		{
			name:  "withdrawal with destination account",
			kind:  domain.MovementKindWithdrawal,
			input: MovementInput{SourceAccountID: src, DestinationAccountID: dst, Amount: "10.00", IdempotencyKey: "k"},
			field: "destination_account_id",
		},
		{
			name:  "adjustment with no accounts",
			kind:  domain.MovementKindAdminAdjustment,
			input: MovementInput{Amount: "10.00", IdempotencyKey: "k"},
			field: "source_account_id",
		},
		{
			name:  "oversized memo",
			kind:  domain.MovementKindDeposit,
			input: MovementInput{DestinationAccountID: dst, Amount: "10.00", IdempotencyKey: "k", Memo: strings.Repeat("m", maxMemoLength+1)},
			field: "memo",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildMovementRequest(tc.kind, tc.input)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if ve.Field != tc.field {
				t.Errorf("error field = %q, want %q (%v)", ve.Field, tc.field, err)
			}
		})
	}
}

func TestBuildMovementRequestAmountBoundaries(t *testing.T) {
	dst := uuid.New().String()

	req, err := BuildMovementRequest(domain.MovementKindDeposit, MovementInput{
		DestinationAccountID: dst,
		Amount:               "0.01",
		IdempotencyKey:       "k",
	})
	if err != nil {
		t.Fatalf("one-cent deposit rejected: %v", err)
	}
	if req.Amount != 1 {
		t.Errorf("amount = %d, want 1", req.Amount)
	}

	req, err = BuildMovementRequest(domain.MovementKindDeposit, MovementInput{
		DestinationAccountID: dst,
		Amount:               "1000000",
		IdempotencyKey:       "k2",
	})
	if err != nil {
		t.Fatalf("whole-unit amount rejected: %v", err)
	}
	if req.Amount != 100_000_000 {
		t.Errorf("amount = %d, want 100000000", req.Amount)
	}

	// One cent past the int64 ledger range must be rejected, not wrapped.
	_, err = BuildMovementRequest(domain.MovementKindDeposit, MovementInput{
		DestinationAccountID: dst,
		Amount:               "92233720368547758.08",
		IdempotencyKey:       "k3",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "amount" {
		t.Fatalf("oversized amount not rejected as an amount validation error: %v", err)
	}

	req, err = BuildMovementRequest(domain.MovementKindDeposit, MovementInput{
		DestinationAccountID: dst,
		Amount:               "92233720368547758.07",
		IdempotencyKey:       "k4",
	})
	if err != nil {
		t.Fatalf("maximum representable amount rejected: %v", err)
	}
	if req.Amount != 9223372036854775807 {
		t.Errorf("amount = %d, want int64 max", req.Amount)
	}
}

func TestBuildCardSettlementRequest(t *testing.T) {
	cardID := uuid.New()

	gotID, req, err := BuildCardSettlementRequest(CardSettlementInput{
		CardID:         cardID.String(),
		Amount:         "18.75",
		Merchant:       "grocer",
		IdempotencyKey: "net-1",
	})
	if err != nil {
		t.Fatalf("valid settlement rejected: %v", err)
	}
	if gotID != cardID {
		t.Errorf("card id = %s, want %s", gotID, cardID)
	}
	if req.Kind != domain.MovementKindCardSettlement || req.Amount != 1875 || req.Memo != "grocer" {
		t.Errorf("request fields wrong: %+v", req)
	}
	if req.SourceAccountID != nil {
		t.Error("source account must come from the card, not the caller")
	}

	cases := []struct {
		name  string
		input CardSettlementInput
		field string
	}{
		{"bad card id", CardSettlementInput{CardID: "nope", Amount: "1.00", IdempotencyKey: "k"}, "card_id"},
		{"missing key", CardSettlementInput{CardID: cardID.String(), Amount: "1.00"}, "idempotency_key"},
		{"zero amount", CardSettlementInput{CardID: cardID.String(), Amount: "0", IdempotencyKey: "k"}, "amount"},
		{"sub-cent amount", CardSettlementInput{CardID: cardID.String(), Amount: "1.005", IdempotencyKey: "k"}, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := BuildCardSettlementRequest(tc.input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}
