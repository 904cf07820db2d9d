package economy

import (
	"context"
	"testing"
)

func TestRecoverIntentsReplaysSecondWrite(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 48000, 0)
	journal := newStubJournal()
	journal.intents = []Intent{{
		IntentID:       "intent-1",
		Operation:      operationBuy,
		FirstUsername:  buyerName,
		FirstField:     FieldTokens,
		FirstValue:     48000,
		SecondUsername: buyerName,
		SecondField:    FieldTickets,
		SecondValue:    1,
		Stage:          IntentHalfApplied,
	}}
	service := mustNewService(test, store, journal)

	if err := service.RecoverIntents(context.Background()); err != nil {
		test.Fatalf("recover: %v", err)
	}
	if got := store.balance(test, buyerName, FieldTickets); got != 1 {
		test.Fatalf("expected replayed tickets credit, got %d", got)
	}
	if got := journal.mustStage(test, "intent-1"); got != IntentApplied {
		test.Fatalf("expected applied intent, got %s", got)
	}
}

func TestRecoverIntentsIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 48000, 1)
	journal := newStubJournal()
	journal.intents = []Intent{{
		IntentID:       "intent-1",
		Operation:      operationBuy,
		FirstUsername:  buyerName,
		FirstField:     FieldTokens,
		FirstValue:     48000,
		SecondUsername: buyerName,
		SecondField:    FieldTickets,
		SecondValue:    1,
		Stage:          IntentHalfApplied,
	}}
	service := mustNewService(test, store, journal)

	// The credit already landed before the crash; replaying the absolute value
	// must not double-apply it.
	if err := service.RecoverIntents(context.Background()); err != nil {
		test.Fatalf("recover: %v", err)
	}
	if got := store.balance(test, buyerName, FieldTickets); got != 1 {
		test.Fatalf("replay double-applied the credit: %d", got)
	}
}

func TestRecoverIntentsAbandonsPendingIntents(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 100000, 0)
	journal := newStubJournal()
	journal.intents = []Intent{{
		IntentID:       "intent-1",
		Operation:      operationBuy,
		FirstUsername:  buyerName,
		FirstField:     FieldTokens,
		FirstValue:     48000,
		SecondUsername: buyerName,
		SecondField:    FieldTickets,
		SecondValue:    1,
		Stage:          IntentPending,
	}}
	service := mustNewService(test, store, journal)

	if err := service.RecoverIntents(context.Background()); err != nil {
		test.Fatalf("recover: %v", err)
	}
	if got := store.balance(test, buyerName, FieldTokens); got != 100000 {
		test.Fatalf("pending intent must not be replayed, tokens are %d", got)
	}
	if got := journal.mustStage(test, "intent-1"); got != IntentAbandoned {
		test.Fatalf("expected abandoned intent, got %s", got)
	}
}
