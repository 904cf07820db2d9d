package economy

import (
	"context"
	"errors"
	"testing"
)

const (
	buyerName    = "buyer"
	senderName   = "sender"
	receiverName = "receiver"
)

func TestBuyAdjustsBothBalances(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 100000, 0)
	service := mustNewService(test, store, newStubJournal())
	buyer := mustUsername(test, buyerName)

	receipt, err := service.Buy(context.Background(), buyer, 1)
	if err != nil {
		test.Fatalf("buy: %v", err)
	}
	if receipt.Tokens != 48000 || receipt.Tickets != 1 {
		test.Fatalf("unexpected receipt: %+v", receipt)
	}
	if got := store.balance(test, buyerName, FieldTokens); got != 48000 {
		test.Fatalf("expected 48000 tokens, got %d", got)
	}
	if got := store.balance(test, buyerName, FieldTickets); got != 1 {
		test.Fatalf("expected 1 ticket, got %d", got)
	}

	_, err = service.Buy(context.Background(), buyer, 1)
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.balance(test, buyerName, FieldTokens); got != 48000 {
		test.Fatalf("failed buy must not change tokens, got %d", got)
	}
}

func TestBuyInsufficientFundsLeavesStateUnchanged(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 51999, 7)
	journal := newStubJournal()
	service := mustNewService(test, store, journal)

	_, err := service.Buy(context.Background(), mustUsername(test, buyerName), 1)
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.balance(test, buyerName, FieldTokens); got != 51999 {
		test.Fatalf("tokens changed: %d", got)
	}
	if got := store.balance(test, buyerName, FieldTickets); got != 7 {
		test.Fatalf("tickets changed: %d", got)
	}
	if len(journal.intents) != 0 {
		test.Fatalf("rejected buy must not journal an intent, got %d", len(journal.intents))
	}
}

func TestBuyRejectsNonPositiveQuantity(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		quantity int64
	}{
		{name: "zero", quantity: 0},
		{name: "negative", quantity: -3},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore()
			store.seed(buyerName, 1000000, 0)
			service := mustNewService(test, store, newStubJournal())

			_, err := service.Buy(context.Background(), mustUsername(test, buyerName), testCase.quantity)
			if !errors.Is(err, ErrInvalidQuantity) {
				test.Fatalf("expected ErrInvalidQuantity, got %v", err)
			}
		})
	}
}

func TestBuyAbsentUserIsInsufficientFunds(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(), newStubJournal())

	_, err := service.Buy(context.Background(), mustUsername(test, "nobody"), 1)
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTransferConservesTokens(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(senderName, 10, 0)
	store.seed(receiverName, 5, 0)
	service := mustNewService(test, store, newStubJournal())
	sender := mustUsername(test, senderName)
	receiver := mustUsername(test, receiverName)

	if err := service.Transfer(context.Background(), sender, receiver, 3); err != nil {
		test.Fatalf("transfer: %v", err)
	}
	senderTokens := store.balance(test, senderName, FieldTokens)
	receiverTokens := store.balance(test, receiverName, FieldTokens)
	if senderTokens != 7 || receiverTokens != 8 {
		test.Fatalf("expected 7/8, got %d/%d", senderTokens, receiverTokens)
	}
	if senderTokens+receiverTokens != 15 {
		test.Fatalf("transfer must conserve tokens, sum is %d", senderTokens+receiverTokens)
	}

	err := service.Transfer(context.Background(), sender, receiver, 100)
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := store.balance(test, senderName, FieldTokens); got != 7 {
		test.Fatalf("failed transfer changed sender tokens: %d", got)
	}
}

func TestTransferRejectsSelfTransfer(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(senderName, 1000, 0)
	service := mustNewService(test, store, newStubJournal())
	sender := mustUsername(test, senderName)

	err := service.Transfer(context.Background(), sender, mustUsername(test, "@Sender"), 5)
	if !errors.Is(err, ErrSelfTransfer) {
		test.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestTransferRejectsNonPositiveAmount(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		amount int64
	}{
		{name: "zero", amount: 0},
		{name: "negative", amount: -1},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore()
			store.seed(senderName, 1000, 0)
			store.seed(receiverName, 0, 0)
			service := mustNewService(test, store, newStubJournal())

			err := service.Transfer(context.Background(), mustUsername(test, senderName), mustUsername(test, receiverName), testCase.amount)
			if !errors.Is(err, ErrInvalidAmount) {
				test.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestTransferMissingReceiverIsHardFailure(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(senderName, 1000, 0)
	service := mustNewService(test, store, newStubJournal())

	err := service.Transfer(context.Background(), mustUsername(test, senderName), mustUsername(test, "ghost"), 5)
	if !errors.Is(err, ErrRecordNotFound) {
		test.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if got := store.balance(test, senderName, FieldTokens); got != 1000 {
		test.Fatalf("sender tokens changed: %d", got)
	}
}

func TestTransferUnavailableBalanceRead(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(senderName, 1000, 0)
	store.seed(receiverName, 0, 0)
	store.readError = ErrStoreUnavailable
	service := mustNewService(test, store, newStubJournal())

	err := service.Transfer(context.Background(), mustUsername(test, senderName), mustUsername(test, receiverName), 5)
	if !errors.Is(err, ErrBalanceUnavailable) {
		test.Fatalf("expected ErrBalanceUnavailable, got %v", err)
	}
}

func TestGetFieldAbsentUserReadsZero(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(), newStubJournal())

	value, err := service.GetField(context.Background(), mustUsername(test, "nobody"), FieldTokens)
	if err != nil {
		test.Fatalf("get field: %v", err)
	}
	if value != 0 {
		test.Fatalf("expected zero balance, got %d", value)
	}
}

func TestGetFieldStoreErrorIsDistinguishable(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.readError = ErrStoreUnavailable
	service := mustNewService(test, store, newStubJournal())

	_, err := service.GetField(context.Background(), mustUsername(test, buyerName), FieldTokens)
	if !errors.Is(err, ErrStoreUnavailable) {
		test.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestBuyPartialUpdateLeavesIntentOpen(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 100000, 0)
	store.writeHook = func(_ string, field FieldName, _ int64) error {
		if field == FieldTickets {
			return ErrStoreUnavailable
		}
		return nil
	}
	journal := newStubJournal()
	service := mustNewService(test, store, journal)

	_, err := service.Buy(context.Background(), mustUsername(test, buyerName), 1)
	if !errors.Is(err, ErrPartialLedgerUpdate) {
		test.Fatalf("expected ErrPartialLedgerUpdate, got %v", err)
	}
	if got := store.balance(test, buyerName, FieldTokens); got != 48000 {
		test.Fatalf("tokens debit should have landed, got %d", got)
	}
	if got := store.balance(test, buyerName, FieldTickets); got != 0 {
		test.Fatalf("tickets credit must not have landed, got %d", got)
	}
	if got := journal.mustStage(test, "intent-1"); got != IntentHalfApplied {
		test.Fatalf("expected half-applied intent, got %s", got)
	}
}

func TestBuyFirstWriteFailureAbandonsIntent(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 100000, 0)
	store.writeHook = func(_ string, field FieldName, _ int64) error {
		if field == FieldTokens {
			return ErrStoreUnavailable
		}
		return nil
	}
	journal := newStubJournal()
	service := mustNewService(test, store, journal)

	_, err := service.Buy(context.Background(), mustUsername(test, buyerName), 1)
	if !errors.Is(err, ErrStoreUnavailable) {
		test.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if got := store.balance(test, buyerName, FieldTokens); got != 100000 {
		test.Fatalf("tokens changed on failed first write: %d", got)
	}
	if got := journal.mustStage(test, "intent-1"); got != IntentAbandoned {
		test.Fatalf("expected abandoned intent, got %s", got)
	}
}

func TestBuyRetriesTransientSecondWrite(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seed(buyerName, 100000, 0)
	failuresLeft := 2
	store.writeHook = func(_ string, field FieldName, _ int64) error {
		if field == FieldTickets && failuresLeft > 0 {
			failuresLeft--
			return ErrStoreUnavailable
		}
		return nil
	}
	service := mustNewService(test, store, newStubJournal())

	receipt, err := service.Buy(context.Background(), mustUsername(test, buyerName), 1)
	if err != nil {
		test.Fatalf("buy should succeed after retries: %v", err)
	}
	if receipt.Tickets != 1 {
		test.Fatalf("expected 1 ticket, got %d", receipt.Tickets)
	}
	if failuresLeft != 0 {
		test.Fatalf("expected both transient failures consumed, %d left", failuresLeft)
	}
}
