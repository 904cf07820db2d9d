package economy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy produces a fresh backoff schedule for one retried write.
type RetryPolicy func() backoff.BackOff

// Service contains the economy logic over a Store. The backing store offers
// no transactions and no locking, so the Service compensates with a
// per-username lock held across every read-validate-write sequence and an
// intent journal written before any multi-write mutation.
type Service struct {
	store       Store
	journal     Journal
	locks       *keyedLocks
	logger      OperationLogger
	retryPolicy RetryPolicy
}

func defaultRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(policy, 4)
}

// NewService wires a Service.
func NewService(store Store, journal Journal, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if journal == nil {
		return nil, fmt.Errorf("%w: journal dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		journal:     journal,
		locks:       newKeyedLocks(),
		retryPolicy: defaultRetryPolicy,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetField returns one balance column for a user. A user absent from the
// store reads as zero; a store failure is reported as an error instead of
// being conflated with absence.
func (service *Service) GetField(ctx context.Context, username Username, field FieldName) (int64, error) {
	release := service.locks.acquire(username.String())
	defer release()

	value, err := service.store.ReadField(ctx, username.String(), field)
	if errors.Is(err, ErrRecordNotFound) {
		value, err = 0, nil
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationGetField,
		Username:  username,
		Amount:    value,
		Error:     err,
	})
	if err != nil {
		return 0, WrapError(operationGetField, "balance", "read", err)
	}
	return value, nil
}

// Buy exchanges tokens for tickets at the fixed unit cost. The tokens debit
// and the tickets credit are two separate writes; the tickets write is
// retried with bounded backoff and, failing that, the purchase is reported
// as a partial ledger update with its intent left open for recovery.
func (service *Service) Buy(ctx context.Context, username Username, quantity int64) (Receipt, error) {
	entry := OperationLog{Operation: operationBuy, Username: username, Amount: quantity}
	if quantity <= 0 || quantity > math.MaxInt64/UnitCost {
		return Receipt{}, service.failOperation(ctx, entry, ErrInvalidQuantity)
	}

	release := service.locks.acquire(username.String())
	defer release()

	tokens, err := service.readBalance(ctx, username.String(), FieldTokens)
	if err != nil {
		return Receipt{}, service.failOperation(ctx, entry, err)
	}
	tickets, err := service.readBalance(ctx, username.String(), FieldTickets)
	if err != nil {
		return Receipt{}, service.failOperation(ctx, entry, err)
	}

	cost := quantity * UnitCost
	if tokens < cost {
		return Receipt{}, service.failOperation(ctx, entry, &InsufficientFundsError{Tokens: tokens, Required: cost})
	}

	receipt := Receipt{Tokens: tokens - cost, Tickets: tickets + quantity}
	intent := Intent{
		Operation:      operationBuy,
		FirstUsername:  username.String(),
		FirstField:     FieldTokens,
		FirstValue:     receipt.Tokens,
		SecondUsername: username.String(),
		SecondField:    FieldTickets,
		SecondValue:    receipt.Tickets,
		Stage:          IntentPending,
	}
	if err := service.applyIntent(ctx, intent); err != nil {
		return Receipt{}, service.failOperation(ctx, entry, err)
	}

	service.logOperation(ctx, entry)
	return receipt, nil
}

// Transfer moves tokens from sender to receiver. The receiver must already
// have a ledger row; this operation never creates one.
func (service *Service) Transfer(ctx context.Context, sender Username, receiver Username, amount int64) error {
	entry := OperationLog{Operation: operationTransfer, Username: sender, Receiver: receiver, Amount: amount}
	if sender.String() == receiver.String() {
		return service.failOperation(ctx, entry, ErrSelfTransfer)
	}
	if amount <= 0 {
		return service.failOperation(ctx, entry, ErrInvalidAmount)
	}

	release := service.locks.acquirePair(sender.String(), receiver.String())
	defer release()

	senderTokens, err := service.readBalance(ctx, sender.String(), FieldTokens)
	if err != nil {
		return service.failOperation(ctx, entry, err)
	}
	receiverTokens, err := service.store.ReadField(ctx, receiver.String(), FieldTokens)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return service.failOperation(ctx, entry, fmt.Errorf("%w: receiver %q", ErrRecordNotFound, receiver.String()))
		}
		return service.failOperation(ctx, entry, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err))
	}
	if senderTokens < amount {
		return service.failOperation(ctx, entry, &InsufficientFundsError{Tokens: senderTokens, Required: amount})
	}

	intent := Intent{
		Operation:      operationTransfer,
		FirstUsername:  sender.String(),
		FirstField:     FieldTokens,
		FirstValue:     senderTokens - amount,
		SecondUsername: receiver.String(),
		SecondField:    FieldTokens,
		SecondValue:    receiverTokens + amount,
		Stage:          IntentPending,
	}
	if err := service.applyIntent(ctx, intent); err != nil {
		return service.failOperation(ctx, entry, err)
	}

	service.logOperation(ctx, entry)
	return nil
}

// readBalance reads one column, treating an absent row as a zero balance and
// any store failure as an unavailable balance.
func (service *Service) readBalance(ctx context.Context, username string, field FieldName) (int64, error) {
	value, err := service.store.ReadField(ctx, username, field)
	if errors.Is(err, ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	return value, nil
}

// applyIntent journals a two-write mutation, issues the first write, then the
// second with retry. A failed second write leaves the intent half applied in
// the journal for startup recovery and surfaces ErrPartialLedgerUpdate.
func (service *Service) applyIntent(ctx context.Context, intent Intent) error {
	intentID, err := service.journal.Append(ctx, intent)
	if err != nil {
		return WrapError(intent.Operation, "journal", "append", err)
	}
	if err := service.store.WriteField(ctx, intent.FirstUsername, intent.FirstField, intent.FirstValue); err != nil {
		// The first write never landed, so the ledger is untouched.
		_ = service.journal.SetStage(ctx, intentID, IntentAbandoned)
		return WrapError(intent.Operation, "ledger", "first_write", err)
	}
	_ = service.journal.SetStage(ctx, intentID, IntentHalfApplied)
	if err := service.writeWithRetry(ctx, intent.SecondUsername, intent.SecondField, intent.SecondValue); err != nil {
		return fmt.Errorf("%w: %s %s for %q failed after %s debit: %v",
			ErrPartialLedgerUpdate, intent.Operation, intent.SecondField, intent.SecondUsername, intent.FirstField, err)
	}
	// Stage bookkeeping after both writes landed is best effort: replaying an
	// already-applied second write is idempotent.
	_ = service.journal.SetStage(ctx, intentID, IntentApplied)
	return nil
}

// writeWithRetry retries transient store outages with bounded backoff; every
// other failure aborts immediately.
func (service *Service) writeWithRetry(ctx context.Context, username string, field FieldName, value int64) error {
	write := func() error {
		err := service.store.WriteField(ctx, username, field, value)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(write, backoff.WithContext(service.retryPolicy(), ctx))
}

func (service *Service) failOperation(ctx context.Context, entry OperationLog, err error) error {
	entry.Error = err
	service.logOperation(ctx, entry)
	return err
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
