package economy

import (
	"context"
	"fmt"
)

// RecoverIntents repairs multi-write operations interrupted before their
// second write landed: the journaled target value is replayed (absolute
// values make the replay idempotent) and the intent closed. Intents that
// never got past their first write left the ledger untouched and are closed
// as abandoned. Called once at startup, before any command traffic.
func (service *Service) RecoverIntents(ctx context.Context) error {
	halfApplied, err := service.journal.ListInStage(ctx, IntentHalfApplied)
	if err != nil {
		return WrapError(operationRecover, "journal", "list", err)
	}
	for _, intent := range halfApplied {
		if err := service.replayIntent(ctx, intent); err != nil {
			return err
		}
	}

	pending, err := service.journal.ListInStage(ctx, IntentPending)
	if err != nil {
		return WrapError(operationRecover, "journal", "list", err)
	}
	for _, intent := range pending {
		if err := service.journal.SetStage(ctx, intent.IntentID, IntentAbandoned); err != nil {
			return WrapError(operationRecover, "journal", "abandon", err)
		}
	}
	return nil
}

func (service *Service) replayIntent(ctx context.Context, intent Intent) error {
	release := service.locks.acquire(intent.SecondUsername)
	defer release()

	replayError := service.writeWithRetry(ctx, intent.SecondUsername, intent.SecondField, intent.SecondValue)
	username, _ := NewUsername(intent.SecondUsername)
	service.logOperation(ctx, OperationLog{
		Operation: operationRecover,
		Username:  username,
		Amount:    intent.SecondValue,
		Error:     replayError,
	})
	if replayError != nil {
		return fmt.Errorf("%w: replay of %s %s for %q: %v",
			ErrPartialLedgerUpdate, intent.Operation, intent.SecondField, intent.SecondUsername, replayError)
	}
	if err := service.journal.SetStage(ctx, intent.IntentID, IntentApplied); err != nil {
		return WrapError(operationRecover, "journal", "close", err)
	}
	return nil
}
