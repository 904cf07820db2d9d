package economy

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

// stubStore is an in-memory Store with per-call failure injection. It is
// safe for concurrent use so serialization tests can hammer it.
type stubStore struct {
	mutex     sync.Mutex
	rows      map[string]map[FieldName]int64
	readError error
	writeHook func(username string, field FieldName, value int64) error
}

func newStubStore() *stubStore {
	return &stubStore{rows: make(map[string]map[FieldName]int64)}
}

func (store *stubStore) seed(username string, tokens int64, tickets int64) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.rows[username] = map[FieldName]int64{FieldTokens: tokens, FieldTickets: tickets}
}

func (store *stubStore) balance(test *testing.T, username string, field FieldName) int64 {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	row, exists := store.rows[username]
	if !exists {
		test.Fatalf("no row for %q", username)
	}
	return row[field]
}

func (store *stubStore) ReadField(_ context.Context, username string, field FieldName) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.readError != nil {
		return 0, store.readError
	}
	row, exists := store.rows[username]
	if !exists {
		return 0, ErrRecordNotFound
	}
	return row[field], nil
}

func (store *stubStore) WriteField(_ context.Context, username string, field FieldName, value int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.writeHook != nil {
		if err := store.writeHook(username, field, value); err != nil {
			return err
		}
	}
	row, exists := store.rows[username]
	if !exists {
		return ErrRecordNotFound
	}
	row[field] = value
	return nil
}

func (store *stubStore) Locate(_ context.Context, username string) (Row, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.rows[username]; !exists {
		return Row{}, ErrRecordNotFound
	}
	return Row{Username: username, Index: 1}, nil
}

// stubJournal is an in-memory Journal.
type stubJournal struct {
	mutex       sync.Mutex
	intents     []Intent
	appendError error
	nextID      int
}

func newStubJournal() *stubJournal {
	return &stubJournal{}
}

func (journal *stubJournal) Append(_ context.Context, intent Intent) (string, error) {
	journal.mutex.Lock()
	defer journal.mutex.Unlock()
	if journal.appendError != nil {
		return "", journal.appendError
	}
	journal.nextID++
	intent.IntentID = fmt.Sprintf("intent-%d", journal.nextID)
	journal.intents = append(journal.intents, intent)
	return intent.IntentID, nil
}

func (journal *stubJournal) SetStage(_ context.Context, intentID string, stage IntentStage) error {
	journal.mutex.Lock()
	defer journal.mutex.Unlock()
	for index := range journal.intents {
		if journal.intents[index].IntentID == intentID {
			journal.intents[index].Stage = stage
			return nil
		}
	}
	return fmt.Errorf("unknown intent %q", intentID)
}

func (journal *stubJournal) ListInStage(_ context.Context, stage IntentStage) ([]Intent, error) {
	journal.mutex.Lock()
	defer journal.mutex.Unlock()
	var matched []Intent
	for _, intent := range journal.intents {
		if intent.Stage == stage {
			matched = append(matched, intent)
		}
	}
	return matched, nil
}

func (journal *stubJournal) mustStage(test *testing.T, intentID string) IntentStage {
	test.Helper()
	journal.mutex.Lock()
	defer journal.mutex.Unlock()
	for _, intent := range journal.intents {
		if intent.IntentID == intentID {
			return intent.Stage
		}
	}
	test.Fatalf("unknown intent %q", intentID)
	return ""
}

func mustUsername(test *testing.T, raw string) Username {
	test.Helper()
	username, err := NewUsername(raw)
	if err != nil {
		test.Fatalf("username %q: %v", raw, err)
	}
	return username
}

func mustNewService(test *testing.T, store Store, journal Journal, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithRetryPolicy(immediateRetryPolicy)}, options...)
	service, err := NewService(store, journal, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

// immediateRetryPolicy retries without delay so tests stay fast.
func immediateRetryPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}
