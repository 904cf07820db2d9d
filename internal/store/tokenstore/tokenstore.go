package tokenstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/KerlyLaeda/relaxbot/pkg/economy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorOperationStore    = "store"
	errorSubjectCredential = "credential"
	errorSubjectIntent     = "intent"
	errorCodeUpsert        = "upsert"
	errorCodeLoad          = "load"
	errorCodeAppend        = "append"
	errorCodeStage         = "stage"
	errorCodeList          = "list"

	defaultMetadataJSON = "{}"
)

// Credential is one stored token pair.
type Credential struct {
	UserID  string
	Token   string
	Refresh string
}

// Store persists credentials and the ledger intent journal using GORM.
type Store struct {
	db        *gorm.DB
	userMutex sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, userLocks: make(map[string]*sync.Mutex)}
}

// Migrate creates the tokens and ledger_intents tables if absent.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialRecord{}, &LedgerIntent{})
}

// UpsertCredential durably records a token pair, overwriting any existing
// pair for the same user. Idempotent; concurrent upserts for the same user
// are serialized so the last write wins.
func (store *Store) UpsertCredential(ctx context.Context, userID string, token string, refresh string) error {
	lock := store.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	record := CredentialRecord{UserID: userID, Token: token, Refresh: refresh}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"token":   token,
				"refresh": refresh,
			}),
		}).
		Create(&record).Error
	if err != nil {
		return wrapStoreError(errorSubjectCredential, errorCodeUpsert, err)
	}
	return nil
}

// LoadCredentials returns a snapshot of every stored token pair.
func (store *Store) LoadCredentials(ctx context.Context) ([]Credential, error) {
	var records []CredentialRecord
	if err := store.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCredential, errorCodeLoad, err)
	}
	credentials := make([]Credential, 0, len(records))
	for _, record := range records {
		credentials = append(credentials, Credential{
			UserID:  record.UserID,
			Token:   record.Token,
			Refresh: record.Refresh,
		})
	}
	return credentials, nil
}

// Append journals an intent and returns its generated id.
func (store *Store) Append(ctx context.Context, intent economy.Intent) (string, error) {
	record := LedgerIntent{
		Operation:      intent.Operation,
		FirstUsername:  intent.FirstUsername,
		FirstField:     intent.FirstField.String(),
		FirstValue:     intent.FirstValue,
		SecondUsername: intent.SecondUsername,
		SecondField:    intent.SecondField.String(),
		SecondValue:    intent.SecondValue,
		Stage:          string(intent.Stage),
		Metadata:       []byte(defaultMetadataJSON),
	}
	if record.Stage == "" {
		record.Stage = string(economy.IntentPending)
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", wrapStoreError(errorSubjectIntent, errorCodeAppend, err)
	}
	return record.IntentID, nil
}

// SetStage advances an intent through its lifecycle. An unknown intent id is
// an error: a stage transition that lands nowhere means the journal and the
// caller disagree about what is in flight.
func (store *Store) SetStage(ctx context.Context, intentID string, stage economy.IntentStage) error {
	result := store.db.WithContext(ctx).
		Model(&LedgerIntent{}).
		Where("intent_id = ?", intentID).
		Update("stage", string(stage))
	if result.Error != nil {
		return wrapStoreError(errorSubjectIntent, errorCodeStage, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectIntent, errorCodeStage,
			fmt.Errorf("no journaled intent with id %q", intentID))
	}
	return nil
}

// ListInStage returns every journaled intent currently in the given stage.
func (store *Store) ListInStage(ctx context.Context, stage economy.IntentStage) ([]economy.Intent, error) {
	var records []LedgerIntent
	err := store.db.WithContext(ctx).
		Where("stage = ?", string(stage)).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
	}
	intents := make([]economy.Intent, 0, len(records))
	for _, record := range records {
		intents = append(intents, economy.Intent{
			IntentID:       record.IntentID,
			Operation:      record.Operation,
			FirstUsername:  record.FirstUsername,
			FirstField:     economy.FieldName(record.FirstField),
			FirstValue:     record.FirstValue,
			SecondUsername: record.SecondUsername,
			SecondField:    economy.FieldName(record.SecondField),
			SecondValue:    record.SecondValue,
			Stage:          economy.IntentStage(record.Stage),
		})
	}
	return intents, nil
}

func (store *Store) lockFor(userID string) *sync.Mutex {
	store.userMutex.Lock()
	defer store.userMutex.Unlock()
	lock, exists := store.userLocks[userID]
	if !exists {
		lock = &sync.Mutex{}
		store.userLocks[userID] = lock
	}
	return lock
}

func wrapStoreError(subject string, code string, err error) error {
	return economy.WrapError(errorOperationStore, subject, code, err)
}
