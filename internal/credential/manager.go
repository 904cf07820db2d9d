package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/KerlyLaeda/relaxbot/internal/store/tokenstore"
	"go.uber.org/zap"
)

// ErrCredentialPersistence marks a refresh whose token pair could not be
// durably recorded. The in-memory session may keep using the pair, but the
// refresh must not be treated as complete: the next restart would replay a
// stale token.
var ErrCredentialPersistence = errors.New("credential persistence failed")

// Store is the durable credential table consumed by the Manager.
type Store interface {
	UpsertCredential(ctx context.Context, userID string, token string, refresh string) error
	LoadCredentials(ctx context.Context) ([]tokenstore.Credential, error)
}

// Registrar is the active session layer that receives replayed and refreshed
// token pairs.
type Registrar interface {
	AddToken(ctx context.Context, token string, refresh string) error
}

// Manager replays stored credentials at startup and persists every refreshed
// pair before the refresh is acknowledged.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager wires a Manager.
func NewManager(store Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("credential manager: store dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}, nil
}

// ReplayAll registers every stored credential with the session layer exactly
// once. Registration failures for individual records are logged and skipped;
// only a failure to read the store itself is fatal.
func (manager *Manager) ReplayAll(ctx context.Context, registrar Registrar) error {
	credentials, err := manager.store.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	replayed := 0
	for _, credential := range credentials {
		if err := registrar.AddToken(ctx, credential.Token, credential.Refresh); err != nil {
			manager.logger.Warn("skipping credential that failed registration",
				zap.String("user_id", credential.UserID),
				zap.Error(err))
			continue
		}
		replayed++
	}
	manager.logger.Info("credentials replayed",
		zap.Int("stored", len(credentials)),
		zap.Int("registered", replayed))
	return nil
}

// PersistRefresh records a rotated token pair. It must be called before the
// refresh is acknowledged to the session layer so a crash in between leaves
// the store consistent with the last attempted refresh at worst.
func (manager *Manager) PersistRefresh(ctx context.Context, userID string, token string, refresh string) error {
	if err := manager.store.UpsertCredential(ctx, userID, token, refresh); err != nil {
		manager.logger.Error("token refresh not persisted",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCredentialPersistence, err)
	}
	manager.logger.Info("token persisted", zap.String("user_id", userID))
	return nil
}
