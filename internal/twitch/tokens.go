package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	twitchoauth "golang.org/x/oauth2/twitch"
)

const defaultValidateURL = "https://id.twitch.tv/oauth2/validate"

var errTokenRejected = errors.New("token rejected by validation")

// RefreshSink durably records a rotated token pair. A refresh is not
// acknowledged until the sink accepts it.
type RefreshSink interface {
	PersistRefresh(ctx context.Context, userID string, token string, refresh string) error
}

// tokenManager validates bearer tokens, refreshes expired pairs through the
// Twitch OAuth endpoint, and hands every rotated pair to the sink before
// using it.
type tokenManager struct {
	oauth       oauth2.Config
	validateURL string
	httpClient  *http.Client
	sink        RefreshSink

	mutex  sync.Mutex
	active map[string]tokenPair
}

type tokenPair struct {
	Access  string
	Refresh string
}

type validatePayload struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
}

func newTokenManager(clientID string, clientSecret string, sink RefreshSink) *tokenManager {
	return &tokenManager{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     twitchoauth.Endpoint,
		},
		validateURL: defaultValidateURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		sink:        sink,
		active:      make(map[string]tokenPair),
	}
}

// Register validates a token pair, refreshing it first when the access token
// is no longer accepted. The resulting pair becomes the active credential
// for the validated user.
func (manager *tokenManager) Register(ctx context.Context, token string, refresh string) (string, error) {
	rotated := false
	payload, err := manager.validate(ctx, token)
	if errors.Is(err, errTokenRejected) {
		token, refresh, err = manager.refresh(ctx, refresh)
		if err != nil {
			return "", err
		}
		rotated = true
		payload, err = manager.validate(ctx, token)
	}
	if err != nil {
		return "", err
	}
	if rotated && manager.sink != nil {
		// The store still holds the pre-rotation pair; it must learn the
		// rotated one before the credential goes live, or a restart replays a
		// refresh token Twitch has already invalidated.
		if err := manager.sink.PersistRefresh(ctx, payload.UserID, token, refresh); err != nil {
			return "", err
		}
	}

	manager.mutex.Lock()
	manager.active[payload.UserID] = tokenPair{Access: token, Refresh: refresh}
	manager.mutex.Unlock()
	return payload.UserID, nil
}

// AccessToken returns the active access token for a user id.
func (manager *tokenManager) AccessToken(userID string) (string, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	pair, exists := manager.active[userID]
	return pair.Access, exists
}

// RefreshFor rotates the pair for a user id and persists it through the sink
// before it becomes the active credential.
func (manager *tokenManager) RefreshFor(ctx context.Context, userID string) (string, error) {
	manager.mutex.Lock()
	pair, exists := manager.active[userID]
	manager.mutex.Unlock()
	if !exists {
		return "", fmt.Errorf("no active credential for user %s", userID)
	}
	token, refresh, err := manager.refresh(ctx, pair.Refresh)
	if err != nil {
		return "", err
	}
	if manager.sink != nil {
		if err := manager.sink.PersistRefresh(ctx, userID, token, refresh); err != nil {
			// Keep using the in-memory pair; the refresh is not acknowledged
			// as durable and the next restart replays the previous one.
			return "", err
		}
	}
	manager.mutex.Lock()
	manager.active[userID] = tokenPair{Access: token, Refresh: refresh}
	manager.mutex.Unlock()
	return token, nil
}

func (manager *tokenManager) validate(ctx context.Context, token string) (validatePayload, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, manager.validateURL, nil)
	if err != nil {
		return validatePayload{}, err
	}
	request.Header.Set("Authorization", "OAuth "+token)
	response, err := manager.httpClient.Do(request)
	if err != nil {
		return validatePayload{}, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusUnauthorized {
		return validatePayload{}, errTokenRejected
	}
	if response.StatusCode != http.StatusOK {
		return validatePayload{}, fmt.Errorf("token validation: unexpected status %d", response.StatusCode)
	}
	var payload validatePayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return validatePayload{}, fmt.Errorf("token validation: %w", err)
	}
	return payload, nil
}

func (manager *tokenManager) refresh(ctx context.Context, refreshToken string) (string, string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, manager.httpClient)
	source := manager.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	rotated, err := source.Token()
	if err != nil {
		return "", "", fmt.Errorf("token refresh: %w", err)
	}
	newRefresh := rotated.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return rotated.AccessToken, newRefresh, nil
}
