package twitch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KerlyLaeda/relaxbot/internal/chat"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultChatURL = "wss://irc-ws.chat.twitch.tv:443"

	commandPing      = "PING"
	commandPrivmsg   = "PRIVMSG"
	commandReconnect = "RECONNECT"
	commandNotice    = "NOTICE"

	writeTimeout = 10 * time.Second
)

var errServerReconnect = errors.New("server requested reconnect")
var errAuthRejected = errors.New("chat authentication rejected")

// Handler consumes inbound chat lines and produces at most one reply each.
type Handler interface {
	HandleMessage(ctx context.Context, message chat.Message) (string, bool)
}

// Config addresses the chat connection.
type Config struct {
	BotUsername  string
	BotUserID    string
	Channel      string
	ClientID     string
	ClientSecret string
	ChatURL      string
}

// Session is the live chat connection: IRC over WebSocket, with OAuth token
// rotation delegated to the token manager and every rotated pair persisted
// through the RefreshSink before use.
type Session struct {
	config  Config
	tokens  *tokenManager
	handler Handler
	logger  *zap.Logger
}

// NewSession wires a Session.
func NewSession(config Config, sink RefreshSink, handler Handler, logger *zap.Logger) (*Session, error) {
	if strings.TrimSpace(config.BotUsername) == "" {
		return nil, fmt.Errorf("twitch session: bot username is required")
	}
	if strings.TrimSpace(config.BotUserID) == "" {
		return nil, fmt.Errorf("twitch session: bot user id is required")
	}
	if strings.TrimSpace(config.Channel) == "" {
		return nil, fmt.Errorf("twitch session: channel is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("twitch session: handler is required")
	}
	if config.ChatURL == "" {
		config.ChatURL = defaultChatURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		config:  config,
		tokens:  newTokenManager(config.ClientID, config.ClientSecret, sink),
		handler: handler,
		logger:  logger,
	}, nil
}

// AddToken registers a stored or freshly granted token pair with the session.
// Implements the registrar the credential manager replays into at startup.
func (session *Session) AddToken(ctx context.Context, token string, refresh string) error {
	userID, err := session.tokens.Register(ctx, token, refresh)
	if err != nil {
		return err
	}
	session.logger.Info("token registered", zap.String("user_id", userID))
	return nil
}

// Run serves chat until ctx is done, reconnecting with exponential backoff
// after connection failures.
func (session *Session) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0

	for {
		connectedAt := time.Now()
		err := session.serveOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errAuthRejected) {
			if _, refreshErr := session.tokens.RefreshFor(ctx, session.config.BotUserID); refreshErr != nil {
				session.logger.Error("token refresh after rejection failed", zap.Error(refreshErr))
			}
		}
		if time.Since(connectedAt) > time.Minute {
			policy.Reset()
		}
		wait := policy.NextBackOff()
		session.logger.Warn("chat connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (session *Session) serveOnce(ctx context.Context) error {
	token, exists := session.tokens.AccessToken(session.config.BotUserID)
	if !exists {
		return fmt.Errorf("no active credential for bot user %s", session.config.BotUserID)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, session.config.ChatURL, nil)
	if err != nil {
		return fmt.Errorf("dial chat: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	login := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS oauth:" + token,
		"NICK " + strings.ToLower(session.config.BotUsername),
		"JOIN #" + strings.ToLower(session.config.Channel),
	}
	for _, line := range login {
		if err := session.writeLine(conn, line); err != nil {
			return fmt.Errorf("chat login: %w", err)
		}
	}
	session.logger.Info("chat connected",
		zap.String("channel", session.config.Channel),
		zap.String("bot", session.config.BotUsername))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("chat read: %w", err)
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := session.handleLine(ctx, conn, line); err != nil {
				return err
			}
		}
	}
}

func (session *Session) handleLine(ctx context.Context, conn *websocket.Conn, line string) error {
	message := parseIRCLine(line)
	switch message.Command {
	case commandPing:
		return session.writeLine(conn, "PONG :"+message.Trailing)
	case commandReconnect:
		return errServerReconnect
	case commandNotice:
		if strings.Contains(message.Trailing, "authentication failed") {
			return fmt.Errorf("%w: %s", errAuthRejected, message.Trailing)
		}
		session.logger.Info("server notice", zap.String("notice", message.Trailing))
		return nil
	case commandPrivmsg:
		reply, handled := session.handler.HandleMessage(ctx, chat.Message{
			Author: message.Nick,
			Text:   message.Trailing,
		})
		if !handled || reply == "" {
			return nil
		}
		return session.writeLine(conn, fmt.Sprintf("PRIVMSG #%s :%s", strings.ToLower(session.config.Channel), reply))
	}
	return nil
}

func (session *Session) writeLine(conn *websocket.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}
