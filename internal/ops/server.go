package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KerlyLaeda/relaxbot/pkg/economy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BalanceReader is the read-only slice of the economy service the probe
// endpoint needs.
type BalanceReader interface {
	GetField(ctx context.Context, username economy.Username, field economy.FieldName) (int64, error)
}

// Server exposes the operational HTTP surface: liveness and a read-only
// balance probe for operators.
type Server struct {
	listenAddr string
	reader     BalanceReader
	logger     *zap.Logger
}

// NewServer wires a Server.
func NewServer(listenAddr string, reader BalanceReader, logger *zap.Logger) (*Server, error) {
	if reader == nil {
		return nil, errors.New("ops server: balance reader is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{listenAddr: listenAddr, reader: reader, logger: logger}, nil
}

// Run serves until ctx is done.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.listenAddr,
		Handler: server.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("ops server listening", zap.String("addr", server.listenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("ops server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", server.handleHealthz)
	router.GET("/balance/:username", server.handleBalance)
	return router
}

func (server *Server) handleHealthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	username, err := economy.NewUsername(ctx.Param("username"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	tokens, err := server.reader.GetField(ctx.Request.Context(), username, economy.FieldTokens)
	if err != nil {
		server.respondReadFailure(ctx, err)
		return
	}
	tickets, err := server.reader.GetField(ctx.Request.Context(), username, economy.FieldTickets)
	if err != nil {
		server.respondReadFailure(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"username": username.String(),
		"tokens":   tokens,
		"tickets":  tickets,
	})
}

func (server *Server) respondReadFailure(ctx *gin.Context, err error) {
	if errors.Is(err, economy.ErrResourceMissing) {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "ledger resource missing"})
		return
	}
	ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
}
