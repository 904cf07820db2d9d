package oplog

import (
	"context"
	"errors"

	"github.com/KerlyLaeda/relaxbot/pkg/economy"
	"go.uber.org/zap"
)

// Logger adapts zap to the economy.OperationLogger contract with the
// severity policy the taxonomy requires: caller input errors and business
// rejections are not system faults, a partial ledger update always logs at
// error severity so it can be alerted on.
type Logger struct {
	base *zap.Logger
}

// New wires a Logger.
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base}
}

// LogOperation records one economy operation outcome.
func (logger *Logger) LogOperation(_ context.Context, entry economy.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("username", entry.Username.String()),
		zap.Int64("amount", entry.Amount),
		zap.String("status", entry.Status),
	}
	if entry.Receiver.String() != "" {
		fields = append(fields, zap.String("receiver", entry.Receiver.String()))
	}

	if entry.Error == nil {
		logger.base.Info("economy operation", fields...)
		return
	}
	fields = append(fields, zap.Error(entry.Error))
	switch {
	case errors.Is(entry.Error, economy.ErrPartialLedgerUpdate):
		logger.base.Error("partial ledger update", fields...)
	case isCallerError(entry.Error):
		logger.base.Info("economy operation rejected", fields...)
	default:
		logger.base.Warn("economy operation failed", fields...)
	}
}

func isCallerError(err error) bool {
	return errors.Is(err, economy.ErrInvalidQuantity) ||
		errors.Is(err, economy.ErrInvalidAmount) ||
		errors.Is(err, economy.ErrSelfTransfer) ||
		errors.Is(err, economy.ErrInsufficientFunds)
}
