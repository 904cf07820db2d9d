package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KerlyLaeda/relaxbot/pkg/economy"
	"go.uber.org/zap"
)

const (
	// CommandPrefix marks a chat line as a command.
	CommandPrefix = "!"

	commandBalance  = "balance"
	commandTickets  = "tickets"
	commandBuy      = "buy"
	commandTransfer = "transfer"
)

// Message is one inbound chat line.
type Message struct {
	Author string
	Text   string
}

// Processor maps chat commands onto economy operations and formats the
// single textual reply each command yields. Pricing and argument validation
// live here; balance invariants live in the economy service.
type Processor struct {
	economy *economy.Service
	logger  *zap.Logger
}

// NewProcessor wires a Processor.
func NewProcessor(service *economy.Service, logger *zap.Logger) (*Processor, error) {
	if service == nil {
		return nil, fmt.Errorf("chat processor: economy service is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{economy: service, logger: logger}, nil
}

// HandleMessage dispatches one chat line. The second return value reports
// whether the line was a recognized command; unrecognized text yields no
// reply at all.
func (processor *Processor) HandleMessage(ctx context.Context, message Message) (string, bool) {
	text := strings.TrimSpace(message.Text)
	if !strings.HasPrefix(text, CommandPrefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(text, CommandPrefix))
	if len(fields) == 0 {
		return "", false
	}
	command := strings.ToLower(fields[0])
	arguments := fields[1:]

	author, err := economy.NewUsername(message.Author)
	if err != nil {
		processor.logger.Warn("message with unusable author name", zap.String("author", message.Author))
		return "", false
	}

	switch command {
	case commandBalance:
		return processor.replyBalance(ctx, author, economy.FieldTokens, "tokens"), true
	case commandTickets:
		return processor.replyBalance(ctx, author, economy.FieldTickets, "tickets"), true
	case commandBuy:
		return processor.replyBuy(ctx, author, arguments), true
	case commandTransfer:
		return processor.replyTransfer(ctx, author, arguments), true
	}
	return "", false
}

func (processor *Processor) replyBalance(ctx context.Context, author economy.Username, field economy.FieldName, noun string) string {
	value, err := processor.economy.GetField(ctx, author, field)
	if err != nil {
		return fmt.Sprintf("%s, there was an error checking your %s.", author, noun)
	}
	return fmt.Sprintf("%s, you have %d %s.", author, value, noun)
}

func (processor *Processor) replyBuy(ctx context.Context, author economy.Username, arguments []string) string {
	if len(arguments) != 1 {
		return fmt.Sprintf("%s, usage: %sbuy <number of tickets>.", author, CommandPrefix)
	}
	quantity, err := strconv.ParseInt(arguments[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("%s, usage: %sbuy <number of tickets>.", author, CommandPrefix)
	}

	receipt, err := processor.economy.Buy(ctx, author, quantity)
	switch {
	case err == nil:
		return fmt.Sprintf("%s, you bought %d tickets. You now have %d tickets!", author, quantity, receipt.Tickets)
	case errors.Is(err, economy.ErrInvalidQuantity):
		return fmt.Sprintf("%s, amount must be greater than 0.", author)
	case errors.Is(err, economy.ErrInsufficientFunds):
		var insufficient *economy.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return fmt.Sprintf("%s, you don't have enough tokens. Your balance is %d, 1 ticket costs %d tokens.",
				author, insufficient.Tokens, economy.UnitCost)
		}
		return fmt.Sprintf("%s, you don't have enough tokens.", author)
	case errors.Is(err, economy.ErrBalanceUnavailable):
		return fmt.Sprintf("%s, failed to retrieve your balance.", author)
	case errors.Is(err, economy.ErrPartialLedgerUpdate):
		return processor.replyPartialUpdate(author)
	default:
		return fmt.Sprintf("%s, there was an error updating your data.", author)
	}
}

func (processor *Processor) replyTransfer(ctx context.Context, author economy.Username, arguments []string) string {
	if len(arguments) != 2 {
		return fmt.Sprintf("%s, usage: %stransfer <amount> <username>.", author, CommandPrefix)
	}
	amount, err := strconv.ParseInt(arguments[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("%s, usage: %stransfer <amount> <username>.", author, CommandPrefix)
	}
	receiver, err := economy.NewUsername(arguments[1])
	if err != nil {
		return fmt.Sprintf("%s, usage: %stransfer <amount> <username>.", author, CommandPrefix)
	}

	err = processor.economy.Transfer(ctx, author, receiver, amount)
	switch {
	case err == nil:
		return fmt.Sprintf("%s transferred %d tokens to %s.", author, amount, receiver)
	case errors.Is(err, economy.ErrSelfTransfer):
		return "You can't transfer tokens to yourself."
	case errors.Is(err, economy.ErrInvalidAmount):
		return "Amount must be greater than 0."
	case errors.Is(err, economy.ErrRecordNotFound):
		return fmt.Sprintf("%s isn't in the ledger yet.", receiver)
	case errors.Is(err, economy.ErrBalanceUnavailable):
		return "Could not fetch balances."
	case errors.Is(err, economy.ErrInsufficientFunds):
		return fmt.Sprintf("%s, you don't have enough tokens.", author)
	case errors.Is(err, economy.ErrPartialLedgerUpdate):
		return processor.replyPartialUpdate(author)
	default:
		return "Error transferring tokens."
	}
}

// replyPartialUpdate keeps internal detail out of chat while steering the
// user away from blind retries that would double-apply the mutation.
func (processor *Processor) replyPartialUpdate(author economy.Username) string {
	return fmt.Sprintf("%s, something went wrong updating your balance. Please contact a moderator before retrying.", author)
}
