package config

import (
	"fmt"
	"strings"
)

const (
	defaultTokenDatabase   = "tokens.db"
	defaultSheetName       = "Sheet1"
	defaultCredentialsFile = "sheets_credentials.json"
	defaultOpsListenAddr   = ":9090"
)

// Config aggregates runtime settings for the bot process.
type Config struct {
	BotUsername        string
	BotUserID          string
	BroadcasterChannel string
	ClientID           string
	ClientSecret       string

	SpreadsheetID   string
	SheetName       string
	CredentialsFile string

	TokenDatabase string
	OpsListenAddr string
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.TokenDatabase = defaultIfEmpty(cfg.TokenDatabase, defaultTokenDatabase)
	cfg.SheetName = defaultIfEmpty(cfg.SheetName, defaultSheetName)
	cfg.CredentialsFile = defaultIfEmpty(cfg.CredentialsFile, defaultCredentialsFile)
	cfg.OpsListenAddr = defaultIfEmpty(cfg.OpsListenAddr, defaultOpsListenAddr)

	if strings.TrimSpace(cfg.BotUsername) == "" {
		return fmt.Errorf("bot username is required")
	}
	if strings.TrimSpace(cfg.BotUserID) == "" {
		return fmt.Errorf("bot user id is required")
	}
	if strings.TrimSpace(cfg.BroadcasterChannel) == "" {
		return fmt.Errorf("broadcaster channel is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("client secret is required")
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return fmt.Errorf("spreadsheet id is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
