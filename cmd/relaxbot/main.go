package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KerlyLaeda/relaxbot/internal/chat"
	"github.com/KerlyLaeda/relaxbot/internal/config"
	"github.com/KerlyLaeda/relaxbot/internal/credential"
	"github.com/KerlyLaeda/relaxbot/internal/oplog"
	"github.com/KerlyLaeda/relaxbot/internal/ops"
	"github.com/KerlyLaeda/relaxbot/internal/store/sheetstore"
	"github.com/KerlyLaeda/relaxbot/internal/store/tokenstore"
	"github.com/KerlyLaeda/relaxbot/internal/twitch"
	"github.com/KerlyLaeda/relaxbot/pkg/economy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagBotUsername   = "bot-username"
	flagBotUserID     = "bot-user-id"
	flagChannel       = "channel"
	flagClientID      = "client-id"
	flagClientSecret  = "client-secret"
	flagSpreadsheetID = "spreadsheet-id"
	flagSheetName     = "sheet-name"
	flagCredentials   = "sheets-credentials"
	flagTokenDB       = "token-db"
	flagOpsListenAddr = "ops-listen-addr"
	envPrefix         = "RELAXBOT"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relaxbot: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Config{}
	cmd := &cobra.Command{
		Use:           "relaxbot",
		Short:         "Chat economy bot over a spreadsheet ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg)
		},
	}

	cmd.Flags().String(flagBotUsername, "", "bot account login name (required)")
	cmd.Flags().String(flagBotUserID, "", "bot account user id (required)")
	cmd.Flags().String(flagChannel, "", "broadcaster channel to join (required)")
	cmd.Flags().String(flagClientID, "", "Twitch application client id (required)")
	cmd.Flags().String(flagClientSecret, "", "Twitch application client secret (required)")
	cmd.Flags().String(flagSpreadsheetID, "", "Google Sheets spreadsheet id (required)")
	cmd.Flags().String(flagSheetName, "", "sheet tab holding the ledger")
	cmd.Flags().String(flagCredentials, "", "path to the service-account credentials file")
	cmd.Flags().String(flagTokenDB, "", "token database DSN (sqlite path or postgres:// URL)")
	cmd.Flags().String(flagOpsListenAddr, "", "operational HTTP listen address")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flagNames := []string{
		flagBotUsername, flagBotUserID, flagChannel, flagClientID, flagClientSecret,
		flagSpreadsheetID, flagSheetName, flagCredentials, flagTokenDB, flagOpsListenAddr,
	}
	for _, flagName := range flagNames {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	// Environment names the deployment already uses.
	aliases := map[string]string{
		flagClientID:      "TWITCH_CLIENT_ID",
		flagClientSecret:  "TWITCH_CLIENT_SECRET",
		flagBotUserID:     "TWITCH_BOT_ID",
		flagChannel:       "TWITCH_CHANNEL",
		flagSpreadsheetID: "GOOGLE_SHEETS_ID",
	}
	for flagName, envName := range aliases {
		if err := v.BindEnv(flagName, envName); err != nil {
			return err
		}
	}

	cfg.BotUsername = strings.TrimSpace(v.GetString(flagBotUsername))
	cfg.BotUserID = strings.TrimSpace(v.GetString(flagBotUserID))
	cfg.BroadcasterChannel = strings.TrimSpace(v.GetString(flagChannel))
	cfg.ClientID = strings.TrimSpace(v.GetString(flagClientID))
	cfg.ClientSecret = v.GetString(flagClientSecret)
	cfg.SpreadsheetID = strings.TrimSpace(v.GetString(flagSpreadsheetID))
	cfg.SheetName = strings.TrimSpace(v.GetString(flagSheetName))
	cfg.CredentialsFile = strings.TrimSpace(v.GetString(flagCredentials))
	cfg.TokenDatabase = strings.TrimSpace(v.GetString(flagTokenDB))
	cfg.OpsListenAddr = strings.TrimSpace(v.GetString(flagOpsListenAddr))

	return cfg.Validate()
}

func runBot(ctx context.Context, cfg config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, cleanup, err := tokenstore.Open(ctx, cfg.TokenDatabase)
	if err != nil {
		return fmt.Errorf("token database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	if err := tokenstore.Migrate(db); err != nil {
		return fmt.Errorf("token database migrate: %w", err)
	}
	tokens := tokenstore.New(db)

	credentials, err := credential.NewManager(tokens, logger)
	if err != nil {
		return fmt.Errorf("credential manager init: %w", err)
	}

	ledger, err := sheetstore.New(ctx, cfg.SpreadsheetID, cfg.CredentialsFile,
		sheetstore.WithSheetName(cfg.SheetName),
		sheetstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("sheet store init: %w", err)
	}

	service, err := economy.NewService(ledger, tokens,
		economy.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		return fmt.Errorf("economy service init: %w", err)
	}

	processor, err := chat.NewProcessor(service, logger)
	if err != nil {
		return fmt.Errorf("chat processor init: %w", err)
	}

	session, err := twitch.NewSession(twitch.Config{
		BotUsername:  cfg.BotUsername,
		BotUserID:    cfg.BotUserID,
		Channel:      cfg.BroadcasterChannel,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, credentials, processor, logger)
	if err != nil {
		return fmt.Errorf("chat session init: %w", err)
	}

	if err := credentials.ReplayAll(ctx, session); err != nil {
		return fmt.Errorf("credential replay: %w", err)
	}
	if err := service.RecoverIntents(ctx); err != nil {
		logger.Error("intent recovery incomplete", zap.Error(err))
	}

	opsServer, err := ops.NewServer(cfg.OpsListenAddr, service, logger)
	if err != nil {
		return fmt.Errorf("ops server init: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- session.Run(ctx) }()
	go func() { errCh <- opsServer.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		return nil
	case err := <-errCh:
		return err
	}
}
