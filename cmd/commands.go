package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NgigiN/walletsync/internal/app"
	"github.com/NgigiN/walletsync/internal/backup"
	"github.com/NgigiN/walletsync/internal/config"
	"github.com/NgigiN/walletsync/internal/discord"
	"github.com/NgigiN/walletsync/internal/logger"
	"github.com/NgigiN/walletsync/internal/migrate"
)

var (
	rootCmd = &cobra.Command{
		Use:           "walletsync",
		Short:         "Track M-PESA spending and keep the ledger backed up",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	botCmd = &cobra.Command{
		Use:   "bot",
		Short: "Run the Discord bot",
		Long:  `Restores the ledger if it is empty, then ingests M-PESA messages from the configured channel until interrupted.`,
		Args:  cobra.NoArgs,
		RunE:  runBot,
	}
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the ledger to the local and cloud stores",
		Args:  cobra.NoArgs,
		RunE:  runBackup,
	}
	forceBackup bool

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Fill an empty ledger from the latest snapshot",
		Args:  cobra.NoArgs,
		RunE:  runRestore,
	}
	migrateCmd = &cobra.Command{
		Use:       "migrate [local|cloud]",
		Short:     "Copy the ledger to another storage backend and switch to it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(migrate.ModeLocal), string(migrate.ModeCloud)},
		RunE:      runMigrate,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show backup diagnostics as JSON",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
)

func init() {
	backupCmd.Flags().BoolVarP(&forceBackup, "force", "f", false, "write even when nothing changed")
	rootCmd.AddCommand(botCmd, backupCmd, restoreCmd, migrateCmd, statusCmd)
}

// openApp loads config, sets up logging and opens the App.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.LogLevel)
	return app.Open(ctx, cfg)
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if restored, err := a.RestoreIfNeeded(ctx); err != nil {
		logger.L.Warn("startup restore failed", "error", err)
	} else if restored {
		logger.L.Info("ledger restored at startup")
	}

	bot, err := discord.NewBot(a)
	if err != nil {
		return fmt.Errorf("failed to initialize the discord bot: %w", err)
	}
	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}
	logger.L.Info("bot is running")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	bot.Stop(shutdownCtx)
	logger.L.Info("bot stopped")
	return nil
}

func runBackup(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	// Close waits for the upload to finish.
	defer a.Close()

	out := a.BackupIfNeeded(cmd.Context(), forceBackup)
	fmt.Fprintf(cmd.OutOrStdout(), "backup %s\n", out)
	if out == backup.Failed {
		return fmt.Errorf("backup failed: %s", a.Status().LastLocalError)
	}
	return nil
}

func runRestore(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	restored, err := a.RestoreIfNeeded(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored: %t\n", restored)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.SwitchMode(cmd.Context(), migrate.Mode(args[0]))
	if err != nil {
		return err
	}
	if res.Skipped != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "switched to %s, nothing copied: %s\n", args[0], res.Skipped)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "switched to %s, copied %d entities\n", args[0], res.Total())
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(a.Status())
}
