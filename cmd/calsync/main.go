package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/hytky/forum-backend/internal/calsync"
	"github.com/hytky/forum-backend/internal/config"
	"github.com/hytky/forum-backend/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "calsync",
		Short: "Calendar sync companion for the forum backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoller(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("main-app-url", defaults.GetString("sync.main_app_url"), "Base URL of the forum API")
	cmd.PersistentFlags().Duration("sync-interval", defaults.GetDuration("sync.interval"), "Interval between sync cycles")
	cmd.PersistentFlags().String("calendar-id", defaults.GetString("calendar.id"), "External calendar identifier")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "sync.main_app_url", "main-app-url")
	bindFlag(cmd, "sync.interval", "sync-interval")
	bindFlag(cmd, "calendar.id", "calendar-id")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runPoller(ctx context.Context) error {
	syncConfig, err := config.LoadSync(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(syncConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	client, err := calsync.NewClient(calsync.ClientConfig{
		MainAppURL:   syncConfig.MainAppURL,
		SharedSecret: syncConfig.SyncSharedSecret,
		HTTPTimeout:  syncConfig.HTTPTimeout,
	})
	if err != nil {
		return err
	}

	source, err := calsync.NewGoogleSource(calsync.GoogleSourceConfig{
		APIKey:      syncConfig.GoogleAPIKey,
		CalendarID:  syncConfig.CalendarID,
		HTTPTimeout: syncConfig.HTTPTimeout,
	})
	if err != nil {
		return err
	}

	poller, err := calsync.NewPoller(calsync.PollerConfig{
		Client:   client,
		Source:   source,
		Interval: syncConfig.SyncInterval,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("calendar sync starting",
		zap.String("main_app_url", syncConfig.MainAppURL),
		zap.Duration("interval", syncConfig.SyncInterval))
	if err := poller.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	poller.Stop()
	logger.Info("calendar sync stopped")
	return nil
}
