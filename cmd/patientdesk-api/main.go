package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praxislabs/patientdesk/backend/internal/auth"
	"github.com/praxislabs/patientdesk/backend/internal/config"
	"github.com/praxislabs/patientdesk/backend/internal/database"
	"github.com/praxislabs/patientdesk/backend/internal/labels"
	"github.com/praxislabs/patientdesk/backend/internal/logging"
	"github.com/praxislabs/patientdesk/backend/internal/notes"
	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"github.com/praxislabs/patientdesk/backend/internal/server"
	"github.com/praxislabs/patientdesk/backend/internal/signatures"
	"github.com/praxislabs/patientdesk/backend/internal/staff"
	"github.com/praxislabs/patientdesk/backend/internal/submissions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "patientdesk-api",
		Short: "Practice dashboard backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("platform-base-url", defaults.GetString("platform.base_url"), "Hosting platform API base URL")
	cmd.PersistentFlags().String("platform-api-key", "", "Hosting platform API key (overrides env)")
	cmd.PersistentFlags().String("forms-namespace", defaults.GetString("forms.namespace"), "Forms namespace holding patient submissions")
	cmd.PersistentFlags().String("store-mode", defaults.GetString("store.mode"), "Collection store driver (platform or local)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("token.ttl"), "Backend token TTL")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "platform.base_url", "platform-base-url")
	bindFlag(cmd, "platform.api_key", "platform-api-key")
	bindFlag(cmd, "forms.namespace", "forms-namespace")
	bindFlag(cmd, "store.mode", "store-mode")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "token.ttl", "token-ttl")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	clientConfig := platform.ClientConfig{
		BaseURL: appConfig.PlatformBaseURL,
		APIKey:  appConfig.PlatformAPIKey,
	}

	var dataStore labels.DataStore
	if appConfig.StoreMode == config.StoreModeLocal {
		localStore, err := platform.NewSQLiteStore(platform.SQLiteStoreConfig{Database: db})
		if err != nil {
			return err
		}
		dataStore = localStore
	} else {
		dataStore = platform.NewDataClient(clientConfig)
	}
	formsClient := platform.NewFormsClient(clientConfig)
	filesClient := platform.NewFilesClient(clientConfig)

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	staffService, err := staff.NewService(staff.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	labelsService, err := labels.NewService(labels.ServiceConfig{Data: dataStore, Logger: logger})
	if err != nil {
		return err
	}

	notesStore, err := notes.NewStore(notes.StoreConfig{Data: dataStore, Logger: logger})
	if err != nil {
		return err
	}

	submissionsService, err := submissions.NewService(submissions.ServiceConfig{
		Forms:     formsClient,
		Namespace: appConfig.FormsNamespace,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	signaturesService, err := signatures.NewService(signatures.ServiceConfig{
		Files:  filesClient,
		Data:   dataStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		TokenManager:     tokenManager,
		StaffResolver:    staffService,
		Submissions:      submissionsService,
		Notes:            notesStore,
		Labels:           labelsService,
		Signatures:       signaturesService,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_mode", appConfig.StoreMode))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
