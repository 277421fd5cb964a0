package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/domain/user"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = 0
			}
			return runServer(*configPath, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on (defaults to the configured port)")
	return cmd
}

func checkServe(s *config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return s.ValidateAuth()
}

func runServer(configPath string, port int) error {
	store, err := config.NewStore(configPath, checkServe)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	settings := store.Load()
	logger := newLogger(&settings, os.Stdout)
	if port == 0 {
		port = settings.Port
	}

	store.Watch(checkServe, func(next *config.Settings, err error) {
		if err != nil {
			logger.Error().Err(err).Msg("config reload rejected, keeping previous settings")
			return
		}
		zerolog.SetGlobalLevel(next.Level())
		logger.Info().Str("location", next.Location).Str("log_level", next.Level().String()).Msg("config reloaded")
	})

	ctx := context.Background()
	pool, err := db.NewPool(ctx, settings.Database.URL, settings.Database.MaxConns, settings.Database.MinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params())
	users := user.NewService(user.NewRepo(pool), hasher)
	patients := patient.NewService(patient.NewRepo(pool), func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})

	srv := server.New(server.Deps{
		Logger:   logger,
		Settings: store,
		Auth:     auth.NewService(users, hasher, store),
		Patients: patients,
		Pool:     pool,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", port)
		errCh <- srv.Start(addr,
			time.Duration(settings.Server.ReadTimeoutSeconds)*time.Second,
			time.Duration(settings.Server.WriteTimeoutSeconds)*time.Second)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			return err
		}
		return nil
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
