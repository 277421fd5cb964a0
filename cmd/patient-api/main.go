package main

import (
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/config"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "patient-api",
		Short:         "Patient records API server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultLocation,
		"Path to the JSON config file (overridden by "+config.EnvPrefix+"__ environment variables)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))
	root.AddCommand(createUserCmd(&configPath))
	root.AddCommand(checkCmd(&configPath))
	return root
}

// newLogger writes JSON lines, or human-readable output in development. The
// level is applied globally so a config reload can change it.
func newLogger(s *config.Settings, w io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(s.Level())
	if s.IsDev() {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// loadSettings reads the config once, validated for database access.
func loadSettings(configPath string) (*config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
