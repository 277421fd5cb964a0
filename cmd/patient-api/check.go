package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/server"
)

const probeTimeout = 3 * time.Second

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the database, migrations and documentation endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			runCheck(ctx, s, cmd.OutOrStdout(), &http.Client{Timeout: probeTimeout})
			return nil
		},
	}
}

// runCheck reports problems on out instead of failing, so one run shows
// every component.
func runCheck(ctx context.Context, s *config.Settings, out io.Writer, client *http.Client) {
	fmt.Fprintln(out, "\nChecking database connection...")
	if pool, err := db.NewPool(ctx, s.Database.URL, 1, 0); err != nil {
		fmt.Fprintf(out, "FAIL database connection: %v\n", err)
	} else {
		pool.Close()
		fmt.Fprintln(out, "OK   database connection successful")
		checkMigrations(s.Database.URL, out)
	}

	reportSettings(s, out)

	base := fmt.Sprintf("http://localhost:%d%s", s.Port, server.APIBase)
	fmt.Fprintln(out, "Doc URLs:")
	probeDocs(ctx, client, base, out)
	fmt.Fprintln(out)
}

func reportSettings(s *config.Settings, out io.Writer) {
	if parts, ok := parseDatabaseURL(s.Database.URL); ok {
		fmt.Fprintln(out, "\nDB connection details:")
		fmt.Fprintf(out, "   scheme:   %s\n", parts.Scheme)
		fmt.Fprintf(out, "   username: %s\n", parts.Username)
		fmt.Fprintf(out, "   password: %s\n", maskSecret(parts.Password))
		fmt.Fprintf(out, "   host:     %s\n", parts.Host)
		fmt.Fprintf(out, "   port:     %d\n", parts.Port)
		fmt.Fprintf(out, "   DB name:  %s\n", parts.Name)
	} else {
		fmt.Fprintln(out, "WARN unable to parse database url")
	}

	fmt.Fprintf(out, "\nLog level: %s\n", s.Level())
	fmt.Fprintf(out, "Token timeout (seconds): %d\n", s.TokenTimeoutSeconds)
	if s.Tracing.OTLPEndpoint != "" {
		fmt.Fprintf(out, "OTLP endpoint: %s (informational, spans are not exported)\n", s.Tracing.OTLPEndpoint)
	}
}

func checkMigrations(databaseURL string, out io.Writer) {
	fmt.Fprintln(out, "\nChecking migrations...")
	mg, err := db.NewMigrator(databaseURL)
	if err != nil {
		fmt.Fprintf(out, "FAIL open migrator: %v\n", err)
		return
	}
	defer mg.Close()

	pending, err := mg.Pending()
	if err != nil {
		fmt.Fprintf(out, "FAIL check pending migrations: %v\n", err)
		return
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "OK   all migrations are up to date")
		return
	}

	fmt.Fprintf(out, "WARN %d pending migration(s) detected:\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "- %d %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(out, "\nApplying pending migrations...")
	if _, err := mg.Up(); err != nil {
		fmt.Fprintf(out, "FAIL apply migrations: %v\n", err)
		return
	}
	fmt.Fprintln(out, "OK   migrations applied")
}

func probeDocs(ctx context.Context, client *http.Client, base string, out io.Writer) {
	uiURL := base + "/swagger-ui"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uiURL, nil)
	if err != nil {
		fmt.Fprintf(out, "   FAIL %v\n", err)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "   FAIL could not reach doc server at %s, is the server running?\n", uiURL)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "   WARN Swagger UI returned status %d\n", resp.StatusCode)
		return
	}
	fmt.Fprintf(out, "   OK   Swagger UI: %s\n", uiURL)
	fmt.Fprintf(out, "   OK   Raw OAS:    %s\n", base+"/openapi.json")
}

type databaseURL struct {
	Scheme   string
	Username string
	Password string
	Host     string
	Port     int
	Name     string
}

// parseDatabaseURL splits a postgres URL into its parts. The port defaults
// to 5432. Key/value DSNs are not handled.
func parseDatabaseURL(raw string) (databaseURL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return databaseURL{}, false
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return databaseURL{}, false
	}

	parts := databaseURL{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Port:   5432,
		Name:   name,
	}
	if u.User != nil {
		parts.Username = u.User.Username()
		parts.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return databaseURL{}, false
		}
		parts.Port = port
	}
	return parts, true
}

// maskSecret keeps the first and last character of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(none)"
	case len(s) <= 4:
		return strings.Repeat("*", len(s))
	default:
		return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
	}
}
