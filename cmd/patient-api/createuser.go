package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/domain/user"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
)

// userCreator is satisfied by *user.Service.
type userCreator interface {
	CreateUser(ctx context.Context, username, password string) (*user.User, error)
}

func createUserCmd(configPath *string) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "createuser",
		Short: "Create an API user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := db.NewPool(ctx, s.Database.URL, s.Database.MaxConns, s.Database.MinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := user.NewService(user.NewRepo(pool), auth.NewArgon2Hasher(auth.DefaultArgon2Params()))
			return createUser(ctx, svc, username, password, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "apidocpass", "Password")
	return cmd
}

// createUser reports a taken username without failing, so provisioning
// scripts can run it repeatedly.
func createUser(ctx context.Context, svc userCreator, username, password string, out io.Writer) error {
	u, err := svc.CreateUser(ctx, username, password)
	if errors.Is(err, user.ErrExists) {
		fmt.Fprintln(out, "User already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "User %s created with id %d\n", u.Username, u.ID)
	return nil
}
