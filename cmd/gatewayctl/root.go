package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// app carries what commands need from the outside world, so tests can swap
// the directory and stdin.
type app struct {
	databaseURL   string
	verbose       bool
	stdin         io.Reader
	openDirectory func(ctx context.Context, databaseURL string, logger *zap.Logger) (database.Directory, error)
}

func newApp() *app {
	return &app{
		stdin: os.Stdin,
		openDirectory: func(ctx context.Context, databaseURL string, logger *zap.Logger) (database.Directory, error) {
			return database.NewPostgresDirectory(ctx, databaseURL, logger)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Manage reporting gateway users and grants",
		Long: `gatewayctl manages the reporting gateway's user directory: accounts, roles,
white label and affiliate grants, and the white label catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "directory database URL (default $DATABASE_URL)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log database activity")

	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newUserCmd(a))
	cmd.AddCommand(newWhiteLabelCmd(a))
	cmd.AddCommand(newHashPasswordCmd(a))

	return cmd
}

// withDirectory opens the directory, runs fn and closes it.
func (a *app) withDirectory(ctx context.Context, fn func(database.Directory) error) error {
	if a.databaseURL == "" {
		return errors.New("no database configured: set --database-url or DATABASE_URL")
	}

	logger := zap.NewNop()
	if a.verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Sync()
	}

	dir, err := a.openDirectory(ctx, a.databaseURL, logger)
	if err != nil {
		return err
	}
	defer dir.Close()
	return fn(dir)
}

// readPassword prompts on a terminal, or reads one line from piped stdin.
func (a *app) readPassword(out io.Writer, prompt string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ---------- migrate ----------

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the directory schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDirectory(cmd.Context(), func(dir database.Directory) error {
				if err := dir.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			})
		},
	}
}

// ---------- hash-password ----------

func newHashPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readPassword(cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
