package main

import (
	"context"
	"fmt"
	"strconv"

	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/database"
	"reporting-gateway/internal/models"

	"github.com/spf13/cobra"
)

const minPasswordLength = 8

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage gateway users",
	}

	cmd.AddCommand(newUserCreateCmd(a))
	cmd.AddCommand(newUserSetActiveCmd(a))
	cmd.AddCommand(newUserSetRolesCmd(a))
	cmd.AddCommand(newUserGrantWhiteLabelsCmd(a))
	cmd.AddCommand(newUserGrantAffiliatesCmd(a))

	return cmd
}

// lookupUser resolves a username to its id.
func lookupUser(ctx context.Context, dir database.Directory, username string) (int64, error) {
	u, err := dir.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, fmt.Errorf("user %q not found", username)
	}
	return u.ID, nil
}

// ---------- user create ----------

func newUserCreateCmd(a *app) *cobra.Command {
	var (
		displayName string
		email       string
		roles       []string
		inactive    bool
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user; the password is read from stdin",
		Example: `  gatewayctl user create alice --display-name "Alice" --role Manager
  echo "$PASSWORD" | gatewayctl user create bot --role Admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			pw, err := a.readPassword(cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}
			if len(pw) < minPasswordLength {
				return fmt.Errorf("password must be at least %d characters", minPasswordLength)
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			if displayName == "" {
				displayName = username
			}

			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				id, err := dir.CreateUser(ctx, &models.User{
					Username:     username,
					DisplayName:  displayName,
					Email:        email,
					PasswordHash: hash,
					Active:       !inactive,
				})
				if err != nil {
					return err
				}
				if len(roles) > 0 {
					if err := dir.SetRoles(ctx, id, roles); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (id %d)\n", username, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "display name (defaults to the username)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the account disabled")

	return cmd
}

// ---------- user set-active ----------

func newUserSetActiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-active <username> <true|false>",
		Short: "Enable or disable a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid active flag %q", args[1])
			}
			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				id, err := lookupUser(ctx, dir, args[0])
				if err != nil {
					return err
				}
				if err := dir.SetActive(ctx, id, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %q active=%t\n", args[0], active)
				return nil
			})
		},
	}
}

// ---------- user set-roles ----------

func newUserSetRolesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "set-roles <username> [role...]",
		Short:   "Replace a user's roles; no roles leaves the default role",
		Example: `  gatewayctl user set-roles alice Admin`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				id, err := lookupUser(ctx, dir, args[0])
				if err != nil {
					return err
				}
				if err := dir.SetRoles(ctx, id, args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %q roles: %v\n", args[0], args[1:])
				return nil
			})
		},
	}
}

// ---------- user grant-white-labels ----------

func newUserGrantWhiteLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "grant-white-labels <username> [white-label-id...]",
		Short:   "Replace the white labels a user may query",
		Example: `  gatewayctl user grant-white-labels alice 1 2 276`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				id, err := lookupUser(ctx, dir, args[0])
				if err != nil {
					return err
				}
				if err := dir.SetWhiteLabelGrants(ctx, id, ids); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %q white labels: %v\n", args[0], ids)
				return nil
			})
		},
	}
}

// ---------- user grant-affiliates ----------

func newUserGrantAffiliatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-affiliates <username> <white-label-id> [affiliate-id...]",
		Short: "Replace a user's affiliates within one white label",
		Long: `Replace a user's affiliates within one white label. The affiliate id "all"
grants every affiliate of the white label; no affiliate ids removes the grant.`,
		Example: `  gatewayctl user grant-affiliates alice 1 AFF1 AFF2
  gatewayctl user grant-affiliates alice 2 all`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid white label id %q", args[1])
			}
			affiliates := args[2:]
			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				id, err := lookupUser(ctx, dir, args[0])
				if err != nil {
					return err
				}
				if err := dir.SetAffiliateGrants(ctx, id, wl, affiliates); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %q white label %d affiliates: %v\n", args[0], wl, affiliates)
				return nil
			})
		},
	}
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid white label id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
