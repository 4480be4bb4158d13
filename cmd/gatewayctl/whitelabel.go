package main

import (
	"fmt"
	"strconv"

	"reporting-gateway/internal/database"

	"github.com/spf13/cobra"
)

func newWhiteLabelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "white-label",
		Aliases: []string{"wl"},
		Short:   "Manage the white label catalog administrators see",
	}

	cmd.AddCommand(newWhiteLabelAddCmd(a))
	cmd.AddCommand(newWhiteLabelListCmd(a))

	return cmd
}

func newWhiteLabelAddCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or rename a white label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid white label id %q", args[0])
			}
			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				if err := dir.UpsertWhiteLabel(ctx, id, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "White label %d saved\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")

	return cmd
}

func newWhiteLabelListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalog white label ids",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withDirectory(ctx, func(dir database.Directory) error {
				ids, err := dir.ListWhiteLabelIDs(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}
