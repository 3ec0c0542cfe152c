package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func accountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect or create accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <account-id>",
		Short: "Show an account's credits and plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			d, err := loadDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.close(cmd.Context())

			acc, err := d.ledger.GetAccount(cmd.Context(), id)
			if err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), acc)
			}
			return printTable(cmd.OutOrStdout(), "ID\tEMAIL\tCREDITS\tPRO\tUPDATED", []string{
				fmt.Sprintf("%s\t%s\t%d\t%t\t%s", acc.ID, acc.Email, acc.Credits, acc.IsPro, acc.UpdatedAt.Format(time.RFC3339)),
			})
		},
	})

	create := &cobra.Command{
		Use:   "create <account-id>",
		Short: "Create an account with the starting credits, if it does not exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			email, _ := cmd.Flags().GetString("email")

			d, err := loadDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.close(cmd.Context())

			acc, err := d.ledger.EnsureAccount(cmd.Context(), id, email)
			if err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), acc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s has %d credits\n", acc.ID, acc.Credits)
			return nil
		},
	}
	create.Flags().String("email", "", "account email")
	cmd.AddCommand(create)

	return cmd
}
