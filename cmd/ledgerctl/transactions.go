package main

import (
	"fmt"
	"time"

	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func transactionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Inspect the transaction log",
	}

	list := &cobra.Command{
		Use:   "list <account-id>",
		Short: "List an account's transactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			page, err := pageFromFlags(cmd)
			if err != nil {
				return err
			}

			d, err := loadDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.close(cmd.Context())

			recs, err := d.ledger.ListTransactions(cmd.Context(), id, page)
			if err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), recs)
			}

			rows := make([]string, 0, len(recs))
			for _, r := range recs {
				rows = append(rows, fmt.Sprintf("%s\t%s\t%s\t%s\t%d %s\t%d\t%s",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.Provider, r.ProviderReference,
					r.AmountMinor, r.Currency, r.CreditsGranted, r.Status))
			}
			return printTable(cmd.OutOrStdout(), "ID\tCREATED\tPROVIDER\tREFERENCE\tAMOUNT\tCREDITS\tSTATUS", rows)
		},
	}
	list.Flags().Int("limit", transactions.DefaultPageSize, "page size")
	list.Flags().String("before-time", "", "cursor: created_at (RFC3339) of the last record seen")
	list.Flags().String("before-id", "", "cursor: id of the last record seen")
	cmd.AddCommand(list)

	return cmd
}

func pageFromFlags(cmd *cobra.Command) (transactions.Page, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	beforeTime, _ := cmd.Flags().GetString("before-time")
	beforeID, _ := cmd.Flags().GetString("before-id")

	page := transactions.Page{Limit: limit}
	if beforeTime == "" && beforeID == "" {
		return page, nil
	}
	if beforeTime == "" || beforeID == "" {
		return page, fmt.Errorf("--before-time and --before-id go together")
	}

	ts, err := time.Parse(time.RFC3339Nano, beforeTime)
	if err != nil {
		return page, fmt.Errorf("invalid --before-time: %w", err)
	}
	id, err := uuid.Parse(beforeID)
	if err != nil {
		return page, fmt.Errorf("invalid --before-id: %w", err)
	}

	page.After = &transactions.Cursor{CreatedAt: ts, ID: id}
	return page, nil
}
