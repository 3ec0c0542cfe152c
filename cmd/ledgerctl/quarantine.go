package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func quarantineCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Manage settled payments for unknown accounts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List open quarantined notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			d, err := loadDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.close(cmd.Context())

			evs, err := d.inbox.ListOpen(cmd.Context(), webhookevents.OutcomeQuarantined, time.Now(), limit)
			if err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), evs)
			}

			rows := make([]string, 0, len(evs))
			for _, ev := range evs {
				account := "-"
				if ev.AccountID != nil {
					account = ev.AccountID.String()
				}
				rows = append(rows, fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%t",
					ev.ID, ev.CreatedAt.Format(time.RFC3339), ev.Provider, ev.ProviderReference, account, ev.SignatureVerified))
			}
			return printTable(cmd.OutOrStdout(), "ID\tRECEIVED\tPROVIDER\tREFERENCE\tACCOUNT\tVERIFIED", rows)
		},
	}
	list.Flags().Int("limit", 100, "maximum events to list")
	cmd.AddCommand(list)

	release := &cobra.Command{
		Use:   "release <event-id>",
		Short: "Settle a quarantined notification once its account exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id: %w", err)
			}

			var override uuid.UUID
			if raw, _ := cmd.Flags().GetString("account"); raw != "" {
				override, err = uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --account: %w", err)
				}
			}

			d, err := loadDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.close(cmd.Context())

			resp, err := releaseEvent(cmd.Context(), d.inbox, d.adapters, d.receiver, id, override)
			if err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d released: %s\n", id, resp.Message)
			return nil
		},
	}
	release.Flags().String("account", "", "grant to this account instead of the one in the payload")
	cmd.AddCommand(release)

	return cmd
}
