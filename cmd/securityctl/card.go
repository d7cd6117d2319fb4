package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/spf13/cobra"
)

func cardCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Inspect and revoke vaulted cards",
	}
	cmd.AddCommand(cardRevokeCmd(d), cardListCmd(d), cardPurgeCmd(d))
	return cmd
}

func cardRevokeCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Deactivate a card token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := d.cards(cmd.Context())
			if err != nil {
				return err
			}
			revoked, err := cards.Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !revoked {
				return domain.NewNotFoundError("card", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}

func cardPurgeCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <token>",
		Short: "Delete a revoked card record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := d.cards(cmd.Context())
			if err != nil {
				return err
			}
			if err := cards.Purge(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
			return nil
		},
	}
}

func cardListCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list <customer-id>",
		Short: "List a customer's cards, active and revoked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := d.cards(cmd.Context())
			if err != nil {
				return err
			}
			list, err := cards.CardsForCustomer(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOKEN\tCARD\tBRAND\tEXPIRY\tSTATUS\tCREATED")
			for _, c := range list {
				status := "active"
				if !c.Active {
					status = "revoked"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%02d/%d\t%s\t%s\n",
					c.Token, c.MaskedNumber, c.Brand, c.ExpiryMonth, c.ExpiryYear,
					status, c.CreatedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
