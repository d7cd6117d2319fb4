package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/spf13/cobra"
)

type authenticationView struct {
	TransactionID string                      `json:"transaction_id"`
	Status        domain.AuthenticationStatus `json:"status"`
	Provider      domain.ProviderName         `json:"provider,omitempty"`
	Amount        string                      `json:"amount,omitempty"`
	Currency      string                      `json:"currency,omitempty"`
	ECI           *string                     `json:"eci,omitempty"`
	FailureReason *string                     `json:"failure_reason,omitempty"`
	CreatedAt     *time.Time                  `json:"created_at,omitempty"`
	CompletedAt   *time.Time                  `json:"completed_at,omitempty"`
}

func threeDSCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "3ds",
		Short: "Inspect 3-D Secure authentications",
	}

	status := &cobra.Command{
		Use:   "status <transaction-id>",
		Short: "Show the authentication recorded for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auths, err := d.auths(cmd.Context())
			if err != nil {
				return err
			}
			auth, err := auths.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			view := authenticationView{TransactionID: args[0], Status: domain.AuthStatusNotFound}
			if auth != nil {
				created := auth.CreatedAt
				view = authenticationView{
					TransactionID: auth.TransactionID,
					Status:        auth.Status,
					Provider:      auth.Provider,
					Amount:        auth.Amount.StringFixed(2),
					Currency:      auth.Currency,
					ECI:           auth.ECI,
					FailureReason: auth.FailureReason,
					CreatedAt:     &created,
					CompletedAt:   auth.CompletedAt,
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(view); err != nil {
				return fmt.Errorf("encode authentication: %w", err)
			}
			if auth == nil {
				return domain.NewNotFoundError("authentication for transaction", args[0])
			}
			return nil
		},
	}

	cmd.AddCommand(status)
	return cmd
}
