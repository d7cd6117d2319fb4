package main

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/redis"
	"github.com/spf13/cobra"
)

func blacklistCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blacklisted IPs, customers and payment methods",
		Long: `Manage the blacklist consulted by fraud scoring.

Kinds: ip, customer, payment_method.

Examples:
  securityctl blacklist add ip 203.0.113.7
  securityctl blacklist check customer cust-42
  securityctl blacklist list payment_method`,
	}
	cmd.AddCommand(
		blacklistEditCmd(d, "add", "Add a value to the blacklist", func(ctx context.Context, b blacklistStore, kind application.BlacklistKind, v string) error {
			return b.Add(ctx, kind, v)
		}),
		blacklistEditCmd(d, "remove", "Remove a value from the blacklist", func(ctx context.Context, b blacklistStore, kind application.BlacklistKind, v string) error {
			return b.Remove(ctx, kind, v)
		}),
		blacklistCheckCmd(d),
		blacklistListCmd(d),
	)
	return cmd
}

func parseKind(s string) (application.BlacklistKind, error) {
	kind, err := redis.ParseBlacklistKind(s)
	if err != nil {
		v := &domain.ValidationError{}
		v.Add("kind", err.Error())
		return "", v
	}
	return kind, nil
}

func blacklistEditCmd(
	d *deps,
	verb, short string,
	apply func(ctx context.Context, b blacklistStore, kind application.BlacklistKind, value string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <kind> <value>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			b, err := d.blacklist(cmd.Context())
			if err != nil {
				return err
			}
			if err := apply(cmd.Context(), b, kind, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", verb, kind, args[1])
			return nil
		},
	}
}

func blacklistCheckCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "check <kind> <value>",
		Short: "Report whether a value is blacklisted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			b, err := d.blacklist(cmd.Context())
			if err != nil {
				return err
			}

			var listed bool
			switch kind {
			case application.BlacklistIP:
				listed, err = b.IsIPBlacklisted(cmd.Context(), args[1])
			case application.BlacklistCustomer:
				listed, err = b.IsCustomerBlacklisted(cmd.Context(), args[1])
			case application.BlacklistPaymentMethod:
				listed, err = b.IsPaymentMethodBlacklisted(cmd.Context(), args[1])
			}
			if err != nil {
				return err
			}

			if listed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is blacklisted\n", kind, args[1])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is not blacklisted\n", kind, args[1])
			}
			return nil
		},
	}
}

func blacklistListCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list <kind>",
		Short: "List every blacklisted value of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			b, err := d.blacklist(cmd.Context())
			if err != nil {
				return err
			}
			members, err := b.Members(cmd.Context(), kind)
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}
