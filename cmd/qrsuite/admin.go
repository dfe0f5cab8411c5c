package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/queue"
)

func newSweepCmd() *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark every overdue Active link as Expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if enqueue {
				client := asynq.NewClient(queue.RedisOpt(a.Cfg.Redis.Addr, a.Cfg.Redis.Password, a.Cfg.Redis.DB))
				defer client.Close()
				id, err := queue.EnqueueSweep(ctx, client)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued sweep task %s\n", id)
				return nil
			}
			n, err := a.Service.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d link(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Hand the sweep to the worker queue instead of running it here")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <link-id>",
		Short: "Revoke a link so it no longer resolves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			l, err := a.Service.Revoke(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", l.ID, l.Status)
			return nil
		},
	}
}

func newMintCmd() *cobra.Command {
	var (
		req     core.MintRequest
		kind    string
		mode    string
		expires string
		params  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a link as the operator and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req.Kind = core.TargetKind(kind)
			req.AddressMode = core.AddressMode(mode)
			req.ExtraParams = params
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("--expires: %w", err)
				}
				req.ExpiresAt = &t
			}
			operator := core.Principal{Name: "cli", Roles: a.Policy.Roles()}
			l, err := a.Service.Mint(ctx, operator, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(l)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TargetType, "type", "", "Target type, e.g. Asset")
	f.StringVar(&req.TargetName, "name", "", "Target record name")
	f.StringVar(&kind, "kind", string(core.DocumentQR), `"Document QR" or "Value QR"`)
	f.StringVar(&req.Template, "template", "", "Template name")
	f.StringVar(&req.Action, "action", "", "Action for Document QR (default depends on type)")
	f.StringVar(&mode, "mode", "", "Address mode: token or direct")
	f.StringVar(&req.CustomURLPrefix, "prefix", "", "Custom URL prefix for direct mode")
	f.StringToStringVar(&params, "param", nil, "Extra query parameter key=value (repeatable)")
	f.StringVar(&req.RedirectURL, "redirect", "", "Fixed redirect URL")
	f.StringVar(&expires, "expires", "", "Expiry as RFC 3339")
	f.StringVar(&req.CustomValue, "value", "", "Custom content for Value QR")
	f.StringVar(&req.ValueField, "value-field", "", "Target field to encode for Value QR")
	f.BoolVar(&req.IncludeLabel, "label", false, "Store a label for renderers")
	f.StringVar(&req.LabelText, "label-text", "", "Label text (default target name)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		name  string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.Auth.Issue(name, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "user", "", "Principal name (JWT subject)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"QR Manager"}, "Role to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
