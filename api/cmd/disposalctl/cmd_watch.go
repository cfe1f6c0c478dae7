package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/config"
	"disposal-bot/api/internal/refresh"
)

// terminalHost is always visible and focused; a terminal has no tabs.
type terminalHost struct{}

func (terminalHost) Visible() bool                             { return true }
func (terminalHost) Focused() bool                             { return true }
func (terminalHost) Subscribe(func(refresh.Event)) (unsub func()) { return func() {} }

type watchOptions struct {
	email    string
	password string
	interval time.Duration
	baseURL  string
}

func newWatchCommand() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:       "watch <disposals|pickups>",
		Short:     "Print disposal or pickup records whenever they change",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"disposals", "pickups"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.baseURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				opts.baseURL = cfg.BackendURL
				if opts.interval <= 0 {
					opts.interval = cfg.RefreshInterval
				}
			}
			if opts.email == "" {
				opts.email = os.Getenv("DISPOSAL_EMAIL")
			}
			if opts.password == "" {
				opts.password = os.Getenv("DISPOSAL_PASSWORD")
			}
			return runWatch(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "Account email (or DISPOSAL_EMAIL)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Account password (or DISPOSAL_PASSWORD)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Refresh interval (defaults to REFRESH_INTERVAL)")
	cmd.Flags().StringVar(&opts.baseURL, "backend", "", "Backend base URL (defaults to BACKEND_URL)")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, what string, opts watchOptions) error {
	if what != "disposals" && what != "pickups" {
		return fmt.Errorf("watch: unknown list %q, want disposals or pickups", what)
	}
	if opts.email == "" || opts.password == "" {
		return errors.New("watch: --email and --password are required")
	}
	base := backend.New(opts.baseURL, backend.WithLogger(slog.Default()))
	lr, err := base.Login(ctx, opts.email, opts.password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c := base.WithToken(lr.Token)

	var latest refresh.Latest[string]
	fn := func(ctx context.Context, kind refresh.Kind) error {
		seq := latest.Begin()
		table, err := renderList(ctx, c, what)
		if err != nil {
			return err
		}
		if latest.Commit(seq, table) == refresh.Applied {
			fmt.Fprintf(out, "--- %s %s\n%s", what, time.Now().Format(time.TimeOnly), table)
		}
		return nil
	}

	err = refresh.New(terminalHost{}, opts.interval, fn, slog.Default()).Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func renderList(ctx context.Context, c *backend.Client, what string) (string, error) {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	switch what {
	case "disposals":
		ds, err := c.ListDisposals(ctx)
		if err != nil {
			return "", err
		}
		fmt.Fprintln(tw, "ID\tMEDICINE\tRISK\tSTATUS")
		for _, d := range ds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.GenericName, d.RiskLevel, d.Status)
		}
	case "pickups":
		ps, err := c.ListPickups(ctx)
		if err != nil {
			return "", err
		}
		fmt.Fprintln(tw, "ID\tMEDICINE\tCHW\tSTATUS\tWHEN")
		for _, p := range ps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.MedicineName, p.CHWName, p.Status, p.PreferredTime)
		}
	}
	if err := tw.Flush(); err != nil {
		return "", err
	}
	return b.String(), nil
}
