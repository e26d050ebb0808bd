package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/bobuk/ex2gcal/internal/providers/google"
)

var errMissingClient = errors.New("client_id and client_secret of the Google OAuth app must be configured")

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to the Google calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return authorize(cmd, a)
		},
	}
}

func authorize(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return errMissingClient
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	a.printf("🚀 Starting Google authorization for account %s...\n", bold(cfg.Google.Account))
	oauthConfig := google.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.Google.RedirectURL)
	tok, err := google.TokenFromWeb(ctx, oauthConfig, cmd.InOrStdin(), a.out)
	if err != nil {
		return err
	}
	if err := store.SaveToken(ctx, cfg.Google.Account, tok); err != nil {
		return err
	}

	dst, err := NewCalendarFactory(ctx, a).Destination()
	if err != nil {
		return err
	}
	summary, err := dst.Check(ctx)
	if err != nil {
		return err
	}
	a.printf("%s\n", green("✅ Authorized, mirroring into "+summary+" ("+dst.CalendarID()+")"))
	return nil
}
