package main

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func accountFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "account",
		Aliases: []string{"a"},
		Usage:   "Account identity (defaults to the configured account for the command)",
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify account authorizations",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize an account in the browser and cache its token",
				Flags:  []cli.Flag{accountFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Delete the cached token of an account",
				Flags:  []cli.Flag{accountFlag()},
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "List the accounts with a cached token",
				Action: r.AuthStatus,
			},
		},
	}
}

// AuthLogin authenticates the account, running the browser handshake when no token is cached.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	session, err := r.session(ctx, cmd, "")
	if err != nil {
		return err
	}

	name := session.User.DisplayName
	if name == "" {
		name = session.User.ID
	}
	r.writePlain("✓ Logged in as %s (%s)\n", session.Identity, name)
	return nil
}

// AuthLogout forgets the cached token. It needs no credentials.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	identity := r.identity(cmd, "")
	if identity == "" {
		return errors.WithHint(
			errors.Wrap(shared.ErrMissingArgument, "account identity"),
			"pass --account or set SPOTIFY_USERNAME",
		)
	}

	if err := services.NewTokenCache(r.config.Cache.Dir).Delete(identity); err != nil {
		return err
	}
	r.writePlain("✓ Logged out %s\n", identity)
	return nil
}

// AuthStatus lists the identities found in the token cache.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	cache := services.NewTokenCache(r.config.Cache.Dir)
	identities, err := cache.Identities()
	if err != nil {
		return err
	}

	if len(identities) == 0 {
		r.writePlain("No cached accounts in %s\n", cache.Dir())
		return nil
	}

	slices.Sort(identities)
	r.writePlain("Cached accounts in %s:\n", cache.Dir())
	for _, id := range identities {
		if id == r.config.Accounts.Default {
			r.writePlain("  %s (default)\n", id)
		} else {
			r.writePlain("  %s\n", id)
		}
	}
	return nil
}
