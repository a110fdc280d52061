package main

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Write an example config file and initialize the run journal",
		Action: r.Setup,
	}
}

// Setup creates the config file when it is missing and migrates the journal database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return err
		}
		r.writePlain("✓ Wrote example config to %s\n", r.configPath)

		if !r.configFixed {
			if err := r.loadConfig(); err != nil {
				return err
			}
		}
	} else {
		r.writePlain("Using config %s\n", r.configPath)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, err := r.runs(); err != nil {
		return errors.Wrap(err, "failed to initialize the run journal")
	}
	r.writePlain("✓ Run journal ready at %s\n", r.config.Database.Path)

	if err := r.config.Validate(); err != nil {
		r.writePlainln("Next steps:")
		for _, hint := range shared.Hints(err) {
			r.writePlain("- %s\n", hint)
		}
		r.writePlain("- run 'spotsync auth login --account <name>' to connect an account\n")
		return nil
	}

	r.writePlainln("Next: run 'spotsync auth login --account <name>' to connect an account")
	return nil
}
