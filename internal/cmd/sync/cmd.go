// Package sync implements the `sync` command, the reconciliation entry point.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rosterlabs/signsync/internal/config"
	"github.com/rosterlabs/signsync/internal/credentials"
	"github.com/rosterlabs/signsync/internal/directory"
	"github.com/rosterlabs/signsync/internal/engine"
	"github.com/rosterlabs/signsync/internal/http"
	"github.com/rosterlabs/signsync/internal/msg"
	"github.com/rosterlabs/signsync/internal/report/table"
)

var (
	syncUse   = "sync"
	syncShort = "Reconcile directory users against the signing service"

	defaultTimeout = 60 * time.Second
)

// gFlags contains all global flags that are set when 'sync' is invoked.
var gFlags = globalFlags{}

type globalFlags struct {
	cfgFilePath     string
	dryRun          bool
	createUsers     bool
	deactivateUsers bool
	workers         int
	timeout         time.Duration
}

// Command creates the `sync` command
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:          syncUse,
		Short:        syncShort,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&gFlags.cfgFilePath, "config", "c", "sync.yml", "Specifies which sync config file to use.")
	flags.BoolVar(&gFlags.dryRun, "dry-run", false, "Plan and classify, but issue no writes.")
	flags.BoolVar(&gFlags.createUsers, "create-users", false, "Insert directory users missing from the roster.")
	flags.BoolVar(&gFlags.deactivateUsers, "deactivate-users", false, "Deactivate roster users missing from the directory.")
	flags.IntVar(&gFlags.workers, "workers", 1, "Number of concurrent write workers.")
	flags.DurationVar(&gFlags.timeout, "timeout", defaultTimeout, "Per-request timeout for roster calls.")

	return cmd
}

// Run executes the sync command.
func Run(cmd *cobra.Command) error {
	cfg, err := config.FromFile(gFlags.cfgFilePath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd.Flags(), &cfg)

	ctx := cmd.Context()

	conn, err := connector(cfg)
	if err != nil {
		return err
	}

	orgs, err := orgServices(ctx, cfg)
	if err != nil {
		return err
	}

	groups := append(cfg.DirectoryGroups(), cfg.Identity.Groups...)
	users, err := conn.LoadUsersAndGroups(ctx, groups, cfg.Identity.ExtendedAttributes, cfg.Identity.AllUsers)
	if err != nil {
		return fmt.Errorf("unable to load directory users: %w", err)
	}
	log.Info().Msgf("Loaded %d directory users", len(users))

	e := engine.New(engine.Options{
		CreateUsers:     cfg.UserSync.CreateUsers,
		DeactivateUsers: cfg.UserSync.DeactivateUsers,
		DryRun:          gFlags.dryRun,
		DefaultGroup:    cfg.DefaultGroup,
		SignOnlyLimit:   cfg.UserSync.SignOnlyLimit,
		Workers:         cfg.UserSync.Workers,
	}, cfg.GroupMappings, orgs)

	res, err := e.Run(ctx, users)
	if err != nil {
		return err
	}

	res.LogSummary(cfg.UserSync.CreateUsers, cfg.UserSync.DeactivateUsers)
	reporter := table.Reporter{
		Dst:             os.Stdout,
		CreateUsers:     cfg.UserSync.CreateUsers,
		DeactivateUsers: cfg.UserSync.DeactivateUsers,
	}
	reporter.Render(res)

	return nil
}

// applyFlagOverrides lets explicit command line flags override the file
// settings.
func applyFlagOverrides(f *pflag.FlagSet, cfg *config.Sync) {
	if f.Changed("create-users") {
		cfg.UserSync.CreateUsers = gFlags.createUsers
	}
	if f.Changed("deactivate-users") {
		cfg.UserSync.DeactivateUsers = gFlags.deactivateUsers
	}
	if f.Changed("workers") {
		cfg.UserSync.Workers = gFlags.workers
	}
}

func connector(cfg config.Sync) (directory.Connector, error) {
	switch cfg.Identity.Type {
	case config.IdentityCSV:
		return directory.NewCSVConnector(cfg.Identity.Path), nil
	case config.IdentityLDAP:
		return directory.NewLDAPConnector(cfg.Identity.LDAP), nil
	}
	return nil, fmt.Errorf(msg.InvalidIdentitySource, cfg.Identity.Type)
}

// orgServices builds one roster client per configured organization and
// validates its integration key up front. A rejected key is a configuration
// error; the run does not start.
func orgServices(ctx context.Context, cfg config.Sync) ([]engine.Org, error) {
	fallback := credentials.Get()

	var orgs []engine.Org
	for _, org := range cfg.Orgs {
		key := org.IntegrationKey
		if key == "" {
			key = fallback.IntegrationKey
		}
		if key == "" {
			return nil, errors.New(msg.EmptyCredentials)
		}

		timeout := org.Timeout
		if timeout <= 0 {
			timeout = gFlags.timeout
		}

		svc := http.NewSignService(org.URL(), key, org.Version(), org.Console, timeout)
		if err := svc.ValidateKey(ctx); err != nil {
			return nil, fmt.Errorf("org %s: %s: %w", org.Name, msg.InvalidIntegrationKey, err)
		}
		orgs = append(orgs, engine.Org{Name: org.Name, Service: &svc})
	}
	return orgs, nil
}
