// Package cli implements the binmap command tree.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"binmap/internal/config"
	"binmap/internal/core"
	"binmap/internal/identity"
	"binmap/internal/logging"
	"binmap/pkg/domain"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	dir     *identity.StaticDirectory
	closers []func() error
}

func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "binmap")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, dir: identity.NewStaticDirectory()}
	if cfg.Identity.UsersFile != "" {
		dir, err := identity.LoadFile(cfg.Identity.UsersFile)
		if err != nil {
			return nil, err
		}
		a.dir = dir
	}
	return a, nil
}

// service opens the configured store and builds the engine over it.
func (a *app) service(ctx context.Context, opts ...core.Option) (*core.Service, error) {
	engine := core.NewDefaultRulesEngine(a.cfg.Engine.MaxRevisions)
	store, closeFn, err := core.OpenPersistentStore(ctx, a.cfg.Storage, engine)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	base := []core.Option{
		core.WithLogger(a.logger),
		core.WithLockTTL(a.cfg.Engine.LockTTL),
		core.WithRevisionLimit(a.cfg.Engine.MaxRevisions),
	}
	return core.NewService(store, append(base, opts...)...), nil
}

// caller resolves the --user / --org flags through the user directory.
func (a *app) caller(ctx context.Context, cmd *cobra.Command) (domain.CallerContext, error) {
	user, _ := cmd.Flags().GetString("user")
	org, _ := cmd.Flags().GetString("org")
	return a.dir.Resolve(ctx, user, org)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// withService runs fn with a caller and an engine, releasing both after.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *core.Service, caller domain.CallerContext) error) (err error) {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	caller, err := a.caller(ctx, cmd)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, svc, caller)
}

func addCallerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("user", "", "acting user id")
	cmd.PersistentFlags().String("org", "", "organization id")
}
