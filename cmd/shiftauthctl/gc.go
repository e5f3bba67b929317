package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/shiftboard/shiftauth"
	"github.com/shiftboard/shiftauth/ephemeral"
	"github.com/shiftboard/shiftauth/mailer"
	"github.com/shiftboard/shiftauth/observability"
	"github.com/shiftboard/shiftauth/store/sqlstore"
)

// runGC builds a full Service from the environment so the purge goes
// through the same retention settings as the serving process.
func runGC(ctx context.Context, args []string, logger *slog.Logger, stdout io.Writer) error {
	cfg, err := shiftauth.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	fs.DurationVar(&cfg.Retention.Grace, "retention", cfg.Retention.Grace, "keep expired and revoked rows this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Stores.DatabaseURL == "" {
		return errors.New("gc: SHIFTAUTH_DATABASE_URL is not set")
	}

	db, err := sqlstore.Open(ctx, cfg.Stores.DatabaseDriver, cfg.Stores.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rcfg := ephemeral.DefaultConfig()
	rcfg.URL = cfg.Stores.RedisURL
	rcfg.Prefix = cfg.Stores.KeyPrefix
	store, client, err := ephemeral.Open(ctx, rcfg)
	if err != nil {
		return err
	}
	defer client.Close()

	svc, err := shiftauth.New().
		WithConfig(cfg).
		WithEphemeralStore(store).
		WithStore(db).
		WithEmailSender(mailer.NewLogSender(logger, "")).
		WithLogger(logger).
		WithErrorReporter(observability.NewSentryReporter(nil)).
		Build()
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	res, err := svc.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "purged %d refresh tokens and %d one-time tokens\n", res.RefreshTokens, res.OneTimeTokens)
	return nil
}
