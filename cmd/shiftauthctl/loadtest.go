package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shiftboard/shiftauth"
	"github.com/shiftboard/shiftauth/mailer"
	"github.com/shiftboard/shiftauth/store/sqlstore"
)

const loadtestPassword = "Load-test-pass-42!"

type loadtestOptions struct {
	accounts    int
	concurrency int
	ops         int
	redisAddr   string
	dir         string
}

// account holds the live token chain of one seeded login. Refreshes of the
// same login are serialized since each rotation consumes the previous token.
type account struct {
	email string
	mu    sync.Mutex
	pair  shiftauth.TokenPair
}

func parseLoadtestFlags(args []string, stderr io.Writer) (loadtestOptions, error) {
	var opts loadtestOptions
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.accounts, "accounts", 200, "number of accounts to sign up")
	fs.IntVar(&opts.concurrency, "concurrency", 32, "number of concurrent workers")
	fs.IntVar(&opts.ops, "ops", 2000, "operations per phase")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; miniredis when empty")
	fs.StringVar(&opts.dir, "dir", "", "directory for the sqlite database; a temp dir when empty")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.accounts <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return opts, errors.New("loadtest: accounts, concurrency and ops must be > 0")
	}
	return opts, nil
}

func runLoadtest(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseLoadtestFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(stdout, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(stdout, "using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr, PoolSize: opts.concurrency * 2})
	defer client.Close()

	dir := opts.dir
	if dir == "" {
		dir, err = os.MkdirTemp("", "shiftauth-loadtest-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
	}
	dsn := "file:" + filepath.Join(dir, "loadtest.db")
	if err := sqlstore.MigrateUp(sqlstore.DriverSQLite, dsn); err != nil {
		return err
	}
	db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := shiftauth.New().
		WithConfig(loadtestConfig()).
		WithRedis(client).
		WithStore(db).
		WithEmailSender(mailer.NewLogSender(discardLogger(), "")).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	accounts := make([]*account, opts.accounts)
	fmt.Fprintf(stdout, "signing up %d accounts...\n", opts.accounts)
	seedStart := time.Now()
	for i := range accounts {
		email := fmt.Sprintf("load-%d@example.com", i)
		res, err := svc.Signup(ctx, shiftauth.SignupRequest{
			Email:       email,
			Password:    loadtestPassword,
			DisplayName: fmt.Sprintf("Load %d", i),
			Role:        shiftauth.RoleWorker,
		})
		if err != nil {
			return fmt.Errorf("signup %s: %w", email, err)
		}
		accounts[i] = &account{email: email, pair: res.Tokens}
	}
	fmt.Fprintf(stdout, "seeded in %s\n", time.Since(seedStart).Round(time.Millisecond))

	signin := runPhase(ctx, opts, func(ctx context.Context, i int) error {
		a := accounts[i%len(accounts)]
		_, err := svc.Signin(ctx, a.email, loadtestPassword, shiftauth.DeviceMeta{Label: "loadtest"})
		return err
	})
	refresh := runPhase(ctx, opts, func(ctx context.Context, i int) error {
		a := accounts[i%len(accounts)]
		a.mu.Lock()
		defer a.mu.Unlock()
		pair, err := svc.Refresh(ctx, a.pair.RefreshToken)
		if err != nil {
			return err
		}
		a.pair = *pair
		return nil
	})
	validate := runPhase(ctx, opts, func(ctx context.Context, i int) error {
		a := accounts[i%len(accounts)]
		a.mu.Lock()
		token := a.pair.AccessToken
		a.mu.Unlock()
		_, err := svc.ValidateAccess(ctx, token)
		return err
	})

	rounds := min(len(accounts), 20)
	if err := runRefreshRace(ctx, svc, accounts[:rounds], opts.concurrency); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "---- results ----")
	printStats(stdout, "signin", signin)
	printStats(stdout, "refresh", refresh)
	printStats(stdout, "validate", validate)
	fmt.Fprintf(stdout, "race     rounds=%d single-winner=%d\n", rounds, rounds)
	return nil
}

// runRefreshRace presents one fresh refresh token from every worker at once
// and fails unless exactly one rotation succeeds per round.
func runRefreshRace(ctx context.Context, svc *shiftauth.Service, accounts []*account, workers int) error {
	workers = max(workers, 2)
	for _, a := range accounts {
		res, err := svc.Signin(ctx, a.email, loadtestPassword, shiftauth.DeviceMeta{Label: "race"})
		if err != nil {
			return fmt.Errorf("race signin %s: %w", a.email, err)
		}

		var (
			wg    sync.WaitGroup
			wins  int64
			start = make(chan struct{})
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := svc.Refresh(ctx, res.Tokens.RefreshToken); err == nil {
					atomic.AddInt64(&wins, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if wins != 1 {
			return fmt.Errorf("refresh race for %s: %d winners", a.email, wins)
		}
	}
	return nil
}

// loadtestConfig disables throttles and uses the cheapest accepted hash
// parameters so the run measures the token path rather than the KDF.
func loadtestConfig() shiftauth.Config {
	cfg := shiftauth.DefaultConfig()
	cfg.Tokens.AccessSecret = randomSecret()
	cfg.Tokens.RefreshSecret = randomSecret()
	cfg.Tokens.Issuer = "shiftauth-loadtest"
	cfg.Password.Algorithm = "argon2id"
	cfg.Password.Argon2.Memory = 8 * 1024
	cfg.Password.Argon2.Time = 1
	cfg.Password.Argon2.Parallelism = 1
	cfg.Password.UpgradeOnLogin = false
	cfg.RateLimit.Enabled = false
	cfg.Lockout.MaxAttempts = 1000
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// runPhase executes opts.ops calls of fn spread over opts.concurrency
// workers. Each call receives a unique sequence number.
func runPhase(ctx context.Context, opts loadtestOptions, fn func(ctx context.Context, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.ops)
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, opts.ops/opts.concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= opts.ops || ctx.Err() != nil {
					break
				}
				t0 := time.Now()
				if err := fn(ctx, i); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
