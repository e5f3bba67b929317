package shiftauth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadConfigFromEnv returns DefaultConfig overridden by SHIFTAUTH_*
// environment variables. The result is not validated; Build does that.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func loadConfig(lookup lookupFunc) (Config, error) {
	cfg := DefaultConfig()
	var err error

	if v, ok := lookup("SHIFTAUTH_ACCESS_SECRET"); ok {
		cfg.Tokens.AccessSecret = []byte(v)
	}
	if v, ok := lookup("SHIFTAUTH_REFRESH_SECRET"); ok {
		cfg.Tokens.RefreshSecret = []byte(v)
	}
	if cfg.Tokens.AccessTTL, err = envDuration(lookup, "SHIFTAUTH_ACCESS_TTL", cfg.Tokens.AccessTTL); err != nil {
		return cfg, err
	}
	if cfg.Tokens.RefreshTTL, err = envDuration(lookup, "SHIFTAUTH_REFRESH_TTL", cfg.Tokens.RefreshTTL); err != nil {
		return cfg, err
	}
	cfg.Tokens.Issuer = envString(lookup, "SHIFTAUTH_ISSUER", cfg.Tokens.Issuer)
	cfg.Tokens.Audience = envString(lookup, "SHIFTAUTH_AUDIENCE", cfg.Tokens.Audience)
	if cfg.Tokens.BlacklistFailClosed, err = envBool(lookup, "SHIFTAUTH_BLACKLIST_FAIL_CLOSED", cfg.Tokens.BlacklistFailClosed); err != nil {
		return cfg, err
	}

	if cfg.Lockout.MaxAttempts, err = envInt(lookup, "SHIFTAUTH_MAX_LOGIN_ATTEMPTS", cfg.Lockout.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.Lockout.Duration, err = envDuration(lookup, "SHIFTAUTH_LOCKOUT_DURATION", cfg.Lockout.Duration); err != nil {
		return cfg, err
	}
	if cfg.Password.BcryptCost, err = envInt(lookup, "SHIFTAUTH_BCRYPT_COST", cfg.Password.BcryptCost); err != nil {
		return cfg, err
	}
	if cfg.Verification.RequireForSignin, err = envBool(lookup, "SHIFTAUTH_REQUIRE_VERIFIED_EMAIL", cfg.Verification.RequireForSignin); err != nil {
		return cfg, err
	}

	cfg.Stores.RedisURL = envString(lookup, "SHIFTAUTH_REDIS_URL", cfg.Stores.RedisURL)
	cfg.Stores.KeyPrefix = envString(lookup, "SHIFTAUTH_KEY_PREFIX", cfg.Stores.KeyPrefix)
	cfg.Stores.DatabaseURL = envString(lookup, "SHIFTAUTH_DATABASE_URL", cfg.Stores.DatabaseURL)
	cfg.Stores.DatabaseDriver = strings.ToLower(envString(lookup, "SHIFTAUTH_DATABASE_DRIVER", cfg.Stores.DatabaseDriver))

	return cfg, nil
}

func envString(lookup lookupFunc, key, def string) string {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func envInt(lookup lookupFunc, key string, def int) (int, error) {
	v := envString(lookup, key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

// envDuration accepts Go durations ("15m") or bare seconds ("900").
func envDuration(lookup lookupFunc, key string, def time.Duration) (time.Duration, error) {
	v := envString(lookup, key, "")
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func envBool(lookup lookupFunc, key string, def bool) (bool, error) {
	v := envString(lookup, key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
