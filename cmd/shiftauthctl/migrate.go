package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/shiftboard/shiftauth"
	"github.com/shiftboard/shiftauth/store/sqlstore"
)

func runMigrate(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("migrate: missing direction (up, down or version)")
	}
	cfg, err := shiftauth.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	driver, dsn := cfg.Stores.DatabaseDriver, cfg.Stores.DatabaseURL
	if dsn == "" {
		return errors.New("migrate: SHIFTAUTH_DATABASE_URL is not set")
	}

	switch args[0] {
	case "up":
		if err := sqlstore.MigrateUp(driver, dsn); err != nil {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps < 1 {
				return fmt.Errorf("migrate down: invalid step count %q", args[1])
			}
		}
		if err := sqlstore.MigrateDown(driver, dsn, steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("migrate: unknown direction %q", args[0])
	}

	version, dirty, err := sqlstore.MigrationVersion(driver, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
