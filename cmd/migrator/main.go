package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/logger"
)

const (
	dsnFlag           = "dsn"
	migrationPathFlag = "migrations-path"
	downFlag          = "down"
)

func main() {
	log := logger.New(logger.Options{ServiceName: "cart-migrator", Format: "console"})

	dsn, migrationsPath, down := getFlagsValues(log)
	validateFlags(log, dsn, migrationsPath)
	if err := makeMigrations(log, dsn, migrationsPath, down); err != nil {
		log.Error().Err(err).Msg("failed to migrate")
		fallDown()
	}
}

type MigrationLogger struct {
	logger  zerolog.Logger
	verbose bool
}

func NewMigrationLogger(log zerolog.Logger) *MigrationLogger {
	return &MigrationLogger{
		logger:  log,
		verbose: true,
	}
}

func (ml *MigrationLogger) Printf(format string, v ...any) {
	ml.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (ml *MigrationLogger) Verbose() bool {
	return ml.verbose
}

// getFlagsValues falls back to CART_MYSQL_DSN when --dsn is not given.
func getFlagsValues(log zerolog.Logger) (dsn, migrations string, down bool) {
	var defaultDSN string
	if cfg, err := config.Load(); err == nil {
		defaultDSN = cfg.MySQL.DSN
	} else {
		log.Warn().Err(err).Msg("config not loaded, --dsn is required")
	}

	dsnValue := pflag.StringP(dsnFlag, "d", defaultDSN, "MySQL DSN, user:pass@tcp(host:port)/db")
	migrationsPath := pflag.StringP(migrationPathFlag, "m", "migrations", "directory holding *.sql migrations")
	downValue := pflag.Bool(downFlag, false, "roll back every migration")
	pflag.Parse()
	return *dsnValue, *migrationsPath, *downValue
}

func validateFlags(log zerolog.Logger, dsn, migrationsPath string) {
	var errs []error

	if dsn == "" {
		errs = append(errs, fmt.Errorf("--%s flag: required", dsnFlag))
	}

	if migrationsPath == "" {
		errs = append(errs, fmt.Errorf("--%s flag: required", migrationPathFlag))
	}

	if len(errs) != 0 {
		log.Error().Err(errors.Join(errs...)).Msg("too few args")
		fallDown()
	}
}

// makeMigrations closes the migrator before returning so callers may exit.
func makeMigrations(log zerolog.Logger, dsn, migrationsPath string, down bool) (err error) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		fmt.Sprintf("mysql://%s", withMultiStatements(dsn)),
	)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	m.Log = NewMigrationLogger(log)

	run, action := m.Up, "applied"
	if down {
		run, action = m.Down, "rolled back"
	}

	if err := run(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.Log.Printf("no migrations to apply")
			return nil
		}
		return err
	}
	m.Log.Printf("migrations %s", action)
	return nil
}

func withMultiStatements(dsn string) string {
	if strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}

func fallDown() {
	os.Exit(2)
}
