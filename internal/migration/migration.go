package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&vendordomain.Vendor{},
		&menudomain.Menu{},
		&subscriptiondomain.MealSubscription{},
		&bundledomain.MonthlySubscription{},
		&bundledomain.Member{},
		&paymentdomain.Payment{},
		&sweeperdomain.SweepRun{},
	}
}

// Run applies the schema for the connected dialect. Postgres uses the
// embedded SQL migrations; sqlite and mysql development setups use AutoMigrate.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn)
}

func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
