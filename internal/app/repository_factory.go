package app

import (
	"database/sql"
	"errors"
	"fmt"

	billingDomain "github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	billingPersistence "github.com/felixgeelhaar/tutorhub/internal/billing/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/tutorhub/internal/shared/application"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryFactory builds the billing stores for one database driver.
type RepositoryFactory struct {
	driver database.Driver
	pool   *pgxpool.Pool
	db     *sql.DB
}

// NewPostgresRepositoryFactory creates a factory backed by a pgx pool.
func NewPostgresRepositoryFactory(pool *pgxpool.Pool) *RepositoryFactory {
	return &RepositoryFactory{driver: database.DriverPostgres, pool: pool}
}

// NewSQLiteRepositoryFactory creates a factory backed by a SQLite handle.
func NewSQLiteRepositoryFactory(db *sql.DB) *RepositoryFactory {
	return &RepositoryFactory{driver: database.DriverSQLite, db: db}
}

// Driver returns the driver the factory builds for.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}

// build calls the constructor matching the factory's driver.
func build[T any](f *RepositoryFactory, onPostgres func(*pgxpool.Pool) T, onSQLite func(*sql.DB) T) (T, error) {
	var zero T
	switch f.driver {
	case database.DriverPostgres:
		if f.pool == nil {
			return zero, errors.New("no PostgreSQL pool configured")
		}
		return onPostgres(f.pool), nil
	case database.DriverSQLite:
		if f.db == nil {
			return zero, errors.New("no SQLite database configured")
		}
		return onSQLite(f.db), nil
	default:
		return zero, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

func (f *RepositoryFactory) SubscriptionRepository() (billingDomain.SubscriptionRepository, error) {
	return build(f,
		func(p *pgxpool.Pool) billingDomain.SubscriptionRepository {
			return billingPersistence.NewPostgresSubscriptionRepository(p)
		},
		func(db *sql.DB) billingDomain.SubscriptionRepository {
			return billingPersistence.NewSQLiteSubscriptionRepository(db)
		})
}

func (f *RepositoryFactory) AuditRepository() (billingDomain.AuditRepository, error) {
	return build(f,
		func(p *pgxpool.Pool) billingDomain.AuditRepository {
			return billingPersistence.NewPostgresAuditRepository(p)
		},
		func(db *sql.DB) billingDomain.AuditRepository {
			return billingPersistence.NewSQLiteAuditRepository(db)
		})
}

func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	return build(f,
		func(p *pgxpool.Pool) outbox.Repository { return outbox.NewPostgresRepository(p) },
		func(db *sql.DB) outbox.Repository { return outbox.NewSQLiteRepository(db) })
}

// UnitOfWork returns the transaction boundary shared by the repositories above.
func (f *RepositoryFactory) UnitOfWork() (sharedApplication.UnitOfWork, error) {
	return build(f,
		func(p *pgxpool.Pool) sharedApplication.UnitOfWork { return sharedPersistence.NewPostgresUnitOfWork(p) },
		func(db *sql.DB) sharedApplication.UnitOfWork { return sharedPersistence.NewSQLiteUnitOfWork(db) })
}
