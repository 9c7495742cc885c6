package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gartstein/orderdesk/internal/orders/auth"
	"github.com/gartstein/orderdesk/internal/orders/db/models"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	domain "github.com/gartstein/orderdesk/internal/orders/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Repository is the persistence boundary. A Repository handed to
// WithTransaction or View callbacks is bound to that transaction.
type Repository struct {
	db *gorm.DB
	// reader serves View. On a SQLite file it is a second pool whose
	// transactions start deferred, so reads never take the write lock.
	reader *gorm.DB
	readTx *sql.TxOptions
	seed   AdminSeed
	logger *zap.Logger
}

// AdminSeed describes the administrator account created on first start.
type AdminSeed struct {
	Password string
	// Cost is the bcrypt cost used for the seed and for rehashing legacy
	// plaintext credentials.
	Cost int
}

type Config struct {
	Driver string
	// Path is the SQLite database file, or ":memory:".
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// BusyTimeout bounds how long a statement waits on a lock held by
	// another session before failing with ErrStoreContention.
	BusyTimeout  time.Duration
	MaxOpenConns int
	// LogLevel is one of silent, error, warn, info.
	LogLevel string
	Admin    AdminSeed
}

// NewRepository opens the configured store and initializes the schema.
func NewRepository(ctx context.Context, cfg *Config, logger *zap.Logger) (*Repository, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	gdb, err := openPool(dialector, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo := &Repository{db: gdb, reader: gdb, seed: cfg.Admin, logger: logger.Named("repository")}
	switch {
	case isPostgres(cfg):
		repo.readTx = &sql.TxOptions{ReadOnly: true}
	case sqlitePath(cfg) != ":memory:":
		reader, err := openPool(sqlite.Open(sqliteDSN(sqlitePath(cfg), busyTimeout(cfg), "deferred")), cfg, logger)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		repo.reader = reader
	}

	if err := repo.Initialize(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func openPool(dialector gorm.Dialector, cfg *Config, logger *zap.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		// translate needs the driver error to tell which key was violated
		TranslateError: false,
		Logger:         newGormLogger(logger, cfg.LogLevel),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if !isPostgres(cfg) && sqlitePath(cfg) == ":memory:" {
		// every connection to :memory: would see its own empty database
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return gdb, nil
}

func isPostgres(cfg *Config) bool {
	return strings.EqualFold(cfg.Driver, DriverPostgres)
}

func sqlitePath(cfg *Config) string {
	if cfg.Path == "" {
		return "orderdesk.db"
	}
	return cfg.Path
}

func busyTimeout(cfg *Config) time.Duration {
	if cfg.BusyTimeout <= 0 {
		return 5 * time.Second
	}
	return cfg.BusyTimeout
}

// sqliteDSN builds the connection string. txlock is the BEGIN mode:
// immediate for writers, deferred for readers.
func sqliteDSN(path string, busy time.Duration, txlock string) string {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d&_txlock=%s&_synchronous=NORMAL",
		path, busy.Milliseconds(), txlock)
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	return dsn
}

func dialectorFor(cfg *Config) (gorm.Dialector, error) {
	busy := busyTimeout(cfg)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		return sqlite.Open(sqliteDSN(sqlitePath(cfg), busy, "immediate")), nil
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s lock_timeout=%d",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, busy.Milliseconds())
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func newGormLogger(logger *zap.Logger, level string) gormlogger.Interface {
	levels := map[string]gormlogger.LogLevel{
		"silent": gormlogger.Silent,
		"error":  gormlogger.Error,
		"warn":   gormlogger.Warn,
		"info":   gormlogger.Info,
	}
	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		lvl = gormlogger.Silent
	}
	return gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

// Initialize creates missing tables and columns, seeds the administrator
// and rehashes plaintext credentials left by older data. It is safe to run
// on every start.
func (r *Repository) Initialize(ctx context.Context) error {
	added, err := r.migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", translate(err))
	}

	return r.WithTransaction(ctx, func(tx *Repository) error {
		if err := tx.backfillOrderDates(ctx, added[serviceOrdersTable]); err != nil {
			return err
		}
		if err := tx.seedAdmin(ctx); err != nil {
			return err
		}
		return tx.rehashPlaintext(ctx)
	})
}

func (r *Repository) seedAdmin(ctx context.Context) error {
	var admin models.User
	err := r.db.WithContext(ctx).Where("username = ?", domain.AdminUsername).Take(&admin).Error
	switch {
	case err == nil:
		if admin.IsAdmin {
			return nil
		}
		r.logger.Info("restoring administrator flag", zap.String("username", admin.Username))
		return translate(r.db.WithContext(ctx).Model(&admin).Update("is_admin", true).Error)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return translate(err)
	}

	if r.seed.Password == "" {
		return fmt.Errorf("%w: administrator password not configured", e.ErrInvalidInput)
	}
	hash, err := auth.HashPassword(r.seed.Password, r.seed.Cost)
	if err != nil {
		return fmt.Errorf("failed to hash administrator password: %w", err)
	}
	err = r.db.WithContext(ctx).Create(&models.User{
		Username:     domain.AdminUsername,
		PasswordHash: hash,
		IsAdmin:      true,
	}).Error
	if err = translate(err); errors.Is(err, e.ErrDuplicate) {
		// seeded concurrently by another process
		return nil
	}
	if err == nil {
		r.logger.Info("seeded administrator account", zap.String("username", domain.AdminUsername))
	}
	return err
}

func (r *Repository) rehashPlaintext(ctx context.Context) error {
	var users []models.User
	if err := r.db.WithContext(ctx).Select("id", "username", "password_hash").Find(&users).Error; err != nil {
		return translate(err)
	}
	for _, u := range users {
		if auth.IsHash(u.PasswordHash) {
			continue
		}
		hash, err := auth.HashPassword(u.PasswordHash, r.seed.Cost)
		if err != nil {
			return fmt.Errorf("failed to rehash credential of %q: %w", u.Username, err)
		}
		if err := r.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return err
		}
		r.logger.Info("migrated plaintext credential", zap.String("username", u.Username))
	}
	return nil
}

// WithTransaction runs fn as one unit of work. Errors from the store are
// translated to the errors package before they reach the caller.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.bound(tx))
	})
	return translate(err)
}

// View runs fn as a read-only unit of work. On SQLite it does not wait for
// a writer holding the database.
func (r *Repository) View(ctx context.Context, fn func(repo *Repository) error) error {
	var opts []*sql.TxOptions
	if r.readTx != nil {
		opts = append(opts, r.readTx)
	}
	err := r.reader.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.bound(tx))
	}, opts...)
	return translate(err)
}

func (r *Repository) bound(tx *gorm.DB) *Repository {
	return &Repository{db: tx, reader: tx, seed: r.seed, logger: r.logger}
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return translate(result.Error)
	}
	return nil
}

func (r *Repository) Close() error {
	var errs []error
	pools := []*gorm.DB{r.db}
	if r.reader != nil && r.reader != r.db {
		pools = append(pools, r.reader)
	}
	for _, pool := range pools {
		db, err := pool.DB()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}
