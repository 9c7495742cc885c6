package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// SQLSTATE codes PostgreSQL reports for lock and serialization failures.
var pgContentionCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement/lock timeout)
}

// SQLSTATE codes for rejected values: string_data_right_truncation,
// not_null_violation, check_violation.
var pgInvalidCodes = map[string]bool{
	"22001": true,
	"23502": true,
	"23514": true,
}

// translate maps driver and gorm errors onto the errors package. Errors that
// already belong to the domain pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{e.ErrNotFound, e.ErrDuplicate, e.ErrReferenced, e.ErrStoreContention, e.ErrInvalidInput} {
		if errors.Is(err, known) {
			return err
		}
	}
	switch {
	case isContention(err):
		return fmt.Errorf("%w: %w", e.ErrStoreContention, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return e.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), sqliteExtended(err, sqlite3.ErrConstraintUnique),
		sqliteExtended(err, sqlite3.ErrConstraintPrimaryKey), pgCode(err, "23505"):
		return fmt.Errorf("%w: %w", e.ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated), sqliteExtended(err, sqlite3.ErrConstraintForeignKey),
		pgCode(err, "23503"):
		return fmt.Errorf("%w: %w", e.ErrReferenced, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated), sqliteExtended(err, sqlite3.ErrConstraintCheck),
		sqliteExtended(err, sqlite3.ErrConstraintNotNull), pgInvalid(err):
		return fmt.Errorf("%w: %w", e.ErrInvalidInput, err)
	}
	return err
}

// ConflictField names the column whose unique key a duplicate error from
// the store violated, or "" when the driver does not say.
func ConflictField(err error) string {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		// UNIQUE constraint failed: companies.legal_id
		_, cols, ok := strings.Cut(se.Error(), "failed: ")
		if !ok {
			return ""
		}
		first, _, _ := strings.Cut(cols, ",")
		_, col, _ := strings.Cut(strings.TrimSpace(first), ".")
		return col
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ColumnName != "" {
			return pgErr.ColumnName
		}
		return strings.TrimPrefix(pgErr.ConstraintName, "idx_"+pgErr.TableName+"_")
	}
	return ""
}

func isContention(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgContentionCodes[pgErr.Code] {
		return true
	}
	return false
}

func pgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func pgInvalid(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgInvalidCodes[pgErr.Code]
}

func sqliteExtended(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}
