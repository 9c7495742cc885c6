package db

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gartstein/orderdesk/internal/orders/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const serviceOrdersTable = "service_orders"

// schemaModels in creation order. Foreign keys only point backwards.
var schemaModels = []any{
	&models.User{},
	&models.Company{},
	&models.ServiceType{},
	&models.ServiceOrder{},
}

// zeroDefaults fill NOT NULL columns added to tables that already hold
// rows. Timestamps get the epoch until backfillOrderDates replaces it.
var zeroDefaults = map[schema.DataType]string{
	schema.String: "''",
	schema.Int:    "0",
	schema.Uint:   "0",
	schema.Float:  "0",
	schema.Bool:   "false",
	schema.Time:   "'1970-01-01 00:00:00'",
}

// migrate is additive only. A missing table is created whole; an existing
// table gains the columns and indexes it lacks and is never rewritten, so
// legacy rows and their NULLs survive. It reports the columns added per
// table.
func (r *Repository) migrate(ctx context.Context) (map[string][]string, error) {
	gdb := r.db.WithContext(ctx)
	migrator := gdb.Migrator()
	added := map[string][]string{}

	for _, model := range schemaModels {
		if !migrator.HasTable(model) {
			if err := migrator.CreateTable(model); err != nil {
				return nil, err
			}
			continue
		}

		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		table := stmt.Schema.Table
		for _, name := range stmt.Schema.DBNames {
			field := stmt.Schema.FieldsByDBName[name]
			if field.PrimaryKey || field.IgnoreMigration || migrator.HasColumn(model, name) {
				continue
			}
			if err := addColumn(gdb, model, table, field); err != nil {
				return nil, fmt.Errorf("add column %s.%s: %w", table, name, err)
			}
			added[table] = append(added[table], name)
			r.logger.Info("added column", zap.String("table", table), zap.String("column", name))
		}
		for name := range stmt.Schema.ParseIndexes() {
			if migrator.HasIndex(model, name) {
				continue
			}
			if err := migrator.CreateIndex(model, name); err != nil {
				return nil, fmt.Errorf("create index %s: %w", name, err)
			}
		}
	}
	return added, nil
}

func addColumn(gdb *gorm.DB, model any, table string, field *schema.Field) error {
	if !field.NotNull || field.HasDefaultValue {
		return gdb.Migrator().AddColumn(model, field.DBName)
	}
	zero, ok := zeroDefaults[field.DataType]
	if !ok {
		return fmt.Errorf("no default for %s columns", field.DataType)
	}
	return gdb.Exec("ALTER TABLE ? ADD COLUMN ? ? NOT NULL DEFAULT "+zero,
		clause.Table{Name: table},
		clause.Column{Name: field.DBName},
		clause.Expr{SQL: gdb.Dialector.DataTypeOf(field)},
	).Error
}

// backfillOrderDates gives orders that predate the date columns real
// timestamps: a surviving date is copied into the added one, and when both
// were added the orders count as opened now.
func (r *Repository) backfillOrderDates(ctx context.Context, added []string) error {
	openedAdded := slices.Contains(added, "opened_at")
	updatedAdded := slices.Contains(added, "last_updated_at")
	if !openedAdded && !updatedAdded {
		return nil
	}

	q := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Model(&models.ServiceOrder{})
	var err error
	switch {
	case openedAdded && updatedAdded:
		now := r.db.NowFunc().Truncate(time.Microsecond)
		err = q.UpdateColumns(map[string]any{"opened_at": now, "last_updated_at": now}).Error
	case openedAdded:
		err = q.UpdateColumn("opened_at", gorm.Expr("last_updated_at")).Error
	default:
		err = q.UpdateColumn("last_updated_at", gorm.Expr("opened_at")).Error
	}
	return translate(err)
}
