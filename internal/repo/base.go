// Package repo holds what every settlement repository shares: a connection
// that may be a transaction, and guarded single-row updates.
package repo

import (
	"context"

	"gorm.io/gorm"
)

type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB scopes the connection to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a Base running on tx, or b itself when tx is nil.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Guard is the WHERE clause a guarded update must still satisfy, typically
// "id = ? AND status IN ?".
type Guard struct {
	Query string
	Args  []any
}

// UpdateGuarded applies updates to one row of model only while guard holds
// and reports whether it did. A false result with a nil error means another
// writer moved the row first.
func (b Base) UpdateGuarded(ctx context.Context, model any, guard Guard, updates any) (bool, error) {
	result := b.DB(ctx).Model(model).Where(guard.Query, guard.Args...).Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
