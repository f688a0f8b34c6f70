package pkg

import (
	"context"

	"gorm.io/gorm"
)

// WithTx runs fn in a transaction on db bound to ctx. The transaction
// commits when fn returns nil and rolls back otherwise, including when fn
// panics; the panic then continues.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	done := false
	defer func() {
		if !done {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	done = true
	return nil
}
