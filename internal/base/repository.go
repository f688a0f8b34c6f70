package base

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/simp-lee/crudkit/internal/domain"
)

// Reader is the read side of the storage capability.
type Reader[T any] interface {
	FindOne(ctx context.Context, opts FindOptions) (*T, error)
	Find(ctx context.Context, opts FindOptions) ([]T, error)
	FindAndCount(ctx context.Context, opts FindOptions) ([]T, int64, error)
	Count(ctx context.Context, opts FindOptions) (int64, error)
	Pluck(ctx context.Context, column string, opts FindOptions, dest any) error
}

// Writer is the write side of the storage capability.
type Writer[T any] interface {
	Insert(ctx context.Context, entity *T) error
	Save(ctx context.Context, entity *T) error
	Update(ctx context.Context, opts FindOptions, patch domain.Fields) (int64, error)
	Delete(ctx context.Context, opts FindOptions) (int64, error)
}

// Repository is the storage capability a Service runs on: reads, writes, a
// composable query builder and the parsed model schema.
type Repository[T any] interface {
	Reader[T]
	Writer[T]
	Query(ctx context.Context) *gorm.DB
	Schema() (*schema.Schema, error)
	WithTx(tx *gorm.DB) Repository[T]
}

var byPrimaryKey = clause.OrderByColumn{Column: clause.PrimaryColumn}

type gormRepository[T any] struct {
	db *gorm.DB
}

// NewRepository returns a Repository for T backed by the given GORM database.
func NewRepository[T any](db *gorm.DB) Repository[T] {
	return &gormRepository[T]{db: db}
}

func (r *gormRepository[T]) WithTx(tx *gorm.DB) Repository[T] {
	return &gormRepository[T]{db: tx}
}

func (r *gormRepository[T]) Query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(new(T))
}

func (r *gormRepository[T]) Schema() (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return stmt.Schema, nil
}

// build returns the query for opts against T's schema.
func (r *gormRepository[T]) build(ctx context.Context, opts FindOptions, paged bool) (*gorm.DB, error) {
	s, err := r.Schema()
	if err != nil {
		return nil, err
	}
	return opts.apply(r.Query(ctx), s, paged)
}

// FindOne returns the first row matching opts, ordered by primary key unless
// opts carries an order.
func (r *gormRepository[T]) FindOne(ctx context.Context, opts FindOptions) (*T, error) {
	q, err := r.build(ctx, opts, true)
	if err != nil {
		return nil, err
	}
	var entity T
	if len(opts.Order) > 0 {
		err = q.Take(&entity).Error
	} else {
		err = q.First(&entity).Error
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &entity, nil
}

func (r *gormRepository[T]) Find(ctx context.Context, opts FindOptions) ([]T, error) {
	q, err := r.build(ctx, opts, true)
	if err != nil {
		return nil, err
	}
	if len(opts.Order) == 0 {
		q = q.Order(byPrimaryKey)
	}
	entities := []T{}
	if err := q.Find(&entities).Error; err != nil {
		return nil, mapError(err)
	}
	return entities, nil
}

// FindAndCount returns the page selected by opts and the number of rows
// matched by opts ignoring Select, Take, Skip and Order.
func (r *gormRepository[T]) FindAndCount(ctx context.Context, opts FindOptions) ([]T, int64, error) {
	countOpts := opts
	countOpts.Select = nil
	counted, err := r.build(ctx, countOpts, false)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := counted.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}

	entities := []T{}
	if total == 0 {
		return entities, 0, nil
	}
	q, err := r.build(ctx, opts, true)
	if err != nil {
		return nil, 0, err
	}
	if err := q.Find(&entities).Error; err != nil {
		return nil, 0, mapError(err)
	}
	return entities, total, nil
}

func (r *gormRepository[T]) Count(ctx context.Context, opts FindOptions) (int64, error) {
	q, err := r.build(ctx, opts, false)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (r *gormRepository[T]) Pluck(ctx context.Context, column string, opts FindOptions, dest any) error {
	s, err := r.Schema()
	if err != nil {
		return err
	}
	col, err := resolveColumn(s, column)
	if err != nil {
		return err
	}
	opts.Select = nil
	q, err := opts.apply(r.Query(ctx), s, true)
	if err != nil {
		return err
	}
	if len(opts.Order) == 0 {
		q = q.Order(byPrimaryKey)
	}
	if err := q.Pluck(col, dest).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Insert always inserts entity.
func (r *gormRepository[T]) Insert(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Save inserts entity when its primary key is zero and updates every column otherwise.
func (r *gormRepository[T]) Save(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// Update applies patch to the rows matched by opts and returns the number of
// affected rows. An unconditioned update is refused.
func (r *gormRepository[T]) Update(ctx context.Context, opts FindOptions, patch domain.Fields) (int64, error) {
	if !opts.Conditioned() {
		return 0, domain.Validationf("update requires a condition")
	}
	if len(patch) == 0 {
		return 0, domain.Validationf("update requires at least one field")
	}
	s, err := r.Schema()
	if err != nil {
		return 0, err
	}
	values, err := resolveFields(s, patch, false)
	if err != nil {
		return 0, err
	}
	q, err := opts.apply(r.Query(ctx), s, false)
	if err != nil {
		return 0, err
	}
	result := q.Updates(values)
	if result.Error != nil {
		return 0, mapError(result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes the rows matched by opts and returns the number of affected
// rows. An unconditioned delete is refused.
func (r *gormRepository[T]) Delete(ctx context.Context, opts FindOptions) (int64, error) {
	if !opts.Conditioned() {
		return 0, domain.Validationf("delete requires a condition")
	}
	q, err := r.build(ctx, opts, false)
	if err != nil {
		return 0, err
	}
	result := q.Delete(new(T))
	if result.Error != nil {
		return 0, mapError(result.Error)
	}
	return result.RowsAffected, nil
}
