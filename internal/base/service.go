package base

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/simp-lee/crudkit/internal/domain"
	"github.com/simp-lee/crudkit/internal/pkg"
)

const (
	idField         = "id"
	uniqueNameField = "unique_name"
	isActiveField   = "is_active"
)

// Service is the uniform CRUD, query and pagination surface over one record
// type. It holds no mutable state and is safe for concurrent use.
//
// Single-record lookups, updates and deletes fail with a domain NotFound error
// when nothing matches; storage faults are returned wrapped, never logged.
type Service[T any] struct {
	repo Repository[T]
	db   *gorm.DB
}

// NewService returns a Service for T over repo. db is only needed by
// Transaction and may be nil otherwise.
func NewService[T any](repo Repository[T], db *gorm.DB) *Service[T] {
	return &Service[T]{repo: repo, db: db}
}

// NewGormService is shorthand for NewService(NewRepository[T](db), db).
func NewGormService[T any](db *gorm.DB) *Service[T] {
	return NewService(NewRepository[T](db), db)
}

// Repository exposes the underlying storage capability.
func (s *Service[T]) Repository() Repository[T] {
	return s.repo
}

// Transaction runs fn with a Service bound to a single transaction, making a
// read-then-write sequence such as UpdateOneByID atomic.
func (s *Service[T]) Transaction(ctx context.Context, fn func(tx *Service[T]) error) error {
	if s.db == nil {
		return fmt.Errorf("transaction: service has no database handle")
	}
	return pkg.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		return fn(&Service[T]{repo: s.repo.WithTx(tx), db: tx})
	})
}

// Save persists data, inserting when its primary key is zero and updating
// every column otherwise.
func (s *Service[T]) Save(ctx context.Context, data *T) (*T, error) {
	if err := s.repo.Save(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Create inserts data. The returned pointer is data with its identity and
// timestamps filled in.
func (s *Service[T]) Create(ctx context.Context, data *T) (*T, error) {
	if err := s.repo.Insert(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

// CreateFrom builds a record from fields on top of the record defaults and
// inserts it.
func (s *Service[T]) CreateFrom(ctx context.Context, fields domain.Fields) (*T, error) {
	entity, err := s.build(ctx, fields)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, entity)
}

// FindOneOrCreate returns the record matching match, or inserts one built
// from payload overridden by match. payload is ignored when a record exists.
func (s *Service[T]) FindOneOrCreate(ctx context.Context, match, payload domain.Fields) (*T, error) {
	if err := match.Validate(); err != nil {
		return nil, err
	}
	found, err := s.repo.FindOne(ctx, Matching(match))
	if err == nil {
		return found, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}
	return s.CreateFrom(ctx, payload.Merge(match))
}

// FindAll returns every record, ordered by id. Intended for small tables.
func (s *Service[T]) FindAll(ctx context.Context) ([]T, error) {
	return s.repo.Find(ctx, FindOptions{})
}

// FindOne returns the first record (by id) matching all non-nil fields of match.
func (s *Service[T]) FindOne(ctx context.Context, match domain.Fields) (*T, error) {
	if err := match.Validate(); err != nil {
		return nil, err
	}
	return s.repo.FindOne(ctx, Matching(match))
}

// Find returns every record matching match. An empty result is reported as
// NotFound, unlike FindAll and FindByIDs.
func (s *Service[T]) Find(ctx context.Context, match domain.Fields) ([]T, error) {
	if err := match.Validate(); err != nil {
		return nil, err
	}
	return s.FindByCondition(ctx, Matching(match))
}

// Exists reports whether any record matches match.
func (s *Service[T]) Exists(ctx context.Context, match domain.Fields) (bool, error) {
	n, err := s.FindCount(ctx, match)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// FindByCondition returns the records selected by opts, or NotFound when
// there are none.
func (s *Service[T]) FindByCondition(ctx context.Context, opts FindOptions) ([]T, error) {
	items, err := s.repo.Find(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return items, nil
}

// FindOneByCondition returns the first record selected by opts.
func (s *Service[T]) FindOneByCondition(ctx context.Context, opts FindOptions) (*T, error) {
	return s.repo.FindOne(ctx, opts)
}

// GetIDs returns the id of every record selected by opts, in id order unless
// opts orders otherwise.
func (s *Service[T]) GetIDs(ctx context.Context, opts FindOptions) ([]uint, error) {
	ids := []uint{}
	if err := s.repo.Pluck(ctx, idField, opts, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindByIDs returns the records whose id is in ids. No storage call is made
// for an empty ids.
func (s *Service[T]) FindByIDs(ctx context.Context, ids []uint) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	return s.repo.Find(ctx, FindOptions{Scopes: []func(*gorm.DB) *gorm.DB{IDIn(ids)}})
}

// FindCount counts the records matching match.
func (s *Service[T]) FindCount(ctx context.Context, match domain.Fields) (int64, error) {
	if err := match.Validate(); err != nil {
		return 0, err
	}
	return s.repo.Count(ctx, Matching(match))
}

// FindOneByID returns the record with the given id.
func (s *Service[T]) FindOneByID(ctx context.Context, id uint) (*T, error) {
	return s.repo.FindOne(ctx, Matching(domain.Fields{idField: id}))
}

// UpdateOneByID applies patch to the record with the given id and returns the
// pre-update snapshot overridden by patch. The row is not re-read, so values
// computed by storage (such as a refreshed updated_at) are not reflected.
//
// The load and the update are separate statements; run inside Transaction
// when they must be atomic.
func (s *Service[T]) UpdateOneByID(ctx context.Context, id uint, patch domain.Fields) (*T, error) {
	if err := patch.ValidatePatch(); err != nil {
		return nil, err
	}
	snapshot, err := s.FindOneByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.updateLoaded(ctx, snapshot, id, patch)
}

// UpdateOneByUniqueName is UpdateOneByID keyed by unique_name. The update
// targets the id of the loaded record.
func (s *Service[T]) UpdateOneByUniqueName(ctx context.Context, uniqueName string, patch domain.Fields) (*T, error) {
	if err := patch.ValidatePatch(); err != nil {
		return nil, err
	}
	snapshot, err := s.repo.FindOne(ctx, Matching(domain.Fields{uniqueNameField: uniqueName}))
	if err != nil {
		return nil, err
	}
	id, err := s.idOf(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	return s.updateLoaded(ctx, snapshot, id, patch)
}

func (s *Service[T]) updateLoaded(ctx context.Context, snapshot *T, id uint, patch domain.Fields) (*T, error) {
	affected, err := s.repo.Update(ctx, Matching(domain.Fields{idField: id}), patch)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrNotFound
	}
	return s.merge(ctx, snapshot, patch)
}

// UpdateResult reports the rows touched by a bulk update.
type UpdateResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// DeleteResult reports the rows removed by a delete.
type DeleteResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// UpdateManyByIDs applies patch to every record whose id is in ids. Zero
// affected rows is not an error. No storage call is made for an empty ids.
func (s *Service[T]) UpdateManyByIDs(ctx context.Context, ids []uint, patch domain.Fields) (UpdateResult, error) {
	if len(ids) == 0 {
		return UpdateResult{}, nil
	}
	return s.UpdateManyByCondition(ctx, FindOptions{Scopes: []func(*gorm.DB) *gorm.DB{IDIn(ids)}}, patch)
}

// UpdateManyByCondition applies patch to every record selected by opts,
// which must carry a condition. Zero affected rows is not an error.
func (s *Service[T]) UpdateManyByCondition(ctx context.Context, opts FindOptions, patch domain.Fields) (UpdateResult, error) {
	if err := patch.ValidatePatch(); err != nil {
		return UpdateResult{}, err
	}
	n, err := s.repo.Update(ctx, opts, patch)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{RowsAffected: n}, nil
}

// DeleteOneByID hard-deletes the record with the given id.
func (s *Service[T]) DeleteOneByID(ctx context.Context, id uint) (DeleteResult, error) {
	return s.deleteAtLeastOne(ctx, Matching(domain.Fields{idField: id}))
}

// DeleteOneByCondition deletes the records selected by opts, failing with
// NotFound when none were removed.
func (s *Service[T]) DeleteOneByCondition(ctx context.Context, opts FindOptions) (DeleteResult, error) {
	return s.deleteAtLeastOne(ctx, opts)
}

// DeleteByIDs deletes every record whose id is in ids. An empty ids returns
// an empty result without a storage call.
func (s *Service[T]) DeleteByIDs(ctx context.Context, ids []uint) (DeleteResult, error) {
	if len(ids) == 0 {
		return DeleteResult{}, nil
	}
	return s.deleteAtLeastOne(ctx, FindOptions{Scopes: []func(*gorm.DB) *gorm.DB{IDIn(ids)}})
}

func (s *Service[T]) deleteAtLeastOne(ctx context.Context, opts FindOptions) (DeleteResult, error) {
	n, err := s.repo.Delete(ctx, opts)
	if err != nil {
		return DeleteResult{}, err
	}
	if n == 0 {
		return DeleteResult{}, domain.ErrNotFound
	}
	return DeleteResult{RowsAffected: n}, nil
}

// build returns a new T with is_active set (when T has it), then fields applied.
func (s *Service[T]) build(ctx context.Context, fields domain.Fields) (*T, error) {
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	entity := new(T)
	rv := reflect.ValueOf(entity).Elem()
	if f := sch.LookUpField(isActiveField); f != nil {
		if err := f.Set(ctx, rv, true); err != nil {
			return nil, fmt.Errorf("set %s: %w", isActiveField, err)
		}
	}
	if err := setFields(ctx, sch, rv, fields); err != nil {
		return nil, err
	}
	return entity, nil
}

// merge returns a shallow copy of snapshot with patch applied.
func (s *Service[T]) merge(ctx context.Context, snapshot *T, patch domain.Fields) (*T, error) {
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	merged := *snapshot
	if err := setFields(ctx, sch, reflect.ValueOf(&merged).Elem(), patch); err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *Service[T]) idOf(ctx context.Context, entity *T) (uint, error) {
	sch, err := s.repo.Schema()
	if err != nil {
		return 0, err
	}
	f := sch.LookUpField(idField)
	if f == nil {
		return 0, fmt.Errorf("%s has no %s field", sch.Name, idField)
	}
	v, _ := f.ValueOf(ctx, reflect.ValueOf(entity).Elem())
	switch id := v.(type) {
	case uint:
		return id, nil
	case uint64:
		return uint(id), nil
	case int:
		return uint(id), nil
	case int64:
		return uint(id), nil
	}
	return 0, fmt.Errorf("%s.%s has unsupported type %T", sch.Name, idField, v)
}

// GetSimplePaginatedResult returns one page of the records selected by opts.
// Limit defaults to 10, page to 1, sort to createdAt and order to DESC. Rows
// are tie-broken by id in the same direction. Take, Skip and Order already
// present in opts are replaced.
func (s *Service[T]) GetSimplePaginatedResult(ctx context.Context, params domain.PaginationParams, opts FindOptions) (*domain.PaginatedResult[T], error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 {
		limit = domain.DefaultLimit
	}
	page := 0
	if params.Page > 0 {
		page = params.Page - 1
	}
	if page > math.MaxInt/limit {
		return nil, domain.Validationf("page %d is out of range for limit %d", params.Page, limit)
	}
	sortField := params.Sort
	if sortField == "" {
		sortField = domain.DefaultSortField
	}
	order := params.Order
	if order == "" {
		order = domain.OrderDesc
	}

	opts.Order = []domain.Sort{{Field: sortField, Order: order}}
	if sortField != idField {
		opts.Order = append(opts.Order, domain.Sort{Field: idField, Order: order})
	}
	opts.Take = limit
	opts.Skip = page * limit

	items, total, err := s.repo.FindAndCount(ctx, opts)
	if err != nil {
		return nil, err
	}
	return domain.NewPaginatedResult(items, total, page+1, limit), nil
}

// GetPaginatedResult pages an arbitrary query built from Repository().Query,
// adding navigation links when opts.Route is set. A nil query pages every
// record in id order.
func (s *Service[T]) GetPaginatedResult(ctx context.Context, query *gorm.DB, opts domain.PageOptions) (*domain.Page[T], error) {
	if query == nil {
		query = s.repo.Query(ctx).Order(byPrimaryKey)
	}
	return pkg.Paginate[T](ctx, query, opts)
}

// setFields assigns fields onto rv, resolving each key through sch.
func setFields(ctx context.Context, sch *schema.Schema, rv reflect.Value, fields domain.Fields) error {
	for _, k := range fields.Keys() {
		f := sch.LookUpField(k)
		if f == nil || f.DBName == "" {
			return domain.Validationf("unknown field %q for %s", k, sch.Name)
		}
		if err := f.Set(ctx, rv, fields[k]); err != nil {
			return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("invalid value for %s", k), err)
		}
	}
	return nil
}
