package base

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/simp-lee/crudkit/internal/domain"
)

// FindOptions is the storage-native query specification accepted by the
// condition-based operations. The zero value matches every row.
type FindOptions struct {
	// Where holds equality matches; nil values are ignored.
	Where domain.Fields
	// Scopes hold arbitrary predicates such as IN lists, LIKE or ranges.
	Scopes []func(*gorm.DB) *gorm.DB
	Order  []domain.Sort
	Select []string
	Take   int
	Skip   int
}

// Conditioned reports whether o restricts the rows it matches.
func (o FindOptions) Conditioned() bool {
	return len(o.Where.NonNil()) > 0 || len(o.Scopes) > 0
}

// Matching returns FindOptions with only equality matches.
func Matching(match domain.Fields) FindOptions {
	return FindOptions{Where: match}
}

// IDIn returns a scope restricting rows to the given primary keys.
func IDIn(ids []uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.IN{Column: clause.PrimaryColumn, Values: uintsToAny(ids)})
	}
}

// resolveColumn maps a Go field name, column name or camel-case name to the
// column name declared by s.
func resolveColumn(s *schema.Schema, name string) (string, error) {
	f := s.LookUpField(name)
	if f == nil || f.DBName == "" {
		return "", domain.Validationf("unknown field %q for %s", name, s.Name)
	}
	return f.DBName, nil
}

// resolveFields rewrites the keys of in to column names, dropping nil values
// when skipNil is set.
func resolveFields(s *schema.Schema, in domain.Fields, skipNil bool) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for _, k := range in.Keys() {
		v := in[k]
		if skipNil && v == nil {
			continue
		}
		col, err := resolveColumn(s, k)
		if err != nil {
			return nil, err
		}
		out[col] = v
	}
	return out, nil
}

// apply builds the query for o on top of db. Take and Skip are only applied
// when paged is set, so the same options can drive a count.
func (o FindOptions) apply(db *gorm.DB, s *schema.Schema, paged bool) (*gorm.DB, error) {
	where, err := resolveFields(s, o.Where, true)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		db = db.Where(where)
	}
	if len(o.Scopes) > 0 {
		db = db.Scopes(o.Scopes...)
	}
	if len(o.Select) > 0 {
		cols := make([]string, 0, len(o.Select))
		for _, name := range o.Select {
			col, err := resolveColumn(s, name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}
		db = db.Select(cols)
	}
	if !paged {
		return db, nil
	}
	for _, srt := range o.Order {
		col, err := resolveColumn(s, srt.Field)
		if err != nil {
			return nil, err
		}
		order, err := domain.ParseOrder(string(srt.Order))
		if err != nil {
			return nil, err
		}
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: order == domain.OrderDesc})
	}
	if o.Take > 0 {
		db = db.Limit(o.Take)
	}
	if o.Skip > 0 {
		db = db.Offset(o.Skip)
	}
	return db, nil
}

func uintsToAny(ids []uint) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
