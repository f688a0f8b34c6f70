package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Pagination defaults applied when a parameter is not provided.
const (
	DefaultLimit     = 10
	DefaultSortField = "createdAt"
)

// Order is a sort direction, stored upper-case.
type Order string

const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

// ParseOrder normalizes s case-insensitively. An empty string yields "".
func ParseOrder(s string) (Order, error) {
	o := Order(strings.ToUpper(strings.TrimSpace(s)))
	switch o {
	case "", OrderAsc, OrderDesc:
		return o, nil
	}
	return "", Validationf("invalid order %q: must be one of %q, %q", s, OrderAsc, OrderDesc)
}

// Sort is one ORDER BY term.
type Sort struct {
	Field string
	Order Order
}

// PaginationParams is a caller's page request. Zero values mean "not provided".
type PaginationParams struct {
	Page  int    `json:"page" form:"page" validate:"gte=0"`
	Limit int    `json:"limit" form:"limit" validate:"gte=0"`
	Sort  string `json:"sort" form:"sort" validate:"omitempty,max=64"`
	Order Order  `json:"order" form:"order" validate:"omitempty,oneof=ASC DESC"`
}

var paramsValidator = validator.New(validator.WithRequiredStructEnabled())

// Normalize upper-cases Order and trims Sort in place.
func (p *PaginationParams) Normalize() {
	p.Sort = strings.TrimSpace(p.Sort)
	p.Order = Order(strings.ToUpper(strings.TrimSpace(string(p.Order))))
}

// Validate normalizes p and checks it, returning a CodeValidation error
// describing the first failing field.
func (p *PaginationParams) Validate() error {
	p.Normalize()
	if err := paramsValidator.Struct(p); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			fe := ve[0]
			return NewAppError(CodeValidation, "invalid pagination parameter "+strings.ToLower(fe.Field())+": "+fe.Tag(), err)
		}
		return NewAppError(CodeValidation, "invalid pagination parameters", err)
	}
	return nil
}

// PaginatedResult is one page of items plus page metadata. Page is 1-based.
type PaginatedResult[T any] struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"total_items"`
	TotalPages int64 `json:"total_pages"`
	Items      []T   `json:"items"`
}

// TotalPages returns total/limit when evenly divisible and total/limit+1
// otherwise, so a zero total yields zero pages. limit must be positive.
func TotalPages(total int64, limit int) int64 {
	l := int64(limit)
	if total%l == 0 {
		return total / l
	}
	return total/l + 1
}

// NewPaginatedResult assembles a result for the 1-based page.
func NewPaginatedResult[T any](items []T, total int64, page, limit int) *PaginatedResult[T] {
	if items == nil {
		items = []T{}
	}
	return &PaginatedResult[T]{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: TotalPages(total, limit),
		Items:      items,
	}
}

// MapPage converts each item of r with fn, keeping the page metadata.
func MapPage[T, U any](r *PaginatedResult[T], fn func(T) U) *PaginatedResult[U] {
	if r == nil {
		return nil
	}
	items := make([]U, len(r.Items))
	for i, it := range r.Items {
		items[i] = fn(it)
	}
	return &PaginatedResult[U]{
		Page:       r.Page,
		Limit:      r.Limit,
		TotalItems: r.TotalItems,
		TotalPages: r.TotalPages,
		Items:      items,
	}
}

// PageOptions configures the query-builder pagination helper.
// Route, when set, is used to build navigation links.
type PageOptions struct {
	Page  int    `json:"page" form:"page"`
	Limit int    `json:"limit" form:"limit"`
	Route string `json:"-" form:"-"`
}

// PageMeta describes a page produced by the pagination helper.
type PageMeta struct {
	ItemCount    int   `json:"item_count"`
	TotalItems   int64 `json:"total_items"`
	ItemsPerPage int   `json:"items_per_page"`
	TotalPages   int64 `json:"total_pages"`
	CurrentPage  int   `json:"current_page"`
}

// PageLinks holds navigation URLs; empty strings mean no such page.
type PageLinks struct {
	First    string `json:"first,omitempty"`
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
	Last     string `json:"last,omitempty"`
}

// Page is the pagination helper's result.
type Page[T any] struct {
	Items []T       `json:"items"`
	Meta  PageMeta  `json:"meta"`
	Links PageLinks `json:"links"`
}
