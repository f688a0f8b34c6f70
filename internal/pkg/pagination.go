package pkg

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/pagination"
	"gorm.io/gorm"

	"github.com/simp-lee/crudkit/internal/domain"
)

const (
	defaultHelperPage  = 1
	defaultHelperLimit = domain.DefaultLimit
)

// reservedParams lists query parameter names used for paging, not filtering.
var reservedParams = map[string]bool{
	"page":  true,
	"limit": true,
	"sort":  true,
	"order": true,
	"ids":   true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParsePaginationParams extracts page/limit/sort/order and the remaining
// non-empty query parameters (the filter) from the request. Unparseable
// numbers are treated as not provided; validation is left to the caller.
func ParsePaginationParams(c *gin.Context) (domain.PaginationParams, map[string]string) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	params := domain.PaginationParams{
		Page:  page,
		Limit: limit,
		Sort:  c.Query("sort"),
		Order: domain.Order(c.Query("order")),
	}
	params.Normalize()

	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}

	return params, filter
}

// ParsePageOptions extracts page and limit for the pagination helper and
// uses the request path as the link route.
func ParsePageOptions(c *gin.Context) domain.PageOptions {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return domain.PageOptions{
		Page:  page,
		Limit: limit,
		Route: c.Request.URL.Path,
	}
}

// ParseIDs parses a comma-separated list of positive integer ids.
func ParseIDs(raw string) ([]uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []uint{}, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}

// Filter returns a GORM scope that applies WHERE conditions for the given filters.
// Only keys present in the allowed list are applied; others are silently ignored.
// Keys ending with "__like" produce a LIKE '%value%' condition; others use exact match.
func Filter(filter map[string]string, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, key := range slices.Sorted(maps.Keys(filter)) {
			value := filter[key]
			if field, ok := strings.CutSuffix(key, "__like"); ok {
				if !validFieldName.MatchString(field) || !isAllowed(field, allowed) {
					continue
				}
				db = db.Where(field+" LIKE ?", "%"+value+"%")
				continue
			}
			if !validFieldName.MatchString(key) || !isAllowed(key, allowed) {
				continue
			}
			db = db.Where(key+" = ?", value)
		}
		return db
	}
}

// Paginate runs query as one page through a pagination.Paginator. The count
// and the Offset/Limit fetch are its callbacks; storage errors from either are
// returned unchanged. Page defaults to 1 and limit to 10, and a page past the
// end is clamped to the last page. Ordering is whatever query already carries.
func Paginate[T any](ctx context.Context, query *gorm.DB, opts domain.PageOptions) (*domain.Page[T], error) {
	if query == nil {
		return nil, domain.Validationf("pagination query is nil")
	}
	page := opts.Page
	if page < 1 {
		page = defaultHelperPage
	}
	limit := opts.Limit
	if limit < 1 {
		limit = defaultHelperLimit
	}

	q := query
	if q.Statement.Model == nil {
		q = q.Model(new(T))
	}

	var storeErr error
	p := pagination.NewPaginator[T](
		pagination.WithItemsPerPage[T](limit),
		pagination.WithItemTotalCallback[T](func(ctx context.Context) (int64, error) {
			var total int64
			if err := q.WithContext(ctx).Count(&total).Error; err != nil {
				storeErr = err
				return 0, err
			}
			return total, nil
		}),
		pagination.WithSliceCallback[T](func(ctx context.Context, offset, limit int) ([]T, error) {
			items := []T{}
			if err := q.WithContext(ctx).Offset(offset).Limit(limit).Find(&items).Error; err != nil {
				storeErr = err
				return nil, err
			}
			return items, nil
		}),
	)
	res, err := p.Paginate(ctx, page)
	if err != nil {
		switch {
		case storeErr != nil:
			return nil, storeErr
		case errors.Is(err, pagination.ErrInvalidPageNumber), errors.Is(err, pagination.ErrInvalidConfig):
			return nil, domain.NewAppError(domain.CodeValidation, "invalid page request", err)
		}
		return nil, err
	}

	var totalPages int64
	last := 0
	if res.TotalItems > 0 {
		totalPages = int64(res.TotalPages)
		last = res.LastPage
	}
	return &domain.Page[T]{
		Items: res.Items,
		Meta: domain.PageMeta{
			ItemCount:    len(res.Items),
			TotalItems:   res.TotalItems,
			ItemsPerPage: res.ItemsPerPage,
			TotalPages:   totalPages,
			CurrentPage:  res.CurrentPage,
		},
		Links: buildLinks(opts.Route, limit, res.PreviousPage, res.NextPage, last),
	}, nil
}

// buildLinks renders navigation links under route. A zero last page omits the
// Last link.
func buildLinks(route string, limit int, prev, next *int, last int) domain.PageLinks {
	if route == "" {
		return domain.PageLinks{}
	}
	link := func(p int) string {
		q := url.Values{}
		q.Set("page", strconv.Itoa(p))
		q.Set("limit", strconv.Itoa(limit))
		sep := "?"
		if strings.Contains(route, "?") {
			sep = "&"
		}
		return route + sep + q.Encode()
	}

	links := domain.PageLinks{First: link(1)}
	if prev != nil {
		links.Previous = link(*prev)
	}
	if next != nil {
		links.Next = link(*next)
	}
	if last > 0 {
		links.Last = link(last)
	}
	return links
}

func isAllowed(field string, allowed []string) bool {
	return slices.Contains(allowed, field)
}
