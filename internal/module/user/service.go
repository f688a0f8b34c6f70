package user

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/simp-lee/crudkit/internal/base"
	"github.com/simp-lee/crudkit/internal/domain"
	"github.com/simp-lee/crudkit/internal/pkg"
)

// filterFields are the columns ListUsers accepts as exact or __like filters.
var filterFields = []string{"name", "email"}

// userService implements domain.UserService on top of base.Service.
type userService struct {
	base         *base.Service[domain.User]
	defaultLimit int
	maxLimit     int
}

// NewUserService creates a UserService. defaultLimit applies when a list
// request carries no limit and maxLimit caps the requested one; zero leaves
// the base service defaults in place.
func NewUserService(svc *base.Service[domain.User], defaultLimit, maxLimit int) domain.UserService {
	return &userService{base: svc, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

func (s *userService) CreateUser(ctx context.Context, name, email string, uniqueName *string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validateNameEmail(name, email); err != nil {
		return nil, err
	}

	u := &domain.User{
		Record: domain.NewRecord(),
		Name:   name,
		Email:  email,
	}
	if uniqueName != nil {
		if n := strings.TrimSpace(*uniqueName); n != "" {
			u.UniqueName = &n
		}
	}
	return s.base.Create(ctx, u)
}

func (s *userService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	return s.base.FindOneByID(ctx, id)
}

// ListUsers returns one page of users matching filter. Unknown filter keys
// are ignored.
func (s *userService) ListUsers(ctx context.Context, filter map[string]string, params domain.PaginationParams) (*domain.PaginatedResult[domain.User], error) {
	params.Limit = s.clampLimit(params.Limit)
	opts := base.FindOptions{
		Scopes: []func(*gorm.DB) *gorm.DB{pkg.Filter(filter, filterFields)},
	}
	return s.base.GetSimplePaginatedResult(ctx, params, opts)
}

// BrowseUsers pages through all users in id order with navigation links.
func (s *userService) BrowseUsers(ctx context.Context, opts domain.PageOptions) (*domain.Page[domain.User], error) {
	opts.Limit = s.clampLimit(opts.Limit)
	return s.base.GetPaginatedResult(ctx, nil, opts)
}

func (s *userService) UpdateUser(ctx context.Context, id uint, patch domain.Fields) (*domain.User, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	return s.base.UpdateOneByID(ctx, id, patch)
}

func (s *userService) UpdateUserByName(ctx context.Context, uniqueName string, patch domain.Fields) (*domain.User, error) {
	uniqueName = strings.TrimSpace(uniqueName)
	if uniqueName == "" {
		return nil, domain.Validationf("unique name is required")
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	return s.base.UpdateOneByUniqueName(ctx, uniqueName, patch)
}

func (s *userService) DeleteUser(ctx context.Context, id uint) error {
	_, err := s.base.DeleteOneByID(ctx, id)
	return err
}

// DeleteUsers removes every listed user that exists and reports how many were
// removed. An empty list is a no-op.
func (s *userService) DeleteUsers(ctx context.Context, ids []uint) (int64, error) {
	res, err := s.base.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (s *userService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// validatePatch checks the name and email values a patch carries, if any.
func validatePatch(patch domain.Fields) error {
	if v, ok := patch["name"]; ok {
		name, _ := v.(string)
		if err := validateName(name); err != nil {
			return err
		}
	}
	if v, ok := patch["email"]; ok {
		email, _ := v.(string)
		if err := validateEmail(email); err != nil {
			return err
		}
	}
	return nil
}

func validateNameEmail(name, email string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return validateEmail(email)
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.NewAppError(domain.CodeValidation, "name is required", nil)
	}
	n := utf8.RuneCountInString(name)
	if n < 2 {
		return domain.NewAppError(domain.CodeValidation, "name must be at least 2 characters", nil)
	}
	if n > 100 {
		return domain.NewAppError(domain.CodeValidation, "name must be at most 100 characters", nil)
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.NewAppError(domain.CodeValidation, "email is required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.NewAppError(domain.CodeValidation, "email must be a valid email address", nil)
	}
	return nil
}
