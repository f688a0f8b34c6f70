package user

import (
	"strings"

	"github.com/simp-lee/crudkit/internal/domain"
)

// CreateUserRequest represents the input for creating a new user.
type CreateUserRequest struct {
	Name       string  `json:"name" form:"name" binding:"required,min=2,max=100"`
	Email      string  `json:"email" form:"email" binding:"required,email"`
	UniqueName *string `json:"unique_name" form:"unique_name" binding:"omitempty,max=300"`
}

// UpdateUserRequest is a partial update; omitted fields are left unchanged.
// An empty unique_name clears it.
type UpdateUserRequest struct {
	Name       *string `json:"name" form:"name" binding:"omitempty,min=2,max=100"`
	Email      *string `json:"email" form:"email" binding:"omitempty,email"`
	UniqueName *string `json:"unique_name" form:"unique_name" binding:"omitempty,max=300"`
	IsActive   *bool   `json:"is_active" form:"is_active"`
}

// Fields converts the request to a patch keyed by column name.
func (r UpdateUserRequest) Fields() domain.Fields {
	patch := domain.Fields{}
	if r.Name != nil {
		patch["name"] = strings.TrimSpace(*r.Name)
	}
	if r.Email != nil {
		patch["email"] = strings.TrimSpace(*r.Email)
	}
	if r.UniqueName != nil {
		if n := strings.TrimSpace(*r.UniqueName); n != "" {
			patch["unique_name"] = n
		} else {
			patch["unique_name"] = nil
		}
	}
	if r.IsActive != nil {
		patch["is_active"] = *r.IsActive
	}
	return patch
}

// DeleteUsersResponse reports the outcome of a bulk delete.
type DeleteUsersResponse struct {
	RowsAffected int64 `json:"rows_affected"`
}
