package domain

import "context"

// User is the example entity served by the user module.
type User struct {
	Record
	Name  string `gorm:"size:100;not null" json:"name"`
	Email string `gorm:"size:255;uniqueIndex;not null" json:"email"`
}

// UserService defines the business operations exposed over HTTP for users.
type UserService interface {
	CreateUser(ctx context.Context, name, email string, uniqueName *string) (*User, error)
	GetUser(ctx context.Context, id uint) (*User, error)
	ListUsers(ctx context.Context, filter map[string]string, params PaginationParams) (*PaginatedResult[User], error)
	BrowseUsers(ctx context.Context, opts PageOptions) (*Page[User], error)
	UpdateUser(ctx context.Context, id uint, patch Fields) (*User, error)
	UpdateUserByName(ctx context.Context, uniqueName string, patch Fields) (*User, error)
	DeleteUser(ctx context.Context, id uint) error
	DeleteUsers(ctx context.Context, ids []uint) (int64, error)
}
