package domain

import "time"

// Record is the base struct embedded by every persisted entity.
//
// It replaces gorm.Model: there is no DeletedAt, so deletes are hard deletes.
// IsActive is plain caller-managed state; nothing filters on it. The column
// carries no ORM default: start from NewRecord, or create from Fields through
// the service, to get IsActive = true.
type Record struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	UniqueName *string   `gorm:"size:300;uniqueIndex" json:"unique_name"`
}

// NewRecord returns a Record with its defaults applied.
func NewRecord() Record {
	return Record{IsActive: true}
}

// Name returns the unique name, or "" when unset.
func (r Record) Name() string {
	if r.UniqueName == nil {
		return ""
	}
	return *r.UniqueName
}

// StringPtr is a small helper for populating optional string columns.
func StringPtr(s string) *string {
	return &s
}
