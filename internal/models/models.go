package models

import (
	"time"
)

// Model is a journaled record. [Run] is the only kind.
type Model interface {
	ID() string
	Sequence() int // Sequence orders records of one kind, newest highest
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository is the journal's data access contract.
//
// List criteria keys are repository specific; unknown keys are ignored.
// Delete is a soft delete: deleted records disappear from Get and List.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}
