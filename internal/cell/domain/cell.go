// Package domain defines cells, the isolation boundary of the vault, and the
// versioned secrets stored inside them.
//
// A cell owns exactly one CellKey lineage. Every secret version records the CellKey
// version its DataKey was wrapped under, so old versions stay readable after a
// rotation until the migration sweep moves them onto the current key.
package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/cellvault/internal/validation"
)

// Cell is an isolation boundary grouping secrets under one key lineage.
type Cell struct {
	ID             uuid.UUID
	Name           string
	Description    string
	OrganizationID string
	// RotationDays is the interval after which the scheduler rotates the CellKey.
	RotationDays int
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// LastRotatedAt is when the current CellKey version became current.
	LastRotatedAt time.Time
	// CurrentKeyVersion is read from the key lineage; it is not persisted with the cell.
	CurrentKeyVersion uint `json:"-"`
}

// RotationInterval returns RotationDays as a duration.
func (c *Cell) RotationInterval() time.Duration {
	return time.Duration(c.RotationDays) * 24 * time.Hour
}

// RotationDue reports whether the current CellKey has outlived the rotation interval.
func (c *Cell) RotationDue(now time.Time) bool {
	if c.RotationDays <= 0 {
		return false
	}
	return !now.Before(c.LastRotatedAt.Add(c.RotationInterval()))
}

// MaxRotationDays bounds the rotation interval to ten years.
const MaxRotationDays = 3650

// CreateCellInput contains the parameters for creating a cell.
type CreateCellInput struct {
	Name           string
	Description    string
	OrganizationID string
	// RotationDays falls back to the configured default when zero.
	RotationDays int
	Metadata     map[string]string
	// Owner, when set, is granted every action on the new cell.
	Owner string
}

// Validate checks the input and returns ErrInvalidInput on failure.
func (i *CreateCellInput) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.Name,
			validation.Required,
			customValidation.Slug,
			validation.Length(1, 128),
		),
		validation.Field(&i.Description, validation.Length(0, 1024)),
		validation.Field(&i.OrganizationID,
			customValidation.NoWhitespace,
			customValidation.Identifier,
			validation.Length(0, 255),
		),
		validation.Field(&i.RotationDays, validation.Min(0), validation.Max(MaxRotationDays)),
		validation.Field(&i.Owner,
			customValidation.NoWhitespace,
			customValidation.Identifier,
			validation.Length(0, 255),
		),
	)
	return customValidation.WrapValidationError(err)
}

// UpdateCellInput contains the mutable attributes of a cell. Nil fields are left
// unchanged.
type UpdateCellInput struct {
	Description  *string
	RotationDays *int
	Metadata     map[string]string
}

// Validate checks the input and returns ErrInvalidInput on failure.
func (i *UpdateCellInput) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.Description, validation.NilOrNotEmpty, validation.Length(0, 1024)),
		validation.Field(&i.RotationDays, validation.By(positiveDays), validation.Max(MaxRotationDays)),
	)
	return customValidation.WrapValidationError(err)
}

// positiveDays rejects an explicit zero, which Min skips as an empty value.
func positiveDays(value any) error {
	days, ok := value.(*int)
	if !ok || days == nil {
		return nil
	}
	if *days < 1 {
		return validation.NewError("validation_min_greater_equal_than_required", "must be no less than 1")
	}
	return nil
}

// Apply copies the set fields of the input onto c.
func (i *UpdateCellInput) Apply(c *Cell) {
	if i.Description != nil {
		c.Description = *i.Description
	}
	if i.RotationDays != nil {
		c.RotationDays = *i.RotationDays
	}
	if i.Metadata != nil {
		c.Metadata = i.Metadata
	}
}
