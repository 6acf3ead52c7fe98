package model

import "time"

// Property represents an individually tracked piece of equipment.
// Every property has a unique serial number and is assigned to at
// most one holder at a time.
type Property struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	SerialNumber string     `json:"serial_number"`
	NSN          string     `json:"nsn,omitempty"`
	Description  string     `json:"description,omitempty"`
	PhotoMime    string     `json:"photo_mime,omitempty"`
	Status       string     `json:"status"`
	AssignedTo   *int64     `json:"assigned_to,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	AssignedToName string `json:"assigned_to_name,omitempty"`
}

// Property statuses.
const (
	PropertyStatusActive  = "active"
	PropertyStatusDamaged = "damaged"
	PropertyStatusLost    = "lost"
	PropertyStatusRetired = "retired"
)

// ValidPropertyStatus reports whether s is a known property status.
func ValidPropertyStatus(s string) bool {
	switch s {
	case PropertyStatusActive, PropertyStatusDamaged, PropertyStatusLost, PropertyStatusRetired:
		return true
	}
	return false
}
