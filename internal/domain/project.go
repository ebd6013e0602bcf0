package domain

import (
	"github.com/google/uuid"
)

// Project is a read-only view of the external project directory.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
