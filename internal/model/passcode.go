package model

import (
	"time"

	"github.com/google/uuid"
)

// Passcode is a single-use registration token handed out by the campus.
type Passcode struct {
	Code      string     `json:"code"`
	Used      bool       `json:"used"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreatePasscodesRequest is the payload for issuing a batch of passcodes.
type CreatePasscodesRequest struct {
	Count int `json:"count" binding:"required,min=1,max=500"`
}
