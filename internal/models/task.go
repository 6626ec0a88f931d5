package models

import "github.com/google/uuid"

type TaskPaymentStatus string

const (
	TaskUnpaid   TaskPaymentStatus = "UNPAID"
	TaskPaid     TaskPaymentStatus = "PAID"
	TaskRefunded TaskPaymentStatus = "REFUNDED"
)

// Task is the slice of the marketplace task entity the settlement flow
// reads. Task CRUD itself lives in the task service.
type Task struct {
	ID            uuid.UUID         `json:"id"`
	OwnerID       uuid.UUID         `json:"owner_id"`
	AssigneeID    *uuid.UUID        `json:"assignee_id,omitempty"`
	PaymentStatus TaskPaymentStatus `json:"payment_status"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller identifies the already-authenticated principal invoking an
// operation. Authentication happens upstream.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }
