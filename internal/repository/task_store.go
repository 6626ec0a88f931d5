package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

// TaskStore reads and updates the settlement-relevant slice of tasks. Tasks
// are owned by the task service; this store only touches payment_status.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) InitDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL,
			assignee_id UUID,
			payment_status VARCHAR(32) NOT NULL DEFAULT 'UNPAID'
		)`)
	return err
}

func (s *TaskStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	var assignee uuid.NullUUID
	err := exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, owner_id, assignee_id, payment_status FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.OwnerID, &assignee, &t.PaymentStatus)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.UUID
	}
	return &t, nil
}

func (s *TaskStore) SetPaymentStatus(ctx context.Context, id uuid.UUID, status models.TaskPaymentStatus) error {
	result, err := exec(ctx, s.db).ExecContext(ctx,
		`UPDATE tasks SET payment_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return nil
}
