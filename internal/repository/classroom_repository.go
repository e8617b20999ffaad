package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusops/invigil-api/internal/models"
)

// ClassroomRepository manages persistence for classrooms.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs a ClassroomRepository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// ListActive returns active rooms, optionally restricted to a campus,
// ordered by block and room number so allocation walks rooms deterministically.
func (r *ClassroomRepository) ListActive(ctx context.Context, campus string) ([]models.Classroom, error) {
	const base = `SELECT id, room_number, block, floor, campus, active, created_at, updated_at FROM classrooms WHERE active = TRUE`
	var rooms []models.Classroom
	if campus != "" {
		if err := r.db.SelectContext(ctx, &rooms, base+` AND campus = $1 ORDER BY block ASC, room_number ASC`, campus); err != nil {
			return nil, fmt.Errorf("list active classrooms: %w", err)
		}
		return rooms, nil
	}
	if err := r.db.SelectContext(ctx, &rooms, base+` ORDER BY block ASC, room_number ASC`); err != nil {
		return nil, fmt.Errorf("list active classrooms: %w", err)
	}
	return rooms, nil
}

// FindByID fetches a classroom by ID.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `SELECT id, room_number, block, floor, campus, active, created_at, updated_at FROM classrooms WHERE id = $1`
	var room models.Classroom
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}
