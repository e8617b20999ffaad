package models

import "time"

// Classroom represents an examination room.
type Classroom struct {
	ID         string    `db:"id" json:"id"`
	RoomNumber string    `db:"room_number" json:"room_number"`
	Block      string    `db:"block" json:"block"`
	Floor      int       `db:"floor" json:"floor"`
	Campus     string    `db:"campus" json:"campus"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
