package models

import "time"

// Program groups related courses under a named study track.
type Program struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProgramDetail enriches Program with its course count.
type ProgramDetail struct {
	Program
	CourseCount int `db:"course_count" json:"course_count"`
}

// ProgramFilter provides filters for listing programs.
type ProgramFilter struct {
	Search   string
	Page     int
	PageSize int
}
