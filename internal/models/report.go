package models

import "time"

// DailyReport is the staff-authored summary of a student's day. At most one
// exists per (student, date); resubmitting overwrites.
type DailyReport struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Date       time.Time `db:"date" json:"date"`
	Meals      string    `db:"meals" json:"meals"`
	Nap        string    `db:"nap" json:"nap"`
	Activities string    `db:"activities" json:"activities"`
	Mood       string    `db:"mood" json:"mood"`
	Notes      string    `db:"notes" json:"notes"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TodayReport is the guardian-facing wrapper: a missing report is the normal
// "not yet available" state rather than an error.
type TodayReport struct {
	Available bool         `json:"available"`
	Report    *DailyReport `json:"report,omitempty"`
}
