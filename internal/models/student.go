package models

import "time"

// Student represents a child enrolled at the nido.
type Student struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	BirthDate     time.Time `db:"birth_date" json:"birth_date"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone" json:"guardian_phone"`
	AccessCode    string    `db:"access_code" json:"access_code"`
	PhotoURL      *string   `db:"photo_url" json:"photo_url,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Age returns the student's age in whole years at the given time.
func (s Student) Age(at time.Time) int {
	years := at.Year() - s.BirthDate.Year()
	anniversary := s.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentSummary is the guardian-facing view of a student. The access code
// and guardian contact details are deliberately not echoed back.
type StudentSummary struct {
	ID           string  `json:"id"`
	FullName     string  `json:"full_name"`
	AgeYears     int     `json:"age_years"`
	GuardianName string  `json:"guardian_name"`
	PhotoURL     *string `json:"photo_url,omitempty"`
}
