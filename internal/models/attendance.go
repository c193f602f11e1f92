package models

import "time"

// SessionState is the daily presence state of a student derived from the
// attendance ledger. Absent means no record for the day, Present means an
// open record exists, Departed means the day's record is closed.
type SessionState string

const (
	SessionAbsent   SessionState = "ABSENT"
	SessionPresent  SessionState = "PRESENT"
	SessionDeparted SessionState = "DEPARTED"
)

// AttendanceRecord is one physical presence interval for a student. A record
// is open while CheckOut is nil; closing it is the only mutation.
type AttendanceRecord struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Date         time.Time  `db:"date" json:"date"`
	CheckIn      time.Time  `db:"check_in" json:"check_in"`
	CheckOut     *time.Time `db:"check_out" json:"check_out,omitempty"`
	CheckedInBy  string     `db:"checked_in_by" json:"checked_in_by"`
	CheckedOutBy *string    `db:"checked_out_by" json:"checked_out_by,omitempty"`
	SignatureIn  *string    `db:"signature_in" json:"signature_in,omitempty"`
	SignatureOut *string    `db:"signature_out" json:"signature_out,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// State reports the session state this record represents.
func (r *AttendanceRecord) State() SessionState {
	if r == nil {
		return SessionAbsent
	}
	if r.CheckOut == nil {
		return SessionPresent
	}
	return SessionDeparted
}

// SessionStatus pairs a state with the day's record, if any.
type SessionStatus struct {
	StudentID string            `json:"student_id"`
	Date      time.Time         `json:"date"`
	State     SessionState      `json:"state"`
	Record    *AttendanceRecord `json:"record,omitempty"`
}

// RosterEntry is one student's row on the director roster for a day.
type RosterEntry struct {
	StudentID    string       `db:"student_id" json:"student_id"`
	StudentName  string       `db:"student_name" json:"student_name"`
	GuardianName string       `db:"guardian_name" json:"guardian_name"`
	BirthDate    time.Time    `db:"birth_date" json:"birth_date"`
	CheckIn      *time.Time   `db:"check_in" json:"check_in,omitempty"`
	CheckOut     *time.Time   `db:"check_out" json:"check_out,omitempty"`
	CheckedOutBy *string      `db:"checked_out_by" json:"checked_out_by,omitempty"`
	State        SessionState `json:"state"`
}

// AttendanceHistoryRow captures one past visit for a student.
type AttendanceHistoryRow struct {
	Date         time.Time  `db:"date" json:"date"`
	CheckIn      time.Time  `db:"check_in" json:"check_in"`
	CheckOut     *time.Time `db:"check_out" json:"check_out,omitempty"`
	CheckedOutBy *string    `db:"checked_out_by" json:"checked_out_by,omitempty"`
}

// DaySummary aggregates presence counts for a calendar date.
type DaySummary struct {
	Date     time.Time `json:"date"`
	Present  int       `json:"present"`
	Departed int       `json:"departed"`
	Expected int       `json:"expected"`
	Total    int       `json:"total"`
}
