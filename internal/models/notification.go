package models

import "time"

// EventKind identifies the notification-worthy attendance events.
type EventKind string

const (
	EventArrival     EventKind = "ARRIVAL"
	EventDeparture   EventKind = "DEPARTURE"
	EventReportReady EventKind = "REPORT_READY"
)

// Event is handed to the notification dispatcher after a state transition
// has been committed. Dispatch is best-effort and never reported back.
type Event struct {
	Kind        EventKind `json:"kind"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	PickedUpBy  string    `json:"picked_up_by,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// DeviceToken links a guardian device's push token to a student.
type DeviceToken struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	PushToken string    `db:"push_token" json:"push_token"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
