package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "Pending"
	StatusConfirmed   AppointmentStatus = "Confirmed"
	StatusCompleted   AppointmentStatus = "Completed"
	StatusCancelled   AppointmentStatus = "Cancelled"
	StatusRescheduled AppointmentStatus = "Rescheduled"
	StatusNoShow      AppointmentStatus = "No-show"
)

// Valid reports whether s is one of the enumerated appointment statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted,
		StatusCancelled, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

type Role string

const (
	RolePatient      Role = "patient"
	RolePsychologist Role = "psychologist"
	RoleStaff        Role = "staff"
)

// RoleFromString maps an arbitrary caller role onto the closed note-routing
// set. Anything that is not a patient or psychologist writes as staff.
func RoleFromString(s string) Role {
	switch Role(s) {
	case RolePatient:
		return RolePatient
	case RolePsychologist:
		return RolePsychologist
	default:
		return RoleStaff
	}
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
	PaymentExpired PaymentStatus = "Expired"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	Avatar    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Psychologist struct {
	ID         uuid.UUID
	Name       string
	Email      *string
	Phone      *string
	Avatar     *string
	Specialty  *string
	SessionFee int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AvailabilitySlot is a psychologist's bookable window. IsBooked is true
// exactly when AppointmentID is set.
type AvailabilitySlot struct {
	ID             uuid.UUID
	PsychologistID uuid.UUID
	SlotDate       time.Time
	StartTime      time.Time
	EndTime        time.Time
	IsBooked       bool
	AppointmentID  *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduledTime is the slot window snapshotted onto the appointment at
// booking time. It never tracks later changes to the slot.
type ScheduledTime struct {
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
}

type Notes struct {
	Patient      *string
	Psychologist *string
	Staff        *string
}

type LastModifiedBy struct {
	UserID    string
	Role      Role
	Timestamp time.Time
}

type PaymentInformation struct {
	OrderCode   int64
	Amount      int64
	Status      PaymentStatus
	ExpiredAt   *time.Time
	CheckoutURL string
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PsychologistID uuid.UUID
	AvailabilityID uuid.UUID
	Scheduled      ScheduledTime
	Status         AppointmentStatus
	IsRescheduled  bool
	Notes          Notes
	LastModified   *LastModifiedBy
	Payment        PaymentInformation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PersonSummary is the read-side projection of a patient or psychologist
// attached to appointment query results.
type PersonSummary struct {
	ID     uuid.UUID
	Name   string
	Email  *string
	Phone  *string
	Avatar *string
}

type AppointmentDetail struct {
	Appointment
	Patient      *PersonSummary
	Psychologist *PersonSummary
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
