package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPsychologistNotFound = errors.New("psychologist not found")
	ErrSlotNotFound         = errors.New("schedule not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// SlotWindow is one bookable window to create, used by batch creation.
type SlotWindow struct {
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
}

// NewAppointment carries everything the coordinator knows at creation time.
// The stored record always starts out Pending and not rescheduled.
type NewAppointment struct {
	PatientID      uuid.UUID
	PsychologistID uuid.UUID
	AvailabilityID uuid.UUID
	Scheduled      ScheduledTime
	PatientNote    string
}

// ListFilter narrows and pages appointment queries. Nil fields match all.
type ListFilter struct {
	Status         *AppointmentStatus
	PatientID      *uuid.UUID
	PsychologistID *uuid.UUID
	StartDate      *time.Time
	EndDate        *time.Time
	Page           int
	Limit          int
}

// Normalize applies paging defaults and caps: page at least 1, limit
// defaulting to 20 and capped at 100. Callers building pagination
// envelopes must use the normalized values, not the raw request.
func (f ListFilter) Normalize() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPsychologistByID(ctx context.Context, id uuid.UUID) (*Psychologist, error)

	// Availability slots
	CreateSlot(ctx context.Context, psychologistID uuid.UUID, w SlotWindow) (*AvailabilitySlot, error)
	CreateSlots(ctx context.Context, psychologistID uuid.UUID, windows []SlotWindow) ([]AvailabilitySlot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	ListSlotsByPsychologist(ctx context.Context, psychologistID uuid.UUID) ([]AvailabilitySlot, error)

	// ReserveSlot flips is_booked in a single conditional update and
	// returns ErrSlotAlreadyBooked when the slot was taken in between.
	ReserveSlot(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	AttachAppointment(ctx context.Context, slotID, appointmentID uuid.UUID) error
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) error
	FindSlotByAppointment(ctx context.Context, appointmentID uuid.UUID) (*AvailabilitySlot, error)

	// Appointments
	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error)

	// For conflict checks
	ListConfirmedByPatientOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) ([]Appointment, error)

	// Mutations
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error)
	CancelIfPending(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SetNote(ctx context.Context, id uuid.UUID, role Role, text string) error
	SetLastModifiedBy(ctx context.Context, id uuid.UUID, userID string, role Role, at time.Time) error
	SetPaymentInformation(ctx context.Context, id uuid.UUID, p PaymentInformation) error

	// Expiry worker
	FindLapsedPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
