package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindwellhq/counseling-scheduler/internal/config"
	redisclient "github.com/mindwellhq/counseling-scheduler/internal/redis"
)

const (
	EventBookingCreated    = "APPOINTMENT_CREATED"
	EventStatusChanged     = "APPOINTMENT_STATUS_CHANGED"
	EventSlotReleased      = "SLOT_RELEASED"
	EventPaymentLinkFailed = "PAYMENT_LINK_FAILED"
	EventBookingExpired    = "APPOINTMENT_EXPIRED"
)

var (
	ErrSlotAlreadyBooked = errors.New("schedule already booked")
	ErrSlotBeingBooked   = errors.New("schedule is currently being booked, please retry")
	ErrBookingConflict   = errors.New("you already have a confirmed appointment at this time")
	ErrInvalidStatus     = errors.New("invalid appointment status")
	ErrInvalidSlotWindow = errors.New("start time must be before end time")
	ErrMissingField      = errors.New("missing required field")
)

// PaymentLinkRequest is what the coordinator sends to the payment
// collaborator after an appointment is created.
type PaymentLinkRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	ExpiredAt   time.Time
}

type PaymentLink struct {
	OrderCode   int64
	CheckoutURL string
	Status      PaymentStatus
}

// PaymentProvider creates checkout links with the external gateway.
type PaymentProvider interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	payments PaymentProvider
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, payments PaymentProvider, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		payments: payments,
		cfg:      cfg,
		log:      log.With().Str("component", "booking").Logger(),
	}
}

type CreateBookingInput struct {
	PatientID      uuid.UUID
	PsychologistID uuid.UUID
	ScheduleID     uuid.UUID
	Symptoms       string
}

type BookingResult struct {
	AppointmentID uuid.UUID
	ExpiredAt     time.Time
}

// CreateBooking reserves a slot for a patient end to end: conflict check,
// atomic slot reservation, appointment creation, payment-link request.
// A per-slot distributed lock keeps concurrent attempts from interleaving,
// and the reservation itself is a conditional update so that even without
// the lock at most one booking can claim a free slot.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*BookingResult, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patientId", ErrMissingField)
	}
	if in.PsychologistID == uuid.Nil {
		return nil, fmt.Errorf("%w: psychologistId", ErrMissingField)
	}
	if in.ScheduleID == uuid.Nil {
		return nil, fmt.Errorf("%w: scheduleId", ErrMissingField)
	}
	if in.Symptoms == "" {
		return nil, fmt.Errorf("%w: symptoms", ErrMissingField)
	}

	slot, err := s.repo.GetSlotByID(ctx, in.ScheduleID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.IsBooked {
		return nil, ErrSlotAlreadyBooked
	}

	confirmed, err := s.repo.ListConfirmedByPatientOnDate(ctx, in.PatientID, slot.SlotDate)
	if err != nil {
		return nil, fmt.Errorf("load confirmed appointments: %w", err)
	}
	if HasConflict(slot, confirmed) {
		return nil, ErrBookingConflict
	}

	var result *BookingResult

	err = s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		booked, err := s.bookSlot(lockCtx, in, slot)
		if err != nil {
			return err
		}
		result = booked
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return result, nil
}

// bookSlot runs inside the slot lock. Once the slot is reserved, any
// failure before the appointment exists releases it again.
func (s *Service) bookSlot(ctx context.Context, in CreateBookingInput, slot *AvailabilitySlot) (*BookingResult, error) {
	if _, err := s.repo.ReserveSlot(ctx, slot.ID); err != nil {
		if errors.Is(err, ErrSlotAlreadyBooked) || errors.Is(err, ErrSlotNotFound) || errors.Is(err, ErrSlotBeingBooked) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	psy, err := s.repo.GetPsychologistByID(ctx, in.PsychologistID)
	if err != nil {
		s.releaseReservedSlot(ctx, slot.ID)
		if errors.Is(err, ErrPsychologistNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load psychologist: %w", err)
	}

	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		s.releaseReservedSlot(ctx, slot.ID)
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	appt, err := s.repo.CreateAppointment(ctx, NewAppointment{
		PatientID:      in.PatientID,
		PsychologistID: in.PsychologistID,
		AvailabilityID: slot.ID,
		Scheduled: ScheduledTime{
			Date:      slot.SlotDate,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
		},
		PatientNote: in.Symptoms,
	})
	if err != nil {
		s.releaseReservedSlot(ctx, slot.ID)
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	if err := s.repo.AttachAppointment(ctx, slot.ID, appt.ID); err != nil {
		// The appointment row already exists. Void it as well, or it
		// would sit Pending with no payment window for the sweeper to
		// pick up, able to be confirmed against a slot it never held.
		if _, cancelErr := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusCancelled); cancelErr != nil {
			s.log.Error().Err(cancelErr).Stringer("appointment_id", appt.ID).Msg("failed to void appointment after attach failure")
		}
		s.releaseReservedSlot(ctx, slot.ID)
		return nil, fmt.Errorf("attach appointment to slot: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventBookingCreated, map[string]any{
		"slot_id":    slot.ID.String(),
		"patient_id": in.PatientID.String(),
	})

	expiredAt := time.Now().Add(s.cfg.PaymentExpiry)
	s.requestPaymentLink(ctx, appt, psy, expiredAt)

	return &BookingResult{AppointmentID: appt.ID, ExpiredAt: expiredAt}, nil
}

// requestPaymentLink asks the gateway for a checkout link. A failure here
// does not void the booking: the appointment stays Pending with payment
// marked Failed, so staff can re-issue the link.
func (s *Service) requestPaymentLink(ctx context.Context, appt *Appointment, psy *Psychologist, expiredAt time.Time) {
	orderCode := time.Now().UnixMilli()
	info := PaymentInformation{
		OrderCode: orderCode,
		Amount:    psy.SessionFee,
		ExpiredAt: &expiredAt,
	}

	link, err := s.payments.CreatePaymentLink(ctx, PaymentLinkRequest{
		OrderCode:   orderCode,
		Amount:      psy.SessionFee,
		Description: fmt.Sprintf("Counseling session with %s", psy.Name),
		ExpiredAt:   expiredAt,
	})
	if err != nil {
		s.log.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("payment link request failed")
		info.Status = PaymentFailed
		s.logEvent(ctx, appt.ID, EventPaymentLinkFailed, map[string]any{"error": err.Error()})
	} else {
		info.OrderCode = link.OrderCode
		info.CheckoutURL = link.CheckoutURL
		info.Status = link.Status
		if info.Status == "" {
			info.Status = PaymentPending
		}
	}

	if err := s.repo.SetPaymentInformation(ctx, appt.ID, info); err != nil {
		s.log.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to store payment information")
	}
}

func (s *Service) releaseReservedSlot(ctx context.Context, slotID uuid.UUID) {
	if err := s.repo.ReleaseSlot(ctx, slotID); err != nil {
		s.log.Error().Err(err).Stringer("slot_id", slotID).Msg("failed to release slot after booking failure")
	}
}

type UpdateStatusInput struct {
	AppointmentID uuid.UUID
	Status        *AppointmentStatus
	Note          *string
	StaffID       *string
	CallerID      string
	CallerRole    string
}

// UpdateStatus applies a status change and/or a role-routed note to an
// appointment. Any enumerated status is accepted from any current state;
// on cancellation the held slot is released back to the available pool.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, in.AppointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	role := RoleFromString(in.CallerRole)

	if in.Status != nil {
		next := *in.Status
		if !next.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
		}

		if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, next); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}

		s.logEvent(ctx, appt.ID, EventStatusChanged, map[string]any{
			"from": string(appt.Status),
			"to":   string(next),
		})

		if next == StatusCancelled && appt.Status != StatusCancelled {
			s.releaseCancelledSlot(ctx, appt)
		}
	}

	if in.Note != nil {
		if err := s.repo.SetNote(ctx, appt.ID, role, *in.Note); err != nil {
			return nil, fmt.Errorf("set note: %w", err)
		}
	}

	userID := in.CallerID
	if in.StaffID != nil && *in.StaffID != "" {
		userID = *in.StaffID
	}
	if userID == "" {
		userID = "system"
	}
	if err := s.repo.SetLastModifiedBy(ctx, appt.ID, userID, role, time.Now()); err != nil {
		return nil, fmt.Errorf("stamp last modified: %w", err)
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("load updated appointment: %w", err)
	}
	return detail, nil
}

// releaseCancelledSlot frees the slot held by a cancelled appointment.
// The lookup goes by back-reference so a slot that was already freed and
// re-booked by someone else is never touched. A missing slot is logged
// and the cancellation still succeeds.
func (s *Service) releaseCancelledSlot(ctx context.Context, appt *Appointment) {
	slot, err := s.repo.FindSlotByAppointment(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			s.log.Warn().Stringer("appointment_id", appt.ID).Msg("no slot held by cancelled appointment")
			return
		}
		s.log.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("slot lookup failed during cancellation")
		return
	}

	if err := s.repo.ReleaseSlot(ctx, slot.ID); err != nil {
		s.log.Error().Err(err).Stringer("slot_id", slot.ID).Msg("failed to release slot on cancellation")
		return
	}

	s.logEvent(ctx, appt.ID, EventSlotReleased, map[string]any{
		"slot_id": slot.ID.String(),
	})
}

// GetAppointment retrieves an appointment enriched with patient and
// psychologist summaries.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointments pages through appointments matching the filter, newest
// scheduled first. Returns the matching page and the total match count.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	f = f.Normalize()
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, *f.Status)
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return items, total, nil
}

// CreateSlot creates one availability slot for a psychologist.
func (s *Service) CreateSlot(ctx context.Context, psychologistID uuid.UUID, w SlotWindow) (*AvailabilitySlot, error) {
	if psychologistID == uuid.Nil {
		return nil, fmt.Errorf("%w: psychologistId", ErrMissingField)
	}
	if w.Date.IsZero() || w.StartTime.IsZero() || w.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: date, startTime and endTime are required", ErrMissingField)
	}
	if !w.StartTime.Before(w.EndTime) {
		return nil, ErrInvalidSlotWindow
	}

	if _, err := s.repo.GetPsychologistByID(ctx, psychologistID); err != nil {
		if errors.Is(err, ErrPsychologistNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load psychologist: %w", err)
	}

	slot, err := s.repo.CreateSlot(ctx, psychologistID, w)
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return slot, nil
}

// CreateSlotBatch creates the given daily windows for every day in
// [from, to]. Windows are clock times applied to each day in the range.
func (s *Service) CreateSlotBatch(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, daily []SlotWindow) ([]AvailabilitySlot, error) {
	if psychologistID == uuid.Nil {
		return nil, fmt.Errorf("%w: psychologistId", ErrMissingField)
	}
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: startDate and endDate are required", ErrMissingField)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: endDate is before startDate", ErrInvalidSlotWindow)
	}
	if len(daily) == 0 {
		return nil, fmt.Errorf("%w: at least one window is required", ErrMissingField)
	}
	for _, w := range daily {
		if !w.StartTime.Before(w.EndTime) {
			return nil, ErrInvalidSlotWindow
		}
	}

	if _, err := s.repo.GetPsychologistByID(ctx, psychologistID); err != nil {
		if errors.Is(err, ErrPsychologistNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load psychologist: %w", err)
	}

	var windows []SlotWindow
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, w := range daily {
			windows = append(windows, SlotWindow{
				Date:      day,
				StartTime: onDay(day, w.StartTime),
				EndTime:   onDay(day, w.EndTime),
			})
		}
	}

	slots, err := s.repo.CreateSlots(ctx, psychologistID, windows)
	if err != nil {
		return nil, fmt.Errorf("create slot batch: %w", err)
	}
	return slots, nil
}

func onDay(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), 0, 0, day.Location())
}

// GetSlot retrieves one availability slot.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// ListSlots retrieves all of a psychologist's slots.
func (s *Service) ListSlots(ctx context.Context, psychologistID uuid.UUID) ([]AvailabilitySlot, error) {
	slots, err := s.repo.ListSlotsByPsychologist(ctx, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ExpireLapsedBookings cancels Pending appointments whose payment window
// has passed and frees their slots. Called periodically by the worker.
func (s *Service) ExpireLapsedBookings(ctx context.Context) error {
	now := time.Now()
	lapsed, err := s.repo.FindLapsedPending(ctx, now)
	if err != nil {
		return fmt.Errorf("find lapsed pending appointments: %w", err)
	}

	for i := range lapsed {
		appt := &lapsed[i]

		// Conditional on still being Pending so a concurrent confirm
		// or manual cancel wins.
		cancelled, err := s.repo.CancelIfPending(ctx, appt.ID)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.log.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to expire appointment")
			continue
		}

		if err := s.repo.SetPaymentInformation(ctx, cancelled.ID, PaymentInformation{
			OrderCode:   cancelled.Payment.OrderCode,
			Amount:      cancelled.Payment.Amount,
			Status:      PaymentExpired,
			ExpiredAt:   cancelled.Payment.ExpiredAt,
			CheckoutURL: cancelled.Payment.CheckoutURL,
		}); err != nil {
			s.log.Error().Err(err).Stringer("appointment_id", cancelled.ID).Msg("failed to mark payment expired")
		}

		s.releaseCancelledSlot(ctx, cancelled)

		s.logEvent(ctx, cancelled.ID, EventBookingExpired, map[string]any{
			"reason": "payment_window_lapsed",
		})
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Stringer("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}
