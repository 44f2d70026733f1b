package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, psychologist_id, availability_id,
	scheduled_date, scheduled_start, scheduled_end,
	status, is_rescheduled,
	patient_note, psychologist_note, staff_note,
	last_modified_by, last_modified_role, last_modified_at,
	payment_order_code, payment_amount, payment_status, payment_expired_at, payment_checkout_url,
	created_at, updated_at`

const slotColumns = `
	id, psychologist_id, slot_date, start_time, end_time,
	is_booked, appointment_id, created_at, updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Avatar,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPsychologist(row pgx.Row) (*Psychologist, error) {
	var p Psychologist

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Avatar,
		&p.Specialty,
		&p.SessionFee,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPsychologistNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot

	err := row.Scan(
		&s.ID,
		&s.PsychologistID,
		&s.SlotDate,
		&s.StartTime,
		&s.EndTime,
		&s.IsBooked,
		&s.AppointmentID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a            Appointment
		modifiedBy   *string
		modifiedRole *string
		modifiedAt   *time.Time
		orderCode    *int64
		amount       *int64
		payStatus    *string
		expiredAt    *time.Time
		checkoutURL  *string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PsychologistID,
		&a.AvailabilityID,
		&a.Scheduled.Date,
		&a.Scheduled.StartTime,
		&a.Scheduled.EndTime,
		&a.Status,
		&a.IsRescheduled,
		&a.Notes.Patient,
		&a.Notes.Psychologist,
		&a.Notes.Staff,
		&modifiedBy,
		&modifiedRole,
		&modifiedAt,
		&orderCode,
		&amount,
		&payStatus,
		&expiredAt,
		&checkoutURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if modifiedBy != nil && modifiedRole != nil && modifiedAt != nil {
		a.LastModified = &LastModifiedBy{
			UserID:    *modifiedBy,
			Role:      Role(*modifiedRole),
			Timestamp: *modifiedAt,
		}
	}

	if orderCode != nil {
		a.Payment.OrderCode = *orderCode
	}
	if amount != nil {
		a.Payment.Amount = *amount
	}
	if payStatus != nil {
		a.Payment.Status = PaymentStatus(*payStatus)
	}
	a.Payment.ExpiredAt = expiredAt
	if checkoutURL != nil {
		a.Payment.CheckoutURL = *checkoutURL
	}

	return &a, nil
}

// Users

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, avatar, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPsychologistByID(ctx context.Context, id uuid.UUID) (*Psychologist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, avatar, specialty, session_fee, created_at, updated_at
		FROM psychologists
		WHERE id = $1
	`, id)
	return scanPsychologist(row)
}

// Availability slots

func (r *PgRepository) CreateSlot(ctx context.Context, psychologistID uuid.UUID, w SlotWindow) (*AvailabilitySlot, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots (id, psychologist_id, slot_date, start_time, end_time, is_booked, appointment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, NULL, now(), now())
		RETURNING `+slotColumns+`
	`, id, psychologistID, w.Date, w.StartTime, w.EndTime)

	return scanSlot(row)
}

func (r *PgRepository) CreateSlots(ctx context.Context, psychologistID uuid.UUID, windows []SlotWindow) ([]AvailabilitySlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin slot batch: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]AvailabilitySlot, 0, len(windows))
	for _, w := range windows {
		row := tx.QueryRow(ctx, `
			INSERT INTO availability_slots (id, psychologist_id, slot_date, start_time, end_time, is_booked, appointment_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, NULL, now(), now())
			RETURNING `+slotColumns+`
		`, uuid.New(), psychologistID, w.Date, w.StartTime, w.EndTime)

		slot, err := scanSlot(row)
		if err != nil {
			return nil, fmt.Errorf("insert slot: %w", err)
		}
		created = append(created, *slot)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit slot batch: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByPsychologist(ctx context.Context, psychologistID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE psychologist_id = $1
		ORDER BY slot_date, start_time
	`, psychologistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ReserveSlot is the only way a slot becomes booked. The WHERE clause makes
// it a compare-and-set: of two concurrent bookings only one sees a row.
func (r *PgRepository) ReserveSlot(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE availability_slots
		SET is_booked = true,
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = false
		RETURNING `+slotColumns+`
	`, id)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Either the slot does not exist or it was booked in between.
			existing, lookupErr := r.GetSlotByID(ctx, id)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing.IsBooked {
				return nil, ErrSlotAlreadyBooked
			}
			// The slot exists and reads free again, so it was booked and
			// released between the two statements. Retryable.
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return slot, nil
}

func (r *PgRepository) AttachAppointment(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, slotID, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET is_booked = false,
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) FindSlotByAppointment(ctx context.Context, appointmentID uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE appointment_id = $1
	`, appointmentID)
	return scanSlot(row)
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, psychologist_id, availability_id,
			scheduled_date, scheduled_start, scheduled_end,
			status, is_rescheduled, patient_note,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'Pending', false, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, in.PatientID, in.PsychologistID, in.AvailabilityID,
		in.Scheduled.Date, in.Scheduled.StartTime, in.Scheduled.EndTime,
		in.PatientNote)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.enrich(ctx, appt)
}

// enrich assembles the read model: appointment plus patient and
// psychologist summaries. Deliberately a separate read-side join so the
// core rows stay free of denormalized user data.
func (r *PgRepository) enrich(ctx context.Context, appt *Appointment) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Appointment: *appt}

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	if patient != nil {
		detail.Patient = &PersonSummary{
			ID:     patient.ID,
			Name:   patient.Name,
			Email:  patient.Email,
			Phone:  patient.Phone,
			Avatar: patient.Avatar,
		}
	}

	psy, err := r.GetPsychologistByID(ctx, appt.PsychologistID)
	if err != nil && !errors.Is(err, ErrPsychologistNotFound) {
		return nil, err
	}
	if psy != nil {
		detail.Psychologist = &PersonSummary{
			ID:     psy.ID,
			Name:   psy.Name,
			Email:  psy.Email,
			Phone:  psy.Phone,
			Avatar: psy.Avatar,
		}
	}

	return detail, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	var (
		conds []string
		args  []any
	)

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("a.status = $%d", *f.Status)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.PsychologistID != nil {
		add("a.psychologist_id = $%d", *f.PsychologistID)
	}
	if f.StartDate != nil {
		add("a.scheduled_date >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("a.scheduled_date <= $%d", *f.EndDate)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT count(*) FROM appointments a "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	offset := (f.Page - 1) * f.Limit
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT
			a.id, a.patient_id, a.psychologist_id, a.availability_id,
			a.scheduled_date, a.scheduled_start, a.scheduled_end,
			a.status, a.is_rescheduled,
			a.patient_note, a.psychologist_note, a.staff_note,
			a.last_modified_by, a.last_modified_role, a.last_modified_at,
			a.payment_order_code, a.payment_amount, a.payment_status, a.payment_expired_at, a.payment_checkout_url,
			a.created_at, a.updated_at,
			p.id, p.name, p.email, p.phone, p.avatar,
			y.id, y.name, y.email, y.phone, y.avatar
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN psychologists y ON y.id = a.psychologist_id
		%s
		ORDER BY a.scheduled_date DESC, a.scheduled_start DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		a            Appointment
		modifiedBy   *string
		modifiedRole *string
		modifiedAt   *time.Time
		orderCode    *int64
		amount       *int64
		payStatus    *string
		expiredAt    *time.Time
		checkoutURL  *string
		patient      PersonSummary
		psy          PersonSummary
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PsychologistID,
		&a.AvailabilityID,
		&a.Scheduled.Date,
		&a.Scheduled.StartTime,
		&a.Scheduled.EndTime,
		&a.Status,
		&a.IsRescheduled,
		&a.Notes.Patient,
		&a.Notes.Psychologist,
		&a.Notes.Staff,
		&modifiedBy,
		&modifiedRole,
		&modifiedAt,
		&orderCode,
		&amount,
		&payStatus,
		&expiredAt,
		&checkoutURL,
		&a.CreatedAt,
		&a.UpdatedAt,
		&patient.ID,
		&patient.Name,
		&patient.Email,
		&patient.Phone,
		&patient.Avatar,
		&psy.ID,
		&psy.Name,
		&psy.Email,
		&psy.Phone,
		&psy.Avatar,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if modifiedBy != nil && modifiedRole != nil && modifiedAt != nil {
		a.LastModified = &LastModifiedBy{
			UserID:    *modifiedBy,
			Role:      Role(*modifiedRole),
			Timestamp: *modifiedAt,
		}
	}
	if orderCode != nil {
		a.Payment.OrderCode = *orderCode
	}
	if amount != nil {
		a.Payment.Amount = *amount
	}
	if payStatus != nil {
		a.Payment.Status = PaymentStatus(*payStatus)
	}
	a.Payment.ExpiredAt = expiredAt
	if checkoutURL != nil {
		a.Payment.CheckoutURL = *checkoutURL
	}

	return &AppointmentDetail{
		Appointment:  a,
		Patient:      &patient,
		Psychologist: &psy,
	}, nil
}

func (r *PgRepository) ListConfirmedByPatientOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status = 'Confirmed'
		  AND scheduled_date = $2
	`, patientID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    is_rescheduled = (is_rescheduled OR $2 = 'Rescheduled'),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status)

	return scanAppointment(row)
}

// CancelIfPending cancels only if the appointment is still Pending, so the
// expiry sweep never clobbers an appointment confirmed in the meantime.
func (r *PgRepository) CancelIfPending(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'Cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'Pending'
		RETURNING `+appointmentColumns+`
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) SetNote(ctx context.Context, id uuid.UUID, role Role, text string) error {
	column := "staff_note"
	switch role {
	case RolePatient:
		column = "patient_note"
	case RolePsychologist:
		column = "psychologist_note"
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET `+column+` = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetLastModifiedBy(ctx context.Context, id uuid.UUID, userID string, role Role, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET last_modified_by = $2,
		    last_modified_role = $3,
		    last_modified_at = $4,
		    updated_at = now()
		WHERE id = $1
	`, id, userID, role, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetPaymentInformation(ctx context.Context, id uuid.UUID, p PaymentInformation) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET payment_order_code = $2,
		    payment_amount = $3,
		    payment_status = $4,
		    payment_expired_at = $5,
		    payment_checkout_url = $6,
		    updated_at = now()
		WHERE id = $1
	`, id, p.OrderCode, p.Amount, p.Status, p.ExpiredAt, p.CheckoutURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindLapsedPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'Pending'
		  AND payment_expired_at IS NOT NULL
		  AND payment_expired_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
