package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindwellhq/counseling-scheduler/internal/booking"
	redisclient "github.com/mindwellhq/counseling-scheduler/internal/redis"
)

// BookingService is the service surface the HTTP layer depends on.
type BookingService interface {
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*booking.BookingResult, error)
	UpdateStatus(ctx context.Context, in booking.UpdateStatusInput) (*booking.AppointmentDetail, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error)
	ListAppointments(ctx context.Context, f booking.ListFilter) ([]booking.AppointmentDetail, int, error)
	CreateSlot(ctx context.Context, psychologistID uuid.UUID, w booking.SlotWindow) (*booking.AvailabilitySlot, error)
	CreateSlotBatch(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, daily []booking.SlotWindow) ([]booking.AvailabilitySlot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*booking.AvailabilitySlot, error)
	ListSlots(ctx context.Context, psychologistID uuid.UUID) ([]booking.AvailabilitySlot, error)
}

const maxFormMemory = 1 << 20

func saveAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse multipart form")
			return
		}

		patientID, err := uuid.Parse(r.FormValue("patientId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		psychologistID, err := uuid.Parse(r.FormValue("psychologistId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_psychologist_id", "psychologistId must be a valid UUID")
			return
		}

		scheduleID, err := uuid.Parse(r.FormValue("scheduleId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "scheduleId must be a valid UUID")
			return
		}

		result, err := svc.CreateBooking(r.Context(), booking.CreateBookingInput{
			PatientID:      patientID,
			PsychologistID: psychologistID,
			ScheduleID:     scheduleID,
			Symptoms:       r.FormValue("symptoms"),
		})
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, SaveAppointmentResponse{
			Message:       "Appointment booked successfully",
			AppointmentID: result.AppointmentID,
			ExpiredAt:     result.ExpiredAt,
		})
	}
}

func updateStatusHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentId must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		callerID, callerRole := GetCaller(r.Context())

		in := booking.UpdateStatusInput{
			AppointmentID: id,
			Note:          req.Note,
			StaffID:       req.StaffID,
			CallerID:      callerID,
			CallerRole:    callerRole,
		}
		if req.Status != nil {
			status := booking.AppointmentStatus(*req.Status)
			in.Status = &status
		}

		detail, err := svc.UpdateStatus(r.Context(), in)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func getAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentId must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func listAppointmentsHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		// The envelope below must reflect the page size actually served,
		// so normalize before querying rather than leaving it to the
		// service.
		f = f.Normalize()

		items, total, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		appointments := make([]AppointmentResponse, 0, len(items))
		for i := range items {
			appointments = append(appointments, toAppointmentResponse(&items[i]))
		}

		pages := 0
		if f.Limit > 0 {
			pages = (total + f.Limit - 1) / f.Limit
		}

		writeJSON(w, http.StatusOK, ListAppointmentsResponse{
			Appointments: appointments,
			Pagination: Pagination{
				Total: total,
				Page:  f.Page,
				Limit: f.Limit,
				Pages: pages,
			},
		})
	}
}

func parseListFilter(r *http.Request) (booking.ListFilter, error) {
	q := r.URL.Query()
	f := booking.ListFilter{Page: 1, Limit: 20}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("page must be a positive integer")
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	if v := q.Get("status"); v != "" {
		status := booking.AppointmentStatus(v)
		f.Status = &status
	}
	if v := q.Get("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("patientId must be a valid UUID")
		}
		f.PatientID = &id
	}
	if v := q.Get("psychologistId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("psychologistId must be a valid UUID")
		}
		f.PsychologistID = &id
	}
	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, errors.New("startDate must be YYYY-MM-DD")
		}
		f.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, errors.New("endDate must be YYYY-MM-DD")
		}
		f.EndDate = &t
	}

	return f, nil
}

func createAvailabilityHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		psychologistID, err := uuid.Parse(req.PsychologistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_psychologist_id", "psychologistId must be a valid UUID")
			return
		}

		window, err := parseSlotWindow(req.Date, req.StartTime, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
			return
		}

		slot, err := svc.CreateSlot(r.Context(), psychologistID, window)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"message":      "Availability created successfully",
			"availability": toAvailabilityResponse(slot),
		})
	}
}

func parseSlotWindow(date, start, end string) (booking.SlotWindow, error) {
	var w booking.SlotWindow

	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return w, errors.New("date must be YYYY-MM-DD")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return w, errors.New("startTime must be RFC 3339")
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return w, errors.New("endTime must be RFC 3339")
	}

	w.Date = d
	w.StartTime = s
	w.EndTime = e
	return w, nil
}

const clockLayout = "15:04"

func batchCreateAvailabilityHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchCreateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		psychologistID, err := uuid.Parse(req.PsychologistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_psychologist_id", "psychologistId must be a valid UUID")
			return
		}

		from, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_range", "startDate must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_range", "endDate must be YYYY-MM-DD")
			return
		}

		daily := make([]booking.SlotWindow, 0, len(req.Windows))
		for _, win := range req.Windows {
			s, err := time.Parse(clockLayout, win.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_window", "window start must be HH:MM")
				return
			}
			e, err := time.Parse(clockLayout, win.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_window", "window end must be HH:MM")
				return
			}
			daily = append(daily, booking.SlotWindow{StartTime: s, EndTime: e})
		}

		slots, err := svc.CreateSlotBatch(r.Context(), psychologistID, from, to, daily)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		out := make([]AvailabilityResponse, 0, len(slots))
		for i := range slots {
			out = append(out, toAvailabilityResponse(&slots[i]))
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"message":      "Availability created successfully",
			"availability": out,
		})
	}
}

func getScheduleHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "scheduleId must be a valid UUID")
			return
		}

		slot, err := svc.GetSlot(r.Context(), id)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(slot))
	}
}

func listSchedulesHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_psychologist_id", "doctorId must be a valid UUID")
			return
		}

		slots, err := svc.ListSlots(r.Context(), id)
		if err != nil {
			handleServiceError(w, log, err)
			return
		}

		out := make([]AvailabilityResponse, 0, len(slots))
		for i := range slots {
			out = append(out, toAvailabilityResponse(&slots[i]))
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// handleServiceError translates booking errors into the HTTP taxonomy:
// validation 400, unknown ids 404, booking races and overlaps 409, and
// everything else a generic 500 with the detail kept server-side.
func handleServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrMissingField),
		errors.Is(err, booking.ErrInvalidStatus),
		errors.Is(err, booking.ErrInvalidSlotWindow):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrPsychologistNotFound):
		writeError(w, http.StatusNotFound, "psychologist_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())

	case errors.Is(err, booking.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "schedule_already_booked", err.Error())
	case errors.Is(err, booking.ErrBookingConflict):
		writeError(w, http.StatusConflict, "appointment_conflict", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_being_booked", "schedule is currently being booked, please retry shortly")

	default:
		log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
