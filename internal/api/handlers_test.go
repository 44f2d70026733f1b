package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwellhq/counseling-scheduler/internal/booking"
)

// stubService lets each test plug in just the method it exercises.
type stubService struct {
	createBooking   func(ctx context.Context, in booking.CreateBookingInput) (*booking.BookingResult, error)
	updateStatus    func(ctx context.Context, in booking.UpdateStatusInput) (*booking.AppointmentDetail, error)
	getAppointment  func(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error)
	listAppts       func(ctx context.Context, f booking.ListFilter) ([]booking.AppointmentDetail, int, error)
	createSlot      func(ctx context.Context, psychologistID uuid.UUID, w booking.SlotWindow) (*booking.AvailabilitySlot, error)
	createSlotBatch func(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, daily []booking.SlotWindow) ([]booking.AvailabilitySlot, error)
	getSlot         func(ctx context.Context, id uuid.UUID) (*booking.AvailabilitySlot, error)
	listSlots       func(ctx context.Context, psychologistID uuid.UUID) ([]booking.AvailabilitySlot, error)
}

func (s *stubService) CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*booking.BookingResult, error) {
	return s.createBooking(ctx, in)
}

func (s *stubService) UpdateStatus(ctx context.Context, in booking.UpdateStatusInput) (*booking.AppointmentDetail, error) {
	return s.updateStatus(ctx, in)
}

func (s *stubService) GetAppointment(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error) {
	return s.getAppointment(ctx, id)
}

func (s *stubService) ListAppointments(ctx context.Context, f booking.ListFilter) ([]booking.AppointmentDetail, int, error) {
	return s.listAppts(ctx, f)
}

func (s *stubService) CreateSlot(ctx context.Context, psychologistID uuid.UUID, w booking.SlotWindow) (*booking.AvailabilitySlot, error) {
	return s.createSlot(ctx, psychologistID, w)
}

func (s *stubService) CreateSlotBatch(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, daily []booking.SlotWindow) ([]booking.AvailabilitySlot, error) {
	return s.createSlotBatch(ctx, psychologistID, from, to, daily)
}

func (s *stubService) GetSlot(ctx context.Context, id uuid.UUID) (*booking.AvailabilitySlot, error) {
	return s.getSlot(ctx, id)
}

func (s *stubService) ListSlots(ctx context.Context, psychologistID uuid.UUID) ([]booking.AvailabilitySlot, error) {
	return s.listSlots(ctx, psychologistID)
}

func newTestRouter(svc BookingService) http.Handler {
	return NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
}

func bookingForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func doRequest(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestSaveAppointmentSuccess(t *testing.T) {
	apptID := uuid.New()
	var got booking.CreateBookingInput
	svc := &stubService{
		createBooking: func(_ context.Context, in booking.CreateBookingInput) (*booking.BookingResult, error) {
			got = in
			return &booking.BookingResult{AppointmentID: apptID, ExpiredAt: time.Now().Add(10 * time.Minute)}, nil
		},
	}
	router := newTestRouter(svc)

	patientID := uuid.New()
	psychologistID := uuid.New()
	scheduleID := uuid.New()
	body, contentType := bookingForm(t, map[string]string{
		"patientId":      patientID.String(),
		"psychologistId": psychologistID.String(),
		"scheduleId":     scheduleID.String(),
		"symptoms":       "anxiety before exams",
	})

	req := httptest.NewRequest(http.MethodPost, "/psychologist/save-appointment", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, patientID, got.PatientID)
	assert.Equal(t, scheduleID, got.ScheduleID)
	assert.Equal(t, "anxiety before exams", got.Symptoms)

	var resp SaveAppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, apptID, resp.AppointmentID)
	assert.False(t, resp.ExpiredAt.IsZero())
}

func TestSaveAppointmentInvalidUUID(t *testing.T) {
	router := newTestRouter(&stubService{})

	body, contentType := bookingForm(t, map[string]string{
		"patientId":      "not-a-uuid",
		"psychologistId": uuid.NewString(),
		"scheduleId":     uuid.NewString(),
		"symptoms":       "x",
	})

	req := httptest.NewRequest(http.MethodPost, "/psychologist/save-appointment", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient_id", decodeError(t, rec).Error)
}

func TestSaveAppointmentErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"slot taken", booking.ErrSlotAlreadyBooked, http.StatusConflict, "schedule_already_booked"},
		{"patient overlap", booking.ErrBookingConflict, http.StatusConflict, "appointment_conflict"},
		{"lock busy", booking.ErrSlotBeingBooked, http.StatusConflict, "schedule_being_booked"},
		{"slot missing", booking.ErrSlotNotFound, http.StatusNotFound, "schedule_not_found"},
		{"patient missing", booking.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{"bad input", booking.ErrMissingField, http.StatusBadRequest, "validation_error"},
		{"db down", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				createBooking: func(context.Context, booking.CreateBookingInput) (*booking.BookingResult, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(svc)

			body, contentType := bookingForm(t, map[string]string{
				"patientId":      uuid.NewString(),
				"psychologistId": uuid.NewString(),
				"scheduleId":     uuid.NewString(),
				"symptoms":       "x",
			})

			req := httptest.NewRequest(http.MethodPost, "/psychologist/save-appointment", body)
			req.Header.Set("Content-Type", contentType)
			rec := doRequest(router, req)

			require.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Error)
		})
	}
}

func TestUpdateStatusPropagatesCaller(t *testing.T) {
	var got booking.UpdateStatusInput
	detail := &booking.AppointmentDetail{Appointment: booking.Appointment{ID: uuid.New(), Status: booking.StatusConfirmed}}
	svc := &stubService{
		updateStatus: func(_ context.Context, in booking.UpdateStatusInput) (*booking.AppointmentDetail, error) {
			got = in
			return detail, nil
		},
	}
	router := newTestRouter(svc)

	payload := `{"status":"Confirmed","note":"paid at front desk"}`
	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+detail.ID.String()+"/status", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "staff-42")
	req.Header.Set("X-User-Role", "staff")
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, detail.ID, got.AppointmentID)
	require.NotNil(t, got.Status)
	assert.Equal(t, booking.StatusConfirmed, *got.Status)
	require.NotNil(t, got.Note)
	assert.Equal(t, "paid at front desk", *got.Note)
	assert.Equal(t, "staff-42", got.CallerID)
	assert.Equal(t, "staff", got.CallerRole)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Confirmed", resp.Status)
}

func TestUpdateStatusBadRequests(t *testing.T) {
	svc := &stubService{
		updateStatus: func(context.Context, booking.UpdateStatusInput) (*booking.AppointmentDetail, error) {
			return nil, booking.ErrInvalidStatus
		},
	}
	router := newTestRouter(svc)

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/appointments/nope/status", strings.NewReader(`{}`))
		rec := doRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/appointments/"+uuid.NewString()+"/status", strings.NewReader(`{`))
		rec := doRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)
	})

	t.Run("unknown status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/appointments/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"Archived"}`))
		rec := doRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", decodeError(t, rec).Error)
	})
}

func TestGetAppointmentNotFound(t *testing.T) {
	svc := &stubService{
		getAppointment: func(context.Context, uuid.UUID) (*booking.AppointmentDetail, error) {
			return nil, booking.ErrAppointmentNotFound
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decodeError(t, rec).Error)
}

func TestListAppointmentsPagination(t *testing.T) {
	var got booking.ListFilter
	items := []booking.AppointmentDetail{
		{Appointment: booking.Appointment{ID: uuid.New(), Status: booking.StatusConfirmed}},
		{Appointment: booking.Appointment{ID: uuid.New(), Status: booking.StatusPending}},
	}
	svc := &stubService{
		listAppts: func(_ context.Context, f booking.ListFilter) ([]booking.AppointmentDetail, int, error) {
			got = f
			return items, 45, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/appointments?page=2&limit=20&status=Confirmed", nil)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 20, got.Limit)
	require.NotNil(t, got.Status)
	assert.Equal(t, booking.StatusConfirmed, *got.Status)

	var resp ListAppointmentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Appointments, 2)
	assert.Equal(t, 45, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, 3, resp.Pagination.Pages)
}

func TestListAppointmentsClampedEnvelope(t *testing.T) {
	var got booking.ListFilter
	svc := &stubService{
		listAppts: func(_ context.Context, f booking.ListFilter) ([]booking.AppointmentDetail, int, error) {
			got = f
			page := make([]booking.AppointmentDetail, f.Limit)
			for i := range page {
				page[i] = booking.AppointmentDetail{Appointment: booking.Appointment{ID: uuid.New()}}
			}
			return page, 150, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/appointments?limit=500", nil)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// the oversized limit is capped before the query
	assert.Equal(t, 100, got.Limit)

	var resp ListAppointmentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Appointments, 100)
	// and the envelope advertises what was actually served
	assert.Equal(t, 100, resp.Pagination.Limit)
	assert.Equal(t, 2, resp.Pagination.Pages)
	assert.Equal(t, 150, resp.Pagination.Total)
}

func TestListAppointmentsInvalidQuery(t *testing.T) {
	router := newTestRouter(&stubService{})

	for _, target := range []string{
		"/appointments?page=0",
		"/appointments?limit=banana",
		"/appointments?patientId=nope",
		"/appointments?startDate=31-12-2025",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := doRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCreateAvailability(t *testing.T) {
	psyID := uuid.New()
	slot := &booking.AvailabilitySlot{
		ID:             uuid.New(),
		PsychologistID: psyID,
		SlotDate:       time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		StartTime:      time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC),
	}
	svc := &stubService{
		createSlot: func(_ context.Context, id uuid.UUID, w booking.SlotWindow) (*booking.AvailabilitySlot, error) {
			assert.Equal(t, psyID, id)
			assert.Equal(t, slot.StartTime, w.StartTime)
			return slot, nil
		},
	}
	router := newTestRouter(svc)

	payload := `{
		"psychologistId": "` + psyID.String() + `",
		"date": "2025-06-01",
		"startTime": "2025-06-01T09:00:00Z",
		"endTime": "2025-06-01T10:00:00Z"
	}`
	req := httptest.NewRequest(http.MethodPost, "/availability/create", strings.NewReader(payload))
	rec := doRequest(router, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateAvailabilityRejectsBadTimes(t *testing.T) {
	router := newTestRouter(&stubService{})

	payload := `{"psychologistId":"` + uuid.NewString() + `","date":"2025-06-01","startTime":"9am","endTime":"10am"}`
	req := httptest.NewRequest(http.MethodPost, "/availability/create", strings.NewReader(payload))
	rec := doRequest(router, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_window", decodeError(t, rec).Error)
}

func TestBatchCreateAvailability(t *testing.T) {
	psyID := uuid.New()
	var gotFrom, gotTo time.Time
	var gotDaily []booking.SlotWindow
	svc := &stubService{
		createSlotBatch: func(_ context.Context, _ uuid.UUID, from, to time.Time, daily []booking.SlotWindow) ([]booking.AvailabilitySlot, error) {
			gotFrom, gotTo, gotDaily = from, to, daily
			return []booking.AvailabilitySlot{}, nil
		},
	}
	router := newTestRouter(svc)

	payload := `{
		"psychologistId": "` + psyID.String() + `",
		"startDate": "2025-06-01",
		"endDate": "2025-06-07",
		"windows": [{"start":"09:00","end":"10:00"},{"start":"14:30","end":"15:30"}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/availability/batch-create", strings.NewReader(payload))
	rec := doRequest(router, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2025-06-01", gotFrom.Format("2006-01-02"))
	assert.Equal(t, "2025-06-07", gotTo.Format("2006-01-02"))
	require.Len(t, gotDaily, 2)
	assert.Equal(t, 14, gotDaily[1].StartTime.Hour())
	assert.Equal(t, 30, gotDaily[1].StartTime.Minute())
}

func TestListSchedules(t *testing.T) {
	psyID := uuid.New()
	svc := &stubService{
		listSlots: func(_ context.Context, id uuid.UUID) ([]booking.AvailabilitySlot, error) {
			assert.Equal(t, psyID, id)
			return []booking.AvailabilitySlot{
				{ID: uuid.New(), PsychologistID: psyID, SlotDate: time.Now()},
			}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/psychologist/scheduleList/"+psyID.String(), nil)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []AvailabilityResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 1)
	assert.Equal(t, psyID, resp[0].PsychologistID)
}

func TestRequestIDHeaderSet(t *testing.T) {
	svc := &stubService{
		getSlot: func(context.Context, uuid.UUID) (*booking.AvailabilitySlot, error) {
			return &booking.AvailabilitySlot{ID: uuid.New()}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/psychologist/schedule/"+uuid.NewString(), nil)
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
