package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/mindwellhq/counseling-scheduler/internal/booking"
)

type SaveAppointmentResponse struct {
	Message       string    `json:"message"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	ExpiredAt     time.Time `json:"expiredAt"`
}

type UpdateStatusRequest struct {
	Status  *string `json:"status,omitempty"`
	Note    *string `json:"note,omitempty"`
	StaffID *string `json:"staffId,omitempty"`
}

type CreateAvailabilityRequest struct {
	PsychologistID string `json:"psychologistId"`
	Date           string `json:"date"`      // 2006-01-02
	StartTime      string `json:"startTime"` // RFC 3339
	EndTime        string `json:"endTime"`   // RFC 3339
}

type DailyWindow struct {
	Start string `json:"start"` // 15:04
	End   string `json:"end"`   // 15:04
}

type BatchCreateAvailabilityRequest struct {
	PsychologistID string        `json:"psychologistId"`
	StartDate      string        `json:"startDate"` // 2006-01-02
	EndDate        string        `json:"endDate"`   // 2006-01-02
	Windows        []DailyWindow `json:"windows"`
}

type AvailabilityResponse struct {
	ID             uuid.UUID  `json:"id"`
	PsychologistID uuid.UUID  `json:"psychologistId"`
	Date           string     `json:"date"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        time.Time  `json:"endTime"`
	IsBooked       bool       `json:"isBooked"`
	AppointmentID  *uuid.UUID `json:"appointmentId"`
}

type ScheduledTimeResponse struct {
	Date      string    `json:"date"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type NotesResponse struct {
	Patient      *string `json:"patient"`
	Psychologist *string `json:"psychologist"`
	Staff        *string `json:"staff"`
}

type LastModifiedByResponse struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentInformationResponse struct {
	OrderCode   int64      `json:"orderCode"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	ExpiredAt   *time.Time `json:"expiredAt"`
	CheckoutURL string     `json:"checkoutUrl"`
}

type PersonSummaryResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  *string   `json:"email"`
	Phone  *string   `json:"phone"`
	Avatar *string   `json:"avatar"`
}

type AppointmentResponse struct {
	ID             uuid.UUID                  `json:"id"`
	PatientID      uuid.UUID                  `json:"patientId"`
	PsychologistID uuid.UUID                  `json:"psychologistId"`
	AvailabilityID uuid.UUID                  `json:"availabilityId"`
	ScheduledTime  ScheduledTimeResponse      `json:"scheduledTime"`
	Status         string                     `json:"status"`
	IsRescheduled  bool                       `json:"isRescheduled"`
	Notes          NotesResponse              `json:"notes"`
	LastModifiedBy *LastModifiedByResponse    `json:"lastModifiedBy"`
	Payment        PaymentInformationResponse `json:"paymentInformation"`
	Patient        *PersonSummaryResponse     `json:"patient,omitempty"`
	Psychologist   *PersonSummaryResponse     `json:"psychologist,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Pagination   Pagination            `json:"pagination"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const dateLayout = "2006-01-02"

func toAvailabilityResponse(s *booking.AvailabilitySlot) AvailabilityResponse {
	return AvailabilityResponse{
		ID:             s.ID,
		PsychologistID: s.PsychologistID,
		Date:           s.SlotDate.Format(dateLayout),
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		IsBooked:       s.IsBooked,
		AppointmentID:  s.AppointmentID,
	}
}

func toAppointmentResponse(d *booking.AppointmentDetail) AppointmentResponse {
	resp := AppointmentResponse{
		ID:             d.ID,
		PatientID:      d.PatientID,
		PsychologistID: d.PsychologistID,
		AvailabilityID: d.AvailabilityID,
		ScheduledTime: ScheduledTimeResponse{
			Date:      d.Scheduled.Date.Format(dateLayout),
			StartTime: d.Scheduled.StartTime,
			EndTime:   d.Scheduled.EndTime,
		},
		Status:        string(d.Status),
		IsRescheduled: d.IsRescheduled,
		Notes: NotesResponse{
			Patient:      d.Notes.Patient,
			Psychologist: d.Notes.Psychologist,
			Staff:        d.Notes.Staff,
		},
		Payment: PaymentInformationResponse{
			OrderCode:   d.Payment.OrderCode,
			Amount:      d.Payment.Amount,
			Status:      string(d.Payment.Status),
			ExpiredAt:   d.Payment.ExpiredAt,
			CheckoutURL: d.Payment.CheckoutURL,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}

	if d.LastModified != nil {
		resp.LastModifiedBy = &LastModifiedByResponse{
			UserID:    d.LastModified.UserID,
			Role:      string(d.LastModified.Role),
			Timestamp: d.LastModified.Timestamp,
		}
	}
	if d.Patient != nil {
		resp.Patient = toPersonSummary(d.Patient)
	}
	if d.Psychologist != nil {
		resp.Psychologist = toPersonSummary(d.Psychologist)
	}

	return resp
}

func toPersonSummary(p *booking.PersonSummary) *PersonSummaryResponse {
	return &PersonSummaryResponse{
		ID:     p.ID,
		Name:   p.Name,
		Email:  p.Email,
		Phone:  p.Phone,
		Avatar: p.Avatar,
	}
}
