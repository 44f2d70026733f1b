package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(base time.Time, hour, min int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), hour, min, 0, 0, time.UTC)
}

func confirmedAt(date time.Time, startHour, startMin, endHour, endMin int) Appointment {
	return Appointment{
		ID:     uuid.New(),
		Status: StatusConfirmed,
		Scheduled: ScheduledTime{
			Date:      date,
			StartTime: at(date, startHour, startMin),
			EndTime:   at(date, endHour, endMin),
		},
	}
}

func TestHasConflict(t *testing.T) {
	d := day(2025, time.June, 1)

	// existing confirmed appointment 10:00-11:00
	existing := []Appointment{confirmedAt(d, 10, 0, 11, 0)}

	slot := func(date time.Time, sh, sm, eh, em int) *AvailabilitySlot {
		return &AvailabilitySlot{
			ID:        uuid.New(),
			SlotDate:  date,
			StartTime: at(date, sh, sm),
			EndTime:   at(date, eh, em),
		}
	}

	tests := []struct {
		name string
		slot *AvailabilitySlot
		want bool
	}{
		{"starts inside existing", slot(d, 10, 30, 11, 30), true},
		{"ends inside existing", slot(d, 9, 30, 10, 30), true},
		{"exact match", slot(d, 10, 0, 11, 0), true},
		{"candidate contains existing", slot(d, 9, 0, 12, 0), true},
		{"candidate inside existing", slot(d, 10, 15, 10, 45), true},
		{"back-to-back after", slot(d, 11, 0, 12, 0), false},
		{"back-to-back before", slot(d, 9, 0, 10, 0), false},
		{"entirely before", slot(d, 7, 0, 8, 0), false},
		{"entirely after", slot(d, 13, 0, 14, 0), false},
		{"same window different day", slot(day(2025, time.June, 2), 10, 0, 11, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasConflict(tt.slot, existing))
		})
	}
}

func TestHasConflictIgnoresNonConfirmed(t *testing.T) {
	d := day(2025, time.June, 1)

	for _, status := range []AppointmentStatus{StatusPending, StatusCancelled, StatusCompleted, StatusRescheduled, StatusNoShow} {
		appt := confirmedAt(d, 10, 0, 11, 0)
		appt.Status = status

		cand := &AvailabilitySlot{
			SlotDate:  d,
			StartTime: at(d, 10, 0),
			EndTime:   at(d, 11, 0),
		}

		assert.False(t, HasConflict(cand, []Appointment{appt}), "status %s must not block", status)
	}
}

func TestHasConflictEmptyExisting(t *testing.T) {
	d := day(2025, time.June, 1)
	cand := &AvailabilitySlot{
		SlotDate:  d,
		StartTime: at(d, 10, 0),
		EndTime:   at(d, 11, 0),
	}

	assert.False(t, HasConflict(cand, nil))
}
