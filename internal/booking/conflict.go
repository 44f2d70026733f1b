package booking

import "time"

// HasConflict reports whether booking the candidate slot would double-book
// the patient against one of their existing appointments. Only Confirmed
// appointments on the same calendar day as the slot are considered.
//
// The overlap test keeps its asymmetric boundaries on purpose: a candidate
// that starts exactly when an existing appointment ends (or vice versa) is
// not a conflict, but a window that exactly matches or fully contains an
// existing one is.
func HasConflict(slot *AvailabilitySlot, existing []Appointment) bool {
	for i := range existing {
		appt := &existing[i]
		if appt.Status != StatusConfirmed {
			continue
		}
		if !sameDay(appt.Scheduled.Date, slot.SlotDate) {
			continue
		}
		if overlaps(slot.StartTime, slot.EndTime, appt.Scheduled.StartTime, appt.Scheduled.EndTime) {
			return true
		}
	}
	return false
}

func overlaps(candStart, candEnd, exStart, exEnd time.Time) bool {
	// candidate starts inside the existing window
	if !candStart.Before(exStart) && candStart.Before(exEnd) {
		return true
	}
	// candidate ends inside the existing window
	if candEnd.After(exStart) && !candEnd.After(exEnd) {
		return true
	}
	// candidate fully contains the existing window
	if !candStart.After(exStart) && !candEnd.Before(exEnd) {
		return true
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
