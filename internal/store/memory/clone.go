package memory

import (
	"slices"

	"icetime/backend/internal/domain"
)

func cloneSurface(s domain.RinkSurface) domain.RinkSurface {
	s.SuitablePrograms = slices.Clone(s.SuitablePrograms)
	return s
}

func cloneSlot(s domain.TimeSlot) domain.TimeSlot {
	if s.Pricing != nil {
		p := *s.Pricing
		s.Pricing = &p
	}
	if s.MaxCapacity != nil {
		c := *s.MaxCapacity
		s.MaxCapacity = &c
	}
	if s.BookingRequestID != nil {
		id := *s.BookingRequestID
		s.BookingRequestID = &id
	}
	return s
}

func cloneRequest(r domain.BookingRequest) domain.BookingRequest {
	r.PreferredDates = slices.Clone(r.PreferredDates)
	r.PreferredTimes = slices.Clone(r.PreferredTimes)
	r.ApprovedSlotIDs = slices.Clone(r.ApprovedSlotIDs)
	if r.Recurrence != nil {
		rec := *r.Recurrence
		r.Recurrence = &rec
	}
	if r.Budget != nil {
		b := *r.Budget
		r.Budget = &b
	}
	if r.DecidedAt != nil {
		d := *r.DecidedAt
		r.DecidedAt = &d
	}
	return r
}
