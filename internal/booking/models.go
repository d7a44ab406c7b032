// ABOUTME: Booking, journey and amendment records exchanged with the booking service
// ABOUTME: Plus the ephemeral SubRide checkout projection expanded from a journey

package booking

import (
	"errors"
	"time"

	"github.com/wayline/tripchat/internal/recurrence"
)

// Booking is one persisted ride agreement between a driver and a passenger.
type Booking struct {
	ID          string     `json:"id"`
	JourneyID   string     `json:"journey_id,omitempty"`
	DriverID    string     `json:"driver_id"`
	PassengerID string     `json:"passenger_id"`
	StartName   string     `json:"start_name"`
	StartLat    float64    `json:"start_lat"`
	StartLong   float64    `json:"start_long"`
	EndName     string     `json:"end_name"`
	EndLat      float64    `json:"end_lat"`
	EndLong     float64    `json:"end_long"`
	StartTime   time.Time  `json:"start_time"`
	Price       float64    `json:"price"`
	Recurring   bool       `json:"recurring,omitempty"`
	Cron        string     `json:"recurrence_cron,omitempty"`
	RepeatUntil *time.Time `json:"repeat_until,omitempty"`
	Status      string     `json:"status,omitempty"` // pending, confirmed, cancelled
}

// Journey is a recurring ride offer that bookings are cut from.
type Journey struct {
	ID          string     `json:"id"`
	StartName   string     `json:"start_name"`
	EndName     string     `json:"end_name"`
	Price       float64    `json:"price"` // price per occurrence
	Cron        string     `json:"recurrence_cron"`
	RepeatUntil *time.Time `json:"repeat_until,omitempty"`
}

// Amendment is a proposed change to an existing booking. The id is assigned
// by the booking service; everything else travels inside chat messages as a
// serialized payload. Field names match the service's wire format.
type Amendment struct {
	ID                  string     `json:"Id,omitempty"`
	BookingID           string     `json:"BookingId"`
	CancellationRequest bool       `json:"CancellationRequest,omitempty"`
	ProposedPrice       *float64   `json:"ProposedPrice,omitempty"`
	StartName           string     `json:"StartName,omitempty"`
	StartLat            *float64   `json:"StartLat,omitempty"`
	StartLong           *float64   `json:"StartLong,omitempty"`
	EndName             string     `json:"EndName,omitempty"`
	EndLat              *float64   `json:"EndLat,omitempty"`
	EndLong             *float64   `json:"EndLong,omitempty"`
	StartTime           *time.Time `json:"StartTime,omitempty"`
	ScheduleAmendment   bool       `json:"ScheduleAmendment,omitempty"`
	RecurrenceCron      string     `json:"RecurrenceCron,omitempty"`
	RepeatUntil         *time.Time `json:"RepeatUntil,omitempty"`
	DriverApproval      bool       `json:"DriverApproval"`
	PassengerApproval   bool       `json:"PassengerApproval"`
}

// ErrConflictingCategories rejects an amendment that requests a cancellation
// and a schedule change at once. An amendment is exactly one of cancellation,
// schedule change, or field change.
var ErrConflictingCategories = errors.New("booking: amendment cannot be both cancellation and schedule change")

// Validate enforces the category exclusivity invariant.
func (a *Amendment) Validate() error {
	if a.BookingID == "" {
		return errors.New("booking: amendment requires a booking id")
	}
	if a.CancellationRequest && a.ScheduleAmendment {
		return ErrConflictingCategories
	}
	return nil
}

// Finalized reports whether both parties have approved.
func (a *Amendment) Finalized() bool {
	return a.DriverApproval && a.PassengerApproval
}

// ApprovedBy reports whether the given role has already approved.
func (a *Amendment) ApprovedBy(asDriver bool) bool {
	if asDriver {
		return a.DriverApproval
	}
	return a.PassengerApproval
}

// SubRide is a derived, never persisted projection of one journey
// occurrence, used for checkout display and price computation.
type SubRide struct {
	JourneyID string
	Date      time.Time
	Price     float64
	Journey   *Journey
}

// SubRides expands a recurring journey into up to max concrete occurrences
// after now, bounded by the journey's repeat-until date. Journeys with an
// unparsable schedule expand to nothing; checkout then shows no sub rides
// rather than failing.
func SubRides(j *Journey, now time.Time, max int) []SubRide {
	if j == nil || j.Cron == "" {
		return nil
	}
	dates := recurrence.NextOccurrences(j.Cron, now, j.RepeatUntil, max)
	subs := make([]SubRide, 0, len(dates))
	for _, d := range dates {
		subs = append(subs, SubRide{JourneyID: j.ID, Date: d, Price: j.Price, Journey: j})
	}
	return subs
}

// TotalPrice sums the price of a checkout expansion.
func TotalPrice(subs []SubRide) float64 {
	var total float64
	for _, s := range subs {
		total += s.Price
	}
	return total
}
