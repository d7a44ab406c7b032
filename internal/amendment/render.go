// ABOUTME: Detection and rendering of amendment-bearing chat messages
// ABOUTME: Decode failures are per-message errors, never a session fault

package amendment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wayline/tripchat/internal/booking"
	"github.com/wayline/tripchat/internal/recurrence"
	"github.com/wayline/tripchat/internal/wire"
)

// State is the client-observed approval state of an amendment.
type State string

const (
	StateProposed          State = "proposed"
	StatePartiallyApproved State = "partially_approved"
	StateFullyApproved     State = "fully_approved"
)

// StateOf derives the observed state from the two approval flags. There is
// no explicit terminal message type; both flags true is what "approved"
// means.
func StateOf(a *booking.Amendment) State {
	switch {
	case a.DriverApproval && a.PassengerApproval:
		return StateFullyApproved
	case a.DriverApproval || a.PassengerApproval:
		return StatePartiallyApproved
	default:
		return StateProposed
	}
}

// Rendered is the display form of one timeline message as seen by the
// amendment layer. When Err is set the UI shows an inline "unable to
// display details" bubble for that one message and the rest of the
// conversation is unaffected.
type Rendered struct {
	IsAmendment bool
	Amendment   *booking.Amendment
	Summary     string
	State       State
	Err         error
}

// Render inspects a timeline message for an amendment payload. A message is
// amendment-bearing when its type says so or it carries an amendment id.
func Render(m *wire.Message, now time.Time) Rendered {
	if m == nil {
		return Rendered{}
	}
	isAmendment := m.Type == wire.TypeBookingAmendment || m.AmendmentID != ""
	if !isAmendment {
		return Rendered{}
	}
	if m.Type == wire.TypeAmendmentApproved {
		return Rendered{IsAmendment: true, Summary: m.Content}
	}

	var a booking.Amendment
	if err := json.Unmarshal([]byte(m.Content), &a); err != nil {
		return Rendered{IsAmendment: true, Err: fmt.Errorf("decoding amendment payload: %w", err)}
	}
	return Rendered{
		IsAmendment: true,
		Amendment:   &a,
		Summary:     Summarize(&a, now),
		State:       StateOf(&a),
	}
}

// Summarize produces the one-line description shown in the amendment bubble.
func Summarize(a *booking.Amendment, now time.Time) string {
	switch {
	case a.CancellationRequest:
		return "Requested to cancel this booking"
	case a.ScheduleAmendment:
		return "Proposed schedule: " + recurrence.Describe(a.RecurrenceCron, now)
	case a.ProposedPrice != nil:
		return fmt.Sprintf("Proposed new price: %.2f", *a.ProposedPrice)
	case a.StartName != "" || a.EndName != "":
		return fmt.Sprintf("Proposed new route: %s to %s", orPlaceholder(a.StartName), orPlaceholder(a.EndName))
	case a.StartTime != nil:
		return "Proposed new pickup time: " + a.StartTime.Format("Mon 2 Jan 15:04")
	default:
		return "Proposed a booking change"
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return "current stop"
	}
	return s
}
