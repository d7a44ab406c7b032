// ABOUTME: Two-party amendment workflow - create, self-approve, broadcast, approve
// ABOUTME: Optimistic broadcast by design; the booking service record stays authoritative

package amendment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wayline/tripchat/internal/booking"
	"github.com/wayline/tripchat/internal/wire"
)

// Conversation is what the coordinator needs from the session layer.
type Conversation interface {
	Broadcast(msgType wire.Type, content, amendmentID string) bool
	FindAmendment(amendmentID string) (*wire.Message, bool)
	UpdateMessage(id string, update func(*wire.Message)) bool
	UserID() string
}

// BookingService is the slice of the external booking API the coordinator
// uses. Calls are opaque request/response; failures are not retried here.
type BookingService interface {
	CreateAmendment(ctx context.Context, a *booking.Amendment) (string, error)
	ApproveAmendment(ctx context.Context, id string, cancellation, asDriver bool) error
	ListBookings(ctx context.Context, driverView bool) ([]*booking.Booking, error)
}

// ErrChannelClosed is returned when a broadcast cannot be sent because the
// conversation channel is not open.
var ErrChannelClosed = errors.New("amendment: conversation channel is not open")

// Coordinator drives the amendment workflow over one conversation.
type Coordinator struct {
	conv   Conversation
	svc    BookingService
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. Pass nil logger for default.
func NewCoordinator(conv Conversation, svc BookingService, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		conv:   conv,
		svc:    svc,
		logger: logger.With("component", "amendment"),
	}
}

// CreateAndBroadcast persists a new amendment, self-approves it for the
// requester's role, and broadcasts the full payload on the conversation.
//
// If creation fails nothing is sent and the error is returned. If the
// self-approval fails after creation, the payload still goes out with the
// requester's flag set: the broadcast reflects the requested state, the
// booking service record remains the truth. Documented tradeoff, favors
// responsiveness.
func (c *Coordinator) CreateAndBroadcast(ctx context.Context, a *booking.Amendment, requesterIsDriver bool) (*booking.Amendment, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	a.DriverApproval = requesterIsDriver
	a.PassengerApproval = !requesterIsDriver

	id, err := c.svc.CreateAmendment(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("creating amendment: %w", err)
	}
	a.ID = id

	if err := c.svc.ApproveAmendment(ctx, id, a.CancellationRequest, requesterIsDriver); err != nil {
		c.logger.Warn("self-approval failed, broadcasting requested state anyway",
			"amendment_id", id,
			"error", err)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding amendment: %w", err)
	}
	if !c.conv.Broadcast(wire.TypeBookingAmendment, string(payload), id) {
		return nil, ErrChannelClosed
	}

	c.logger.Info("amendment broadcast",
		"amendment_id", id,
		"booking_id", a.BookingID,
		"as_driver", requesterIsDriver)
	return a, nil
}

// Approve records the local user's approval of an amendment seen in the
// conversation. The user's role is discovered from the booking service; the
// roleHint is used only when the amendment is not in the local timeline or
// the booking cannot be found, trading strict validation for robustness
// against partial data. A repeat approval by the same role is a no-op.
func (c *Coordinator) Approve(ctx context.Context, amendmentID string, roleHintIsDriver bool) error {
	msg, found := c.conv.FindAmendment(amendmentID)
	if !found {
		c.logger.Warn("amendment not in timeline, approving with role hint",
			"amendment_id", amendmentID,
			"as_driver", roleHintIsDriver)
		if err := c.svc.ApproveAmendment(ctx, amendmentID, false, roleHintIsDriver); err != nil {
			return fmt.Errorf("approving amendment: %w", err)
		}
		c.broadcastApproved(amendmentID)
		return nil
	}

	var a booking.Amendment
	if err := json.Unmarshal([]byte(msg.Content), &a); err != nil {
		return fmt.Errorf("amendment payload unreadable: %w", err)
	}

	asDriver, err := c.resolveRole(ctx, a.BookingID, roleHintIsDriver)
	if err != nil {
		return err
	}

	if a.ApprovedBy(asDriver) {
		c.logger.Debug("already approved by this role, nothing to do",
			"amendment_id", amendmentID,
			"as_driver", asDriver)
		return nil
	}

	if err := c.svc.ApproveAmendment(ctx, amendmentID, a.CancellationRequest, asDriver); err != nil {
		// Leave local flags untouched so a retry stays safe.
		return fmt.Errorf("approving amendment: %w", err)
	}

	if asDriver {
		a.DriverApproval = true
	} else {
		a.PassengerApproval = true
	}
	if payload, err := json.Marshal(&a); err == nil {
		c.conv.UpdateMessage(msg.ID, func(m *wire.Message) {
			m.Content = string(payload)
		})
	}

	c.broadcastApproved(amendmentID)
	c.logger.Info("amendment approved",
		"amendment_id", amendmentID,
		"as_driver", asDriver,
		"finalized", a.Finalized())
	return nil
}

// resolveRole determines whether the local user is the driver of the
// booking by checking both views of the bookings list. When the booking is
// in neither view the hint wins.
func (c *Coordinator) resolveRole(ctx context.Context, bookingID string, hint bool) (bool, error) {
	asDriver, err := c.svc.ListBookings(ctx, true)
	if err != nil {
		return false, fmt.Errorf("resolving role: %w", err)
	}
	for _, b := range asDriver {
		if b.ID == bookingID {
			return true, nil
		}
	}

	asPassenger, err := c.svc.ListBookings(ctx, false)
	if err != nil {
		return false, fmt.Errorf("resolving role: %w", err)
	}
	for _, b := range asPassenger {
		if b.ID == bookingID {
			return false, nil
		}
	}

	c.logger.Warn("booking not found in either view, using role hint",
		"booking_id", bookingID,
		"as_driver", hint)
	return hint, nil
}

// broadcastApproved emits the approval notice. A closed channel only loses
// the notice; the authoritative record already carries the approval.
func (c *Coordinator) broadcastApproved(amendmentID string) {
	if !c.conv.Broadcast(wire.TypeAmendmentApproved, "Amendment approved", amendmentID) {
		c.logger.Warn("approval notice not sent, channel closed", "amendment_id", amendmentID)
	}
}

// ProposeSchedule is a convenience for authoring a schedule amendment from
// the tagged cadence form. The legacy expression is produced at this
// boundary only.
func (c *Coordinator) ProposeSchedule(ctx context.Context, bookingID, cronExpr string, repeatUntil *time.Time, requesterIsDriver bool) (*booking.Amendment, error) {
	a := &booking.Amendment{
		BookingID:         bookingID,
		ScheduleAmendment: true,
		RecurrenceCron:    cronExpr,
		RepeatUntil:       repeatUntil,
	}
	return c.CreateAndBroadcast(ctx, a, requesterIsDriver)
}

// ProposeCancellation authors a cancellation request for a booking.
func (c *Coordinator) ProposeCancellation(ctx context.Context, bookingID string, requesterIsDriver bool) (*booking.Amendment, error) {
	a := &booking.Amendment{
		BookingID:           bookingID,
		CancellationRequest: true,
	}
	return c.CreateAndBroadcast(ctx, a, requesterIsDriver)
}
