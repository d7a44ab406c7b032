// ABOUTME: Tests for amendment message detection and inline error rendering
// ABOUTME: Malformed payloads must never throw out of Render

package amendment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayline/tripchat/internal/booking"
	"github.com/wayline/tripchat/internal/wire"
)

var renderNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestRender_PlainChatIsNotAmendment(t *testing.T) {
	r := Render(&wire.Message{Type: wire.TypeChat, Content: "hello"}, renderNow)
	assert.False(t, r.IsAmendment)
	assert.Nil(t, r.Err)
}

func TestRender_PriceAmendment(t *testing.T) {
	m := &wire.Message{
		Type:        wire.TypeBookingAmendment,
		AmendmentID: "am-1",
		Content:     `{"Id":"am-1","BookingId":"b-1","ProposedPrice":12.5,"PassengerApproval":true}`,
	}

	r := Render(m, renderNow)
	require.True(t, r.IsAmendment)
	require.NoError(t, r.Err)
	require.NotNil(t, r.Amendment)
	assert.Equal(t, "b-1", r.Amendment.BookingID)
	assert.Equal(t, "Proposed new price: 12.50", r.Summary)
	assert.Equal(t, StatePartiallyApproved, r.State)
}

func TestRender_MalformedPayloadIsInlineError(t *testing.T) {
	m := &wire.Message{
		Type:        wire.TypeBookingAmendment,
		AmendmentID: "am-2",
		Content:     `not json {{`,
	}

	r := Render(m, renderNow)
	assert.True(t, r.IsAmendment)
	require.Error(t, r.Err)
	assert.Nil(t, r.Amendment)
}

func TestRender_AmendmentIDAloneMarksAmendment(t *testing.T) {
	m := &wire.Message{Type: wire.TypeChat, AmendmentID: "am-3", Content: `{"BookingId":"b-1"}`}
	r := Render(m, renderNow)
	assert.True(t, r.IsAmendment)
}

func TestRender_ApprovalNotice(t *testing.T) {
	m := &wire.Message{Type: wire.TypeAmendmentApproved, AmendmentID: "am-4", Content: "Amendment approved"}
	r := Render(m, renderNow)
	assert.True(t, r.IsAmendment)
	assert.Equal(t, "Amendment approved", r.Summary)
	assert.NoError(t, r.Err)
}

func TestRender_NilMessage(t *testing.T) {
	assert.False(t, Render(nil, renderNow).IsAmendment)
}

func TestSummarize(t *testing.T) {
	price := 20.0
	at := time.Date(2026, 9, 7, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		a    booking.Amendment
		want string
	}{
		{"cancellation", booking.Amendment{CancellationRequest: true}, "Requested to cancel this booking"},
		{"price", booking.Amendment{ProposedPrice: &price}, "Proposed new price: 20.00"},
		{"route", booking.Amendment{StartName: "Station", EndName: "Campus"}, "Proposed new route: Station to Campus"},
		{"partial route", booking.Amendment{EndName: "Campus"}, "Proposed new route: current stop to Campus"},
		{"pickup time", booking.Amendment{StartTime: &at}, "Proposed new pickup time: Mon 7 Sep 08:30"},
		{"fallback", booking.Amendment{}, "Proposed a booking change"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(&tt.a, renderNow))
		})
	}
}

func TestSummarize_ScheduleUsesRecurrenceDescription(t *testing.T) {
	a := booking.Amendment{ScheduleAmendment: true, RecurrenceCron: "0 9 * * 1"}
	got := Summarize(&a, renderNow)
	assert.Contains(t, got, "Proposed schedule: Every week on Monday")

	a.RecurrenceCron = "garbage"
	assert.Equal(t, "Proposed schedule: Custom schedule", Summarize(&a, renderNow))
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateProposed, StateOf(&booking.Amendment{}))
	assert.Equal(t, StatePartiallyApproved, StateOf(&booking.Amendment{DriverApproval: true}))
	assert.Equal(t, StateFullyApproved, StateOf(&booking.Amendment{DriverApproval: true, PassengerApproval: true}))
}
