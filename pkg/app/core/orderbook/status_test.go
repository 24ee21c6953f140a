package orderbook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		ev       Event
		complete bool
		want     Status
		wantErr  error
	}{
		{"pending partial fill", Pending, EventFill, false, PartiallyFilled, nil},
		{"pending full fill", Pending, EventFill, true, Filled, nil},
		{"partial partial fill", PartiallyFilled, EventFill, false, PartiallyFilled, nil},
		{"partial completing fill", PartiallyFilled, EventFill, true, Filled, nil},
		{"pending cancel", Pending, EventCancel, false, Cancelled, nil},
		{"partial cancel", PartiallyFilled, EventCancel, false, Cancelled, nil},
		{"pending expire", Pending, EventExpire, false, Expired, nil},
		{"partial expire", PartiallyFilled, EventExpire, false, Expired, nil},
		{"filled is terminal", Filled, EventCancel, false, Filled, ErrTerminalStatus},
		{"cancelled is terminal", Cancelled, EventFill, true, Cancelled, ErrTerminalStatus},
		{"expired is terminal", Expired, EventExpire, false, Expired, ErrTerminalStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.ev, tt.complete)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		filled int64
		qty    int64
		c      Closure
		want   Status
	}{
		{"untouched", 0, 10, NotClosed, Pending},
		{"partially filled", 4, 10, NotClosed, PartiallyFilled},
		{"filled", 10, 10, NotClosed, Filled},
		{"cancelled before any fill", 0, 10, ClosedCancelled, Cancelled},
		{"cancelled after partial fill", 4, 10, ClosedCancelled, Cancelled},
		{"expired after partial fill", 4, 10, ClosedExpired, Expired},
		{"full fill wins over closure", 10, 10, ClosedCancelled, Filled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.filled, tt.qty, tt.c))
		})
	}
}

func TestOrderFillAndClose(t *testing.T) {
	o := &Order{ID: "o1", Side: Buy, Qty: 10, LimitPrice: LimitAt(100)}

	require.NoError(t, o.Fill(4, now()))
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.True(t, o.Consistent())

	err := o.Fill(7, now())
	require.Error(t, err, "overfill must be rejected")
	assert.Equal(t, int64(4), o.Filled)

	require.NoError(t, o.Close(EventCancel, ReasonUser, now()))
	assert.Equal(t, Cancelled, o.Status)
	assert.Equal(t, ReasonUser, o.Reason)
	assert.True(t, o.Consistent())

	assert.ErrorIs(t, o.Close(EventExpire, ReasonDeadline, now()), ErrTerminalStatus)
	assert.ErrorIs(t, o.Fill(1, now()), ErrTerminalStatus)
}

func TestConsistentRejectsMismatch(t *testing.T) {
	o := &Order{ID: "o1", Qty: 10, Filled: 10, Status: PartiallyFilled}
	assert.False(t, o.Consistent())

	o = &Order{ID: "o2", Qty: 10, Filled: 11, Status: Filled}
	assert.False(t, o.Consistent())
}
