package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(t0)

	short := c.After(time.Second)
	long := c.After(time.Minute)
	now := c.After(0)

	select {
	case at := <-now:
		assert.Equal(t, t0, at)
	default:
		t.Fatal("zero duration should fire immediately")
	}

	c.Advance(2 * time.Second)
	assert.Equal(t, t0.Add(2*time.Second), c.Now())
	select {
	case at := <-short:
		assert.Equal(t, t0.Add(2*time.Second), at)
	default:
		t.Fatal("short timer did not fire")
	}
	select {
	case <-long:
		t.Fatal("long timer fired early")
	default:
	}

	c.Advance(time.Minute)
	select {
	case <-long:
	default:
		t.Fatal("long timer did not fire")
	}
}
