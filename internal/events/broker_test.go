package events

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

func TestBroker_SinkMethods(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	b := NewBroker(clock, zap.NewNop())
	ch := b.Subscribe(10)

	b.ProcessKilled(100, "brave-browser")
	b.ShieldChanged(domain.ShieldThreatDetected)
	b.AutoLocked(true)

	want := []Event{
		{Type: TypeProcessKilled, PID: 100, ProcessName: "brave-browser", Time: clock.Now()},
		{Type: TypeShieldStatus, Status: domain.ShieldThreatDetected, Time: clock.Now()},
		{Type: TypeAutoLocked, AutoLocked: true, Time: clock.Now()},
	}
	for _, w := range want {
		select {
		case got := <-ch:
			assert.Equal(t, w, got)
		default:
			t.Fatalf("missing event %s", w.Type)
		}
	}
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(nil, zap.NewNop())
	a := b.Subscribe(1)
	c := b.Subscribe(1)

	b.ShieldChanged(domain.ShieldActive)

	assert.Equal(t, domain.ShieldActive, (<-a).Status)
	assert.Equal(t, domain.ShieldActive, (<-c).Status)
}

func TestBroker_DropsOnSlowSubscriber(t *testing.T) {
	b := NewBroker(nil, zap.NewNop())
	ch := b.Subscribe(1)

	b.ShieldChanged(domain.ShieldLocked)
	b.ShieldChanged(domain.ShieldActive)
	b.ShieldChanged(domain.ShieldLocked)

	assert.Equal(t, int64(2), b.DroppedCount())
	assert.Equal(t, domain.ShieldLocked, (<-ch).Status)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker(nil, zap.NewNop())
	ch := b.Subscribe(0)

	b.Unsubscribe(ch)
	b.Unsubscribe(ch)

	_, ok := <-ch
	require.False(t, ok)

	b.AutoLocked(true)
	assert.Zero(t, b.DroppedCount())
}
