package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamevyo/qblimiter/internal/testutil"
)

func TestBus_PublishOrder(t *testing.T) {
	bus := New(testutil.NopLogger())

	var got []string
	bus.Subscribe(CommandExecute, func(_ context.Context, e Event) { got = append(got, "a:"+e.String("cmd")) })
	bus.Subscribe(CommandExecute, func(_ context.Context, e Event) { got = append(got, "b:"+e.String("cmd")) })
	bus.Subscribe(PluginReload, func(context.Context, Event) { got = append(got, "reload") })

	n := bus.Publish(context.Background(), NewEvent(CommandExecute, "test", map[string]any{"cmd": "/qb_pause"}))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a:/qb_pause", "b:/qb_pause"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(testutil.NopLogger())

	calls := 0
	unsub := bus.Subscribe(CommandExecute, func(context.Context, Event) { calls++ })
	require.Equal(t, 1, bus.SubscriberCount(CommandExecute))

	unsub()
	unsub()

	assert.Equal(t, 0, bus.SubscriberCount(CommandExecute))
	assert.Equal(t, 0, bus.Publish(context.Background(), Event{Type: CommandExecute}))
	assert.Equal(t, 0, calls)
}

func TestBus_RecoversHandlerPanic(t *testing.T) {
	bus := New(testutil.NopLogger())

	reached := false
	bus.Subscribe(CommandExecute, func(context.Context, Event) { panic("bad handler") })
	bus.Subscribe(CommandExecute, func(context.Context, Event) { reached = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Type: CommandExecute})
	})
	assert.True(t, reached, "later subscribers still receive the event")
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(CommandExecute, "api", map[string]any{"cmd": "pause torrents", "n": 1})

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, "pause torrents", e.String("cmd"))
	assert.Equal(t, "", e.String("n"))
	assert.Equal(t, "", e.String("missing"))
}

func TestNewCommandEvent(t *testing.T) {
	e := NewCommandEvent("/qb_pause", "websocket", "42")

	assert.Equal(t, CommandExecute, e.Type)
	assert.Equal(t, "websocket", e.Source)
	assert.Equal(t, "/qb_pause", e.String("cmd"))
	assert.Equal(t, "42", e.String("user"))
}
