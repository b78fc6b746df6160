package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/pluginstate"
	"github.com/gamevyo/qblimiter/internal/testutil"
)

type fakePlugin struct {
	id      string
	enabled bool
	inits   []map[string]any
	stops   int
	initErr error
}

func (f *fakePlugin) ID() string          { return f.id }
func (f *fakePlugin) Name() string        { return "Fake" }
func (f *fakePlugin) Description() string { return "test plugin" }
func (f *fakePlugin) Version() string     { return "1.0" }

func (f *fakePlugin) Init(_ context.Context, values map[string]any) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.inits = append(f.inits, values)
	f.enabled, _ = values["enabled"].(bool)
	return nil
}

func (f *fakePlugin) GetForm(context.Context) ([]Component, map[string]any) {
	return []Component{Form(Row(Col(6, Switch("enabled", "Enabled"))))},
		map[string]any{"enabled": false, "limit": 0}
}

func (f *fakePlugin) Normalize(values map[string]any) map[string]any {
	out := map[string]any{"enabled": false, "limit": 0}
	if v, ok := values["enabled"].(bool); ok {
		out["enabled"] = v
	}
	switch v := values["limit"].(type) {
	case int:
		out["limit"] = v
	case float64:
		out["limit"] = int(v)
	}
	return out
}

func (f *fakePlugin) GetState() bool { return f.enabled }

func (f *fakePlugin) Commands() []Command {
	return []Command{{Action: "fake_do", Cmd: "/fake_do", Description: "do the thing"}}
}

func (f *fakePlugin) Stop() error {
	f.stops++
	return nil
}

type recordingPublisher struct {
	events []eventbus.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e eventbus.Event) int {
	r.events = append(r.events, e)
	return 0
}

func newTestManager(t *testing.T) (*Manager, pluginstate.Store) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	store := pluginstate.NewSQLiteStore(tdb.Conn)
	return NewManager(store, tdb.Logger), store
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Register(&fakePlugin{id: "fake"}))
	err := m.Register(&fakePlugin{id: "fake"})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
}

func TestManager_StartInstallsDefaults(t *testing.T) {
	m, store := newTestManager(t)
	p := &fakePlugin{id: "fake"}
	require.NoError(t, m.Register(p))

	require.NoError(t, m.Start(context.Background()))

	require.Len(t, p.inits, 1)
	assert.Equal(t, false, p.inits[0]["enabled"])

	stored, err := store.Get(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, false, stored["enabled"])
}

func TestManager_StartLoadsStoredState(t *testing.T) {
	m, store := newTestManager(t)
	p := &fakePlugin{id: "fake"}
	require.NoError(t, m.Register(p))
	require.NoError(t, store.Save(context.Background(), "fake", map[string]any{"enabled": true, "limit": 300}))

	require.NoError(t, m.Start(context.Background()))

	require.Len(t, p.inits, 1)
	assert.Equal(t, true, p.inits[0]["enabled"])
	assert.Equal(t, 300, p.inits[0]["limit"])
	assert.True(t, p.GetState())
}

func TestManager_StartSkipsFailingPlugin(t *testing.T) {
	m, _ := newTestManager(t)
	bad := &fakePlugin{id: "bad", initErr: errors.New("boom")}
	good := &fakePlugin{id: "good"}
	require.NoError(t, m.Register(bad))
	require.NoError(t, m.Register(good))

	require.NoError(t, m.Start(context.Background()))
	assert.Len(t, good.inits, 1)
}

func TestManager_SubmitNormalizesPersistsAndInits(t *testing.T) {
	m, store := newTestManager(t)
	p := &fakePlugin{id: "fake"}
	pub := &recordingPublisher{}
	m.SetPublisher(pub)
	require.NoError(t, m.Register(p))

	got, err := m.Submit(context.Background(), "fake", map[string]any{
		"enabled": true,
		"limit":   float64(42),
		"extra":   "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"enabled": true, "limit": 42}, got)

	stored, err := store.Get(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, true, stored["enabled"])
	assert.NotContains(t, stored, "extra")

	require.Len(t, p.inits, 1)
	assert.True(t, p.GetState())

	require.Len(t, pub.events, 1)
	assert.Equal(t, eventbus.PluginReload, pub.events[0].Type)
	assert.Equal(t, "fake", pub.events[0].String("plugin"))
}

func TestManager_UnknownPlugin(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Config(ctx, "nope")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, err = m.Submit(ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, _, err = m.Form(ctx, "nope")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	assert.ErrorIs(t, m.Uninstall(ctx, "nope"), ErrPluginNotFound)
}

func TestManager_Uninstall(t *testing.T) {
	m, store := newTestManager(t)
	p := &fakePlugin{id: "fake"}
	require.NoError(t, m.Register(p))
	ctx := context.Background()

	_, err := m.Submit(ctx, "fake", map[string]any{"enabled": true})
	require.NoError(t, err)

	require.NoError(t, m.Uninstall(ctx, "fake"))
	assert.Equal(t, 1, p.stops)

	_, err = store.Get(ctx, "fake")
	assert.ErrorIs(t, err, pluginstate.ErrNotFound)
}

func TestManager_ListAndCommands(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Register(&fakePlugin{id: "fake"}))

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "fake", infos[0].ID)
	assert.Equal(t, "1.0", infos[0].Version)

	cmds := m.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "fake", cmds[0].PluginID)
}

func TestManager_Shutdown(t *testing.T) {
	m, _ := newTestManager(t)
	a, b := &fakePlugin{id: "a"}, &fakePlugin{id: "b"}
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))

	m.Shutdown()
	assert.Equal(t, 1, a.stops)
	assert.Equal(t, 1, b.stops)
}

func TestCommand_Matches(t *testing.T) {
	cmd := Command{Action: "qb_pause", Cmd: "/qb_pause", Description: "pause torrents"}

	for _, text := range []string{"qb_pause", "/qb_pause", "Pause Torrents", "  /QB_PAUSE  "} {
		assert.True(t, cmd.Matches(text), text)
	}
	for _, text := range []string{"", "pause", "/qb_resume"} {
		assert.False(t, cmd.Matches(text), text)
	}

	got, ok := MatchCommand([]Command{{Action: "x"}, cmd}, "pause torrents")
	require.True(t, ok)
	assert.Equal(t, "qb_pause", got.Action)
}

func TestModels(t *testing.T) {
	tree := []Component{Form(
		Row(Col(6, Switch("enabled", "Enabled")), Col(6, Switch("notify", "Notify"))),
		Row(Col(0, TextField("limit", "Limit", "KB/s"), InfoAlert("note"))),
	)}
	assert.Equal(t, []string{"enabled", "notify", "limit"}, Models(tree))
}
