package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/downloader"
	"github.com/gamevyo/qblimiter/internal/downloader/mock"
	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/logger"
	"github.com/gamevyo/qblimiter/internal/notification"
	notifymock "github.com/gamevyo/qblimiter/internal/notification/mock"
	"github.com/gamevyo/qblimiter/internal/plugin"
	"github.com/gamevyo/qblimiter/internal/plugin/qblimiter"
	"github.com/gamevyo/qblimiter/internal/pluginstate"
	"github.com/gamevyo/qblimiter/internal/scheduler"
	"github.com/gamevyo/qblimiter/internal/testutil"
)

type fakeLogs struct {
	entries []logger.LogEntry
}

func (f *fakeLogs) GetRecentLogs() []logger.LogEntry { return f.entries }
func (f *fakeLogs) GetLogFilePath() string          { return "" }

var testLogs = &fakeLogs{entries: []logger.LogEntry{
	{Level: "debug", Component: "scheduler", Message: "tick"},
	{Level: "info", Component: "qblimiter", Message: "Upload limit enabled"},
	{Level: "warn", Component: "qblimiter", Message: "Unknown downloader"},
	{Level: "error", Component: "api", Message: "request error"},
}}

type testServer struct {
	*Server
	client   *mock.Client
	store    pluginstate.Store
	notifier *notifymock.Notifier
}

func setupTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	logger := tdb.Logger

	cfg := config.Default()
	cfg.Server.APIKey = apiKey

	store := pluginstate.NewSQLiteStore(tdb.Conn)

	sched, err := scheduler.New(logger)
	if err != nil {
		t.Fatalf("scheduler.New() error = %v", err)
	}
	t.Cleanup(func() { _ = sched.Stop() })

	bus := eventbus.New(logger)

	downloaders := downloader.NewService(logger)
	client := mock.New("qb")
	if err := downloaders.Register("qb", client); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	notifications := notification.NewService(logger)
	notifier := notifymock.New("test", logger)
	notifications.Add(notifier)

	plugins := plugin.NewManager(store, logger)
	p := qblimiter.New(qblimiter.Deps{
		Gateway:   downloaders,
		Scheduler: sched,
		Bus:       bus,
		Notifier:  notifications,
		Store:     store,
		Logger:    logger,
	})
	if err := plugins.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := plugins.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(plugins.Shutdown)

	server := NewServer(cfg, Services{
		Plugins:       plugins,
		Scheduler:     sched,
		Downloaders:   downloaders,
		Notifications: notifications,
		Bus:           bus,
		Logs:          testLogs,
	}, logger)

	return &testServer{Server: server, client: client, store: store, notifier: notifier}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("HealthCheck status = %d, want %d", rec.Code, http.StatusOK)
	}

	response := decode[map[string]string](t, rec)
	if response["status"] != "ok" {
		t.Errorf("HealthCheck status = %q, want %q", response["status"], "ok")
	}
}

func TestListPlugins(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/plugins", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	plugins := decode[[]plugin.Info](t, rec)
	if len(plugins) != 1 || plugins[0].ID != qblimiter.PluginID {
		t.Fatalf("plugins = %+v, want one qblimiter", plugins)
	}
	if plugins[0].Enabled {
		t.Error("plugin should start disabled")
	}
	if len(plugins[0].Commands) != 4 {
		t.Errorf("commands = %d, want 4", len(plugins[0].Commands))
	}
}

func TestGetPluginForm(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/plugins/qblimiter/form", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decode[map[string]json.RawMessage](t, rec)
	for _, key := range []string{"form", "defaults", "values"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	if !strings.Contains(string(body["form"]), `"VForm"`) {
		t.Errorf("form = %s, want a VForm tree", body["form"])
	}
}

func TestUpdatePluginConfig_PersistsNormalizedValues(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodPut, "/api/v1/plugins/qblimiter/config", `{
		"enabled": "true",
		"downloaders": "qb, qb",
		"upload_limit": "abc",
		"download_limit": "2048",
		"start_cron": " 0 8 * * * ",
		"junk": 1
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	got := decode[map[string]any](t, rec)
	if got["enabled"] != true {
		t.Errorf("enabled = %v, want true", got["enabled"])
	}
	if got["upload_limit"] != float64(0) {
		t.Errorf("upload_limit = %v, want 0", got["upload_limit"])
	}
	if got["download_limit"] != float64(2048) {
		t.Errorf("download_limit = %v, want 2048", got["download_limit"])
	}
	if got["start_cron"] != "0 8 * * *" {
		t.Errorf("start_cron = %q, want trimmed", got["start_cron"])
	}
	if _, ok := got["junk"]; ok {
		t.Error("unknown keys should be dropped")
	}

	stored, err := ts.store.Get(context.Background(), qblimiter.PluginID)
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if stored["enabled"] != true {
		t.Errorf("stored enabled = %v, want true", stored["enabled"])
	}
	downloaders, _ := stored["downloaders"].([]any)
	if len(downloaders) != 1 || downloaders[0] != "qb" {
		t.Errorf("stored downloaders = %v, want [qb]", stored["downloaders"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/scheduler/tasks/qblimiter-start", "")
	if rec.Code != http.StatusOK {
		t.Errorf("start task status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/scheduler/tasks/qblimiter-pause", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("pause task status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/plugins/qblimiter/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get config status = %d", rec.Code)
	}
	if cfg := decode[map[string]any](t, rec); cfg["enabled"] != true {
		t.Errorf("get config enabled = %v, want true", cfg["enabled"])
	}
}

func TestExecuteCommand(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.do(t, http.MethodPut, "/api/v1/plugins/qblimiter/config", `{"enabled": true, "downloaders": ["qb"]}`)

	rec := ts.do(t, http.MethodPost, "/api/v1/commands", `{"command": "pause torrents"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	result := decode[CommandResult](t, rec)
	if !result.Matched || result.Action != qblimiter.ActionPause || result.PluginID != qblimiter.PluginID {
		t.Errorf("result = %+v, want matched qb_pause", result)
	}
	if n := ts.client.CallCount("PauseAll"); n != 1 {
		t.Errorf("PauseAll calls = %d, want 1", n)
	}
	if len(ts.notifier.Records()) != 1 {
		t.Errorf("notifications = %d, want 1", len(ts.notifier.Records()))
	}
}

func TestExecuteCommand_Unmatched(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/v1/commands", `{"command": "reboot"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if result := decode[CommandResult](t, rec); result.Matched {
		t.Errorf("result = %+v, want unmatched", result)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/commands", `{"command": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty command status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListCommands(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/commands", "")
	cmds := decode[[]plugin.Command](t, rec)
	if len(cmds) != 4 {
		t.Fatalf("commands = %d, want 4", len(cmds))
	}
	if cmds[0].Cmd != "/qb_pause" || cmds[0].PluginID != qblimiter.PluginID {
		t.Errorf("first command = %+v", cmds[0])
	}
}

func TestDownloaders(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/downloaders", "")
	if list := decode[[]downloader.ClientInfo](t, rec); len(list) != 1 || list[0].Name != "qb" {
		t.Errorf("downloaders = %+v, want [qb]", list)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/downloaders/qb/test", "")
	if result := decode[downloader.TestResult](t, rec); !result.Success {
		t.Errorf("test result = %+v, want success", result)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/downloaders/qb/transfer", "")
	if rec.Code != http.StatusOK {
		t.Errorf("transfer status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/downloaders/nope/transfer", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown transfer status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUnknownPlugin(t *testing.T) {
	ts := setupTestServer(t, "")

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/plugins/nope/form", ""},
		{http.MethodGet, "/api/v1/plugins/nope/config", ""},
		{http.MethodPut, "/api/v1/plugins/nope/config", `{}`},
		{http.MethodDelete, "/api/v1/plugins/nope", ""},
	} {
		if rec := ts.do(t, tc.method, tc.path, tc.body); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want %d", tc.method, tc.path, rec.Code, http.StatusNotFound)
		}
	}
}

func TestUninstallPlugin(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.do(t, http.MethodPut, "/api/v1/plugins/qblimiter/config", `{"enabled": true, "start_cron": "0 8 * * *"}`)

	rec := ts.do(t, http.MethodDelete, "/api/v1/plugins/qblimiter", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	if _, err := ts.store.Get(context.Background(), qblimiter.PluginID); err != pluginstate.ErrNotFound {
		t.Errorf("store.Get() error = %v, want ErrNotFound", err)
	}
	if ts.scheduler.HasTask(qblimiter.StartTaskID) {
		t.Error("start task should be removed on uninstall")
	}
}

func TestAPIKey(t *testing.T) {
	ts := setupTestServer(t, "secret")

	if rec := ts.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/plugins", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
	req.Header.Set("X-Api-Key", "secret")
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestStatus(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decode[map[string]any](t, rec)
	if body["plugins"] != float64(1) {
		t.Errorf("plugins = %v, want 1", body["plugins"])
	}
	if body["downloaders"] != float64(1) {
		t.Errorf("downloaders = %v, want 1", body["downloaders"])
	}
	if enabled, _ := body["enabledPlugins"].([]any); len(enabled) != 0 {
		t.Errorf("enabledPlugins = %v, want none", enabled)
	}
}

func TestNotificationRoutes(t *testing.T) {
	ts := setupTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rec.Code, http.StatusOK)
	}
	channels := decode[[]notification.ChannelInfo](t, rec)
	if len(channels) != 1 || channels[0].Name != "test" {
		t.Errorf("channels = %+v, want [test]", channels)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications/schema", "")
	if rec.Code != http.StatusOK {
		t.Errorf("schema status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/test/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("test status = %d, want %d", rec.Code, http.StatusOK)
	}
	result := decode[notification.TestResult](t, rec)
	if !result.Success {
		t.Errorf("test result = %+v, want success", result)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/missing/test", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing channel status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListLogs_Filters(t *testing.T) {
	ts := setupTestServer(t, "")

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"tick", "Upload limit enabled", "Unknown downloader", "request error"}},
		{"?component=qblimiter", []string{"Upload limit enabled", "Unknown downloader"}},
		{"?level=warn", []string{"Unknown downloader", "request error"}},
		{"?limit=1", []string{"request error"}},
		{"?component=qblimiter&level=warn&limit=5", []string{"Unknown downloader"}},
	}
	for _, tc := range tests {
		rec := ts.do(t, http.MethodGet, "/api/v1/logs"+tc.query, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%q status = %d, want %d", tc.query, rec.Code, http.StatusOK)
		}
		entries := decode[[]logger.LogEntry](t, rec)
		if len(entries) != len(tc.want) {
			t.Errorf("%q returned %d entries, want %d", tc.query, len(entries), len(tc.want))
			continue
		}
		for i, e := range entries {
			if e.Message != tc.want[i] {
				t.Errorf("%q entry %d = %q, want %q", tc.query, i, e.Message, tc.want[i])
			}
		}
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/logs?level=loud", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad level status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/logs/download", ""); rec.Code != http.StatusNotFound {
		t.Errorf("download status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
