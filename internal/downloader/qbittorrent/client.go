// Package qbittorrent implements a qBittorrent Web API v2 client.
package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gamevyo/qblimiter/internal/downloader/types"
)

// allHashes addresses every torrent in hash-list parameters.
const allHashes = "all"

// qBittorrent reports this ETA for torrents that will never finish.
const infiniteETA = 8640000

var errEndpointNotFound = errors.New("endpoint not found")

// Client implements a qBittorrent Web API client that satisfies the types.TorrentClient interface.
type Client struct {
	config     types.ClientConfig
	httpClient *http.Client

	mu       sync.Mutex
	loggedIn bool

	// qBittorrent 5 renamed torrents/pause|resume to torrents/stop|start.
	stopStart atomic.Bool
}

// Compile-time check that Client implements TorrentClient.
var _ types.TorrentClient = (*Client)(nil)

// NewFromConfig creates a client from a ClientConfig.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeQBittorrent
}

// Test verifies the client connection and credentials.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Connect logs in when credentials are configured.
func (c *Client) Connect(ctx context.Context) error {
	return c.ensureLogin(ctx)
}

// Version returns the application version string, e.g. "v4.6.2".
func (c *Client) Version(ctx context.Context) (string, error) {
	body, err := c.request(ctx, "/api/v2/app/version", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// List returns all torrents.
func (c *Client) List(ctx context.Context) ([]types.DownloadItem, error) {
	body, err := c.request(ctx, "/api/v2/torrents/info", nil)
	if err != nil {
		return nil, err
	}

	var torrents []qbitTorrent
	if err := json.Unmarshal(body, &torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrents: %w", err)
	}

	items := make([]types.DownloadItem, 0, len(torrents))
	for i := range torrents {
		items = append(items, torrents[i].toDownloadItem())
	}
	return items, nil
}

// Pause stops a torrent.
func (c *Client) Pause(ctx context.Context, id string) error {
	return c.pause(ctx, strings.ToLower(id))
}

// Resume starts a torrent.
func (c *Client) Resume(ctx context.Context, id string) error {
	return c.resume(ctx, strings.ToLower(id))
}

// PauseAll pauses every torrent.
func (c *Client) PauseAll(ctx context.Context) error {
	return c.pause(ctx, allHashes)
}

// ResumeAll resumes every torrent.
func (c *Client) ResumeAll(ctx context.Context) error {
	return c.resume(ctx, allHashes)
}

// SetUploadLimit sets the global upload limit in KB/s. types.Unlimited removes it.
func (c *Client) SetUploadLimit(ctx context.Context, kbps int64) error {
	return c.setLimit(ctx, "/api/v2/transfer/setUploadLimit", kbps)
}

// SetDownloadLimit sets the global download limit in KB/s. types.Unlimited removes it.
func (c *Client) SetDownloadLimit(ctx context.Context, kbps int64) error {
	return c.setLimit(ctx, "/api/v2/transfer/setDownloadLimit", kbps)
}

// GetTransferInfo returns global transfer speeds and limits.
func (c *Client) GetTransferInfo(ctx context.Context) (*types.TransferInfo, error) {
	body, err := c.request(ctx, "/api/v2/transfer/info", nil)
	if err != nil {
		return nil, err
	}

	var info qbitTransferInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode transfer info: %w", err)
	}

	return &types.TransferInfo{
		DownloadSpeed:    info.DLInfoSpeed,
		UploadSpeed:      info.UPInfoSpeed,
		DownloadLimit:    types.BytesToKB(info.DLRateLimit),
		UploadLimit:      types.BytesToKB(info.UPRateLimit),
		Downloaded:       info.DLInfoData,
		Uploaded:         info.UPInfoData,
		ConnectionStatus: info.ConnectionStatus,
	}, nil
}

func (c *Client) setLimit(ctx context.Context, endpoint string, kbps int64) error {
	form := url.Values{"limit": {strconv.FormatInt(types.KBToBytes(kbps), 10)}}
	_, err := c.request(ctx, endpoint, form)
	return err
}

func (c *Client) pause(ctx context.Context, hashes string) error {
	return c.torrentAction(ctx, "pause", "stop", hashes)
}

func (c *Client) resume(ctx context.Context, hashes string) error {
	return c.torrentAction(ctx, "resume", "start", hashes)
}

// torrentAction calls the v4 endpoint and falls back to the v5 name once it gets a 404.
func (c *Client) torrentAction(ctx context.Context, legacy, current, hashes string) error {
	form := url.Values{"hashes": {hashes}}

	if !c.stopStart.Load() {
		_, err := c.request(ctx, "/api/v2/torrents/"+legacy, form)
		if !errors.Is(err, errEndpointNotFound) {
			return err
		}
		c.stopStart.Store(true)
	}

	_, err := c.request(ctx, "/api/v2/torrents/"+current, form)
	return err
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, c.config.Host, c.config.Port)
	if prefix := strings.Trim(c.config.URLBase, "/"); prefix != "" {
		base += "/" + prefix
	}
	return base
}

func (c *Client) hasCredentials() bool {
	return c.config.Username != ""
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if !c.hasCredentials() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return nil
	}
	if err := c.login(ctx); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"username": {c.config.Username},
		"password": {c.config.Password},
	}

	req, err := c.newRequest(ctx, "/api/v2/auth/login", form)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return fmt.Errorf("%w: too many failed login attempts", types.ErrAuthFailed)
	default:
		return fmt.Errorf("unexpected login status code: %d", resp.StatusCode)
	}

	if strings.TrimSpace(string(body)) != "Ok." {
		return types.ErrAuthFailed
	}
	return nil
}

// request performs a GET when form is nil and a form POST otherwise.
// A 403 triggers one re-login and retry when credentials are configured.
func (c *Client) request(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.send(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}

	if status == http.StatusForbidden && c.hasCredentials() {
		c.invalidateSession()
		if err := c.ensureLogin(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.send(ctx, endpoint, form)
		if err != nil {
			return nil, err
		}
	}

	switch status {
	case http.StatusOK:
		return body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, types.ErrAuthFailed
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", errEndpointNotFound, endpoint)
	default:
		return nil, fmt.Errorf("unexpected status code: %d", status)
	}
}

func (c *Client) send(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := c.newRequest(ctx, endpoint, form)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string, form url.Values) (*http.Request, error) {
	method := http.MethodGet
	var body io.Reader
	if form != nil {
		method = http.MethodPost
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	// The Web UI rejects requests whose Referer does not match its own origin.
	req.Header.Set("Referer", c.baseURL())
	return req, nil
}

type qbitTorrent struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Progress    float64 `json:"progress"`
	ETA         int64   `json:"eta"`
	State       string  `json:"state"`
	Category    string  `json:"category"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
	Ratio       float64 `json:"ratio"`
	DLSpeed     int64   `json:"dlspeed"`
	UPSpeed     int64   `json:"upspeed"`
	Completed   int64   `json:"completed"`
}

func (t *qbitTorrent) toDownloadItem() types.DownloadItem {
	eta := t.ETA
	if eta >= infiniteETA || eta < 0 {
		eta = -1
	}

	return types.DownloadItem{
		ID:             t.Hash,
		Name:           t.Name,
		Status:         mapStatus(t.State),
		Progress:       t.Progress * 100,
		Size:           t.Size,
		DownloadedSize: t.Completed,
		DownloadSpeed:  t.DLSpeed,
		UploadSpeed:    t.UPSpeed,
		ETA:            eta,
		DownloadDir:    t.SavePath,
	}
}

type qbitTransferInfo struct {
	DLInfoSpeed      int64  `json:"dl_info_speed"`
	DLInfoData       int64  `json:"dl_info_data"`
	UPInfoSpeed      int64  `json:"up_info_speed"`
	UPInfoData       int64  `json:"up_info_data"`
	DLRateLimit      int64  `json:"dl_rate_limit"`
	UPRateLimit      int64  `json:"up_rate_limit"`
	ConnectionStatus string `json:"connection_status"`
}

// mapStatus maps qBittorrent torrent states to our status values.
func mapStatus(state string) types.Status {
	switch state {
	case "error", "missingFiles", "stalledDL":
		return types.StatusWarning
	case "pausedDL", "stoppedDL":
		return types.StatusPaused
	case "queuedDL", "checkingDL", "checkingUP", "checkingResumeData", "metaDL", "forcedMetaDL":
		return types.StatusQueued
	case "pausedUP", "stoppedUP", "uploading", "stalledUP", "queuedUP", "forcedUP":
		return types.StatusSeeding
	case "downloading", "forcedDL", "moving":
		return types.StatusDownloading
	default:
		return types.StatusUnknown
	}
}
