// Package transmission implements a Transmission RPC client.
package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gamevyo/qblimiter/internal/downloader/types"
)

const (
	sessionIDHeader = "X-Transmission-Session-Id"
	defaultRPCBase  = "transmission"
)

var torrentFields = []string{
	"id", "name", "status", "percentDone",
	"totalSize", "downloadDir", "hashString",
	"eta", "rateDownload", "rateUpload",
	"downloadedEver", "sizeWhenDone", "error", "errorString",
}

// Client implements a Transmission RPC client that satisfies the types.TorrentClient interface.
type Client struct {
	config     types.ClientConfig
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

// Compile-time check that Client implements TorrentClient.
var _ types.TorrentClient = (*Client)(nil)

// NewFromConfig creates a client from a ClientConfig.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeTransmission
}

// Test verifies the client connection.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.call(ctx, "session-get", nil)
	return err
}

// Connect establishes a connection (for Transmission, this just validates the connection).
func (c *Client) Connect(ctx context.Context) error {
	return c.Test(ctx)
}

// List returns all torrents.
func (c *Client) List(ctx context.Context) ([]types.DownloadItem, error) {
	resp, err := c.call(ctx, "torrent-get", map[string]any{"fields": torrentFields})
	if err != nil {
		return nil, err
	}

	torrentsRaw, ok := resp.Arguments["torrents"].([]any)
	if !ok {
		return []types.DownloadItem{}, nil
	}

	items := make([]types.DownloadItem, 0, len(torrentsRaw))
	for _, t := range torrentsRaw {
		torrent, ok := t.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, mapToDownloadItem(torrent))
	}

	return items, nil
}

// Pause stops a torrent.
func (c *Client) Pause(ctx context.Context, id string) error {
	_, err := c.call(ctx, "torrent-stop", map[string]any{"ids": []string{id}})
	return err
}

// Resume starts a torrent.
func (c *Client) Resume(ctx context.Context, id string) error {
	_, err := c.call(ctx, "torrent-start", map[string]any{"ids": []string{id}})
	return err
}

// PauseAll stops every torrent. Omitting "ids" addresses all torrents.
func (c *Client) PauseAll(ctx context.Context) error {
	_, err := c.call(ctx, "torrent-stop", nil)
	return err
}

// ResumeAll starts every torrent.
func (c *Client) ResumeAll(ctx context.Context) error {
	_, err := c.call(ctx, "torrent-start", nil)
	return err
}

// SetUploadLimit sets the global upload limit in KB/s. types.Unlimited disables it.
func (c *Client) SetUploadLimit(ctx context.Context, kbps int64) error {
	return c.setLimit(ctx, "speed-limit-up", kbps)
}

// SetDownloadLimit sets the global download limit in KB/s. types.Unlimited disables it.
func (c *Client) SetDownloadLimit(ctx context.Context, kbps int64) error {
	return c.setLimit(ctx, "speed-limit-down", kbps)
}

func (c *Client) setLimit(ctx context.Context, field string, kbps int64) error {
	args := map[string]any{field + "-enabled": kbps > types.Unlimited}
	if kbps > types.Unlimited {
		args[field] = kbps
	}
	_, err := c.call(ctx, "session-set", args)
	return err
}

// GetTransferInfo returns global transfer speeds and limits.
func (c *Client) GetTransferInfo(ctx context.Context) (*types.TransferInfo, error) {
	stats, err := c.call(ctx, "session-stats", nil)
	if err != nil {
		return nil, err
	}
	session, err := c.call(ctx, "session-get", nil)
	if err != nil {
		return nil, err
	}

	info := &types.TransferInfo{
		DownloadSpeed: int64(getFloat(stats.Arguments, "downloadSpeed")),
		UploadSpeed:   int64(getFloat(stats.Arguments, "uploadSpeed")),
	}
	if current, ok := stats.Arguments["current-stats"].(map[string]any); ok {
		info.Downloaded = int64(getFloat(current, "downloadedBytes"))
		info.Uploaded = int64(getFloat(current, "uploadedBytes"))
	}
	if getBool(session.Arguments, "speed-limit-down-enabled") {
		info.DownloadLimit = int64(getFloat(session.Arguments, "speed-limit-down"))
	}
	if getBool(session.Arguments, "speed-limit-up-enabled") {
		info.UploadLimit = int64(getFloat(session.Arguments, "speed-limit-up"))
	}

	return info, nil
}

// rpcRequest represents a Transmission RPC request.
type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// rpcResponse represents a Transmission RPC response.
type rpcResponse struct {
	Result    string         `json:"result"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, args map[string]any) (*rpcResponse, error) {
	resp, err := c.do(ctx, method, args)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// A 409 hands out the session id to echo back; retry once with it.
	if resp.StatusCode == http.StatusConflict {
		if err := c.storeSessionID(resp); err != nil {
			return nil, err
		}
		retry, err := c.do(ctx, method, args)
		if err != nil {
			return nil, err
		}
		defer retry.Body.Close()
		return parseRPCResponse(retry)
	}

	return parseRPCResponse(resp)
}

func (c *Client) do(ctx context.Context, method string, args map[string]any) (*http.Response, error) {
	req, err := c.buildRPCRequest(ctx, method, args)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func (c *Client) rpcURL() string {
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	base := strings.Trim(c.config.URLBase, "/")
	if base == "" {
		base = defaultRPCBase
	}
	return fmt.Sprintf("%s://%s:%d/%s/rpc", scheme, c.config.Host, c.config.Port, base)
}

func (c *Client) buildRPCRequest(ctx context.Context, method string, args map[string]any) (*http.Request, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if id := c.currentSessionID(); id != "" {
		req.Header.Set(sessionIDHeader, id)
	}
	if c.config.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.config.Username + ":" + c.config.Password))
		req.Header.Set("Authorization", "Basic "+auth)
	}

	return req, nil
}

func (c *Client) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) storeSessionID(resp *http.Response) error {
	id := resp.Header.Get(sessionIDHeader)
	if id == "" {
		return fmt.Errorf("received 409 but no session ID in response")
	}
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
	return nil
}

func parseRPCResponse(resp *http.Response) (*rpcResponse, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Result != "success" {
		return nil, fmt.Errorf("RPC error: %s", rpcResp.Result)
	}

	return &rpcResp, nil
}

// mapToDownloadItem converts a Transmission torrent response to a DownloadItem.
func mapToDownloadItem(torrent map[string]any) types.DownloadItem {
	item := types.DownloadItem{
		ID:             getString(torrent, "hashString"),
		Name:           getString(torrent, "name"),
		Status:         mapStatus(getInt(torrent, "status")),
		Progress:       getFloat(torrent, "percentDone") * 100,
		Size:           int64(getFloat(torrent, "sizeWhenDone")),
		DownloadedSize: int64(getFloat(torrent, "downloadedEver")),
		DownloadSpeed:  int64(getFloat(torrent, "rateDownload")),
		UploadSpeed:    int64(getFloat(torrent, "rateUpload")),
		ETA:            int64(getFloat(torrent, "eta")),
		DownloadDir:    getString(torrent, "downloadDir"),
	}

	if errNum := getInt(torrent, "error"); errNum > 0 {
		item.Error = getString(torrent, "errorString")
		item.Status = types.StatusWarning
	}

	return item
}

// mapStatus maps Transmission status codes to our status strings.
func mapStatus(status int) types.Status {
	switch status {
	case 0: // Stopped
		return types.StatusPaused
	case 1, 3: // Queued to verify, queued to download
		return types.StatusQueued
	case 2, 4: // Verifying, downloading
		return types.StatusDownloading
	case 5, 6: // Queued to seed, seeding
		return types.StatusSeeding
	default:
		return types.StatusUnknown
	}
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
