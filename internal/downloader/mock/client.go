// Package mock provides an in-memory download client for development and tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/gamevyo/qblimiter/internal/downloader/types"
)

// Call records one invocation of a client operation.
type Call struct {
	Method string
	Value  int64
}

// Client simulates a torrent client. It tracks global limits and the
// paused state of its torrents, and records every call it receives.
type Client struct {
	mu            sync.RWMutex
	name          string
	torrents      []types.DownloadItem
	uploadLimit   int64
	downloadLimit int64
	calls         []Call
	failWith      error
}

// Compile-time check that Client implements TorrentClient.
var _ types.TorrentClient = (*Client)(nil)

// New creates a mock client with a couple of sample torrents.
func New(name string) *Client {
	return &Client{
		name: name,
		torrents: []types.DownloadItem{
			{ID: "0a1b2c3d", Name: "debian-12.iso", Status: types.StatusDownloading, Progress: 42, ETA: 600},
			{ID: "4e5f6a7b", Name: "ubuntu-24.04.iso", Status: types.StatusSeeding, Progress: 100, ETA: -1},
		},
	}
}

// NewFromConfig creates a client from a ClientConfig. Host is used as a label only.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	return New(cfg.Host)
}

// FailWith makes every subsequent operation return err. Pass nil to recover.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// Calls returns a copy of the recorded calls.
func (c *Client) Calls() []Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (c *Client) CallCount(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Limits returns the current upload and download limits in KB/s.
func (c *Client) Limits() (upload, download int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uploadLimit, c.downloadLimit
}

// record appends the call and returns the injected failure, if any. Caller holds mu.
func (c *Client) record(method string, value int64) error {
	c.calls = append(c.calls, Call{Method: method, Value: value})
	return c.failWith
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return types.ClientTypeMock
}

// Test succeeds unless a failure was injected.
func (c *Client) Test(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record("Test", 0)
}

// Connect succeeds unless a failure was injected.
func (c *Client) Connect(ctx context.Context) error {
	return c.Test(ctx)
}

// List returns the simulated torrents.
func (c *Client) List(_ context.Context) ([]types.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("List", 0); err != nil {
		return nil, err
	}
	out := make([]types.DownloadItem, len(c.torrents))
	copy(out, c.torrents)
	return out, nil
}

// Pause pauses one torrent.
func (c *Client) Pause(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Pause", 0); err != nil {
		return err
	}
	return c.setStatus(id, types.StatusPaused)
}

// Resume resumes one torrent.
func (c *Client) Resume(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Resume", 0); err != nil {
		return err
	}
	return c.setStatus(id, types.StatusDownloading)
}

// PauseAll pauses every torrent.
func (c *Client) PauseAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("PauseAll", 0); err != nil {
		return err
	}
	for i := range c.torrents {
		c.torrents[i].Status = types.StatusPaused
	}
	return nil
}

// ResumeAll resumes every torrent.
func (c *Client) ResumeAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("ResumeAll", 0); err != nil {
		return err
	}
	for i := range c.torrents {
		c.torrents[i].Status = resumedStatus(&c.torrents[i])
	}
	return nil
}

// SetUploadLimit stores the upload limit.
func (c *Client) SetUploadLimit(_ context.Context, kbps int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SetUploadLimit", kbps); err != nil {
		return err
	}
	c.uploadLimit = kbps
	return nil
}

// SetDownloadLimit stores the download limit.
func (c *Client) SetDownloadLimit(_ context.Context, kbps int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SetDownloadLimit", kbps); err != nil {
		return err
	}
	c.downloadLimit = kbps
	return nil
}

// GetTransferInfo reports the stored limits and zero traffic.
func (c *Client) GetTransferInfo(_ context.Context) (*types.TransferInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetTransferInfo", 0); err != nil {
		return nil, err
	}
	return &types.TransferInfo{
		UploadLimit:      c.uploadLimit,
		DownloadLimit:    c.downloadLimit,
		ConnectionStatus: "connected",
	}, nil
}

func (c *Client) setStatus(id string, status types.Status) error {
	for i := range c.torrents {
		if c.torrents[i].ID != id {
			continue
		}
		if status != types.StatusPaused {
			status = resumedStatus(&c.torrents[i])
		}
		c.torrents[i].Status = status
		return nil
	}
	return fmt.Errorf("%w: %s", types.ErrNotFound, id)
}

func resumedStatus(item *types.DownloadItem) types.Status {
	if item.Progress >= 100 {
		return types.StatusSeeding
	}
	return types.StatusDownloading
}
