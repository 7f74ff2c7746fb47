// Package agent provides an HTTP client for per-instance backup agents.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the default HTTP timeout for agent calls.
const DefaultTimeout = 30 * time.Second

// Properties carries the per-request agent credentials and provider settings
// forwarded by the caller. They are never persisted.
type Properties struct {
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
	Provider *Provider `json:"provider,omitempty"`
}

// Provider names the object storage provider the agent writes artifacts to.
type Provider struct {
	Name      string `json:"name,omitempty"`
	Container string `json:"container,omitempty"`
}

// Info describes an agent's version and capabilities, probed before any
// operation is dispatched to it.
type Info struct {
	Version             string   `json:"version"`
	SupportedOperations []string `json:"supported_operations,omitempty"`
}

// StartBackupRequest is the payload for triggering a backup on an agent.
type StartBackupRequest struct {
	BackupGUID string         `json:"backup_guid"`
	Type       string         `json:"type"`
	Trigger    models.Trigger `json:"trigger,omitempty"`
}

// StartRestoreRequest is the payload for triggering a restore on an agent.
type StartRestoreRequest struct {
	BackupGUID string `json:"backup_guid"`
}

// Client talks to one agent at a resolved address. Start calls are
// fire-and-forget triggers: the agent performs the work out-of-band and
// tracks its own progress, which the Last*Status calls read back live.
type Client struct {
	baseURL    string
	props      Properties
	httpClient *http.Client
	logger     zerolog.Logger
}

// Factory builds agent clients bound to resolved addresses.
type Factory struct {
	port    int
	timeout time.Duration
	logger  zerolog.Logger
}

// NewFactory creates a Factory. port is the well-known agent port appended to
// resolved instance addresses.
func NewFactory(port int, logger zerolog.Logger) *Factory {
	return &Factory{
		port:    port,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "agent").Logger(),
	}
}

// Client returns a client for the agent at address, using the given
// per-request properties for authentication.
func (f *Factory) Client(address string, props Properties) *Client {
	return &Client{
		baseURL: "http://" + net.JoinHostPort(address, strconv.Itoa(f.port)) + "/v1",
		props:   props,
		httpClient: &http.Client{
			Timeout: f.timeout,
		},
		logger: f.logger.With().Str("agent", address).Logger(),
	}
}

// GetInfo probes the agent's capability and version endpoint.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.get(ctx, "/info", &info); err != nil {
		return nil, fmt.Errorf("get info: %w", err)
	}
	return &info, nil
}

// StartBackup triggers a backup on the agent. A nil return means the agent
// accepted the operation, not that it finished.
func (c *Client) StartBackup(ctx context.Context, req StartBackupRequest) error {
	if err := c.post(ctx, "/backup/start", req, nil); err != nil {
		return fmt.Errorf("start backup: %w", err)
	}
	return nil
}

// StartRestore triggers a restore on the agent.
func (c *Client) StartRestore(ctx context.Context, req StartRestoreRequest) error {
	if err := c.post(ctx, "/restore/start", req, nil); err != nil {
		return fmt.Errorf("start restore: %w", err)
	}
	return nil
}

// LastBackupStatus returns the agent's live view of its most recent backup.
func (c *Client) LastBackupStatus(ctx context.Context) (*models.OperationStatus, error) {
	var status models.OperationStatus
	if err := c.get(ctx, "/backup", &status); err != nil {
		return nil, fmt.Errorf("last backup status: %w", err)
	}
	return &status, nil
}

// LastRestoreStatus returns the agent's live view of its most recent restore.
func (c *Client) LastRestoreStatus(ctx context.Context) (*models.OperationStatus, error) {
	var status models.OperationStatus
	if err := c.get(ctx, "/restore", &status); err != nil {
		return nil, fmt.Errorf("last restore status: %w", err)
	}
	return &status, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.props.Username, c.props.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, result)
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.props.Username, c.props.Password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		return json.Unmarshal(body, result)
	}
	return nil
}
