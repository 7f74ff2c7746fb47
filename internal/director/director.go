// Package director resolves deployment topology from director backends.
package director

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrDeploymentNotFound is returned when a director does not know the
// requested deployment.
var ErrDeploymentNotFound = errors.New("director: deployment not found")

// ErrUnknownDirector is returned when no director is registered under the
// requested selector.
var ErrUnknownDirector = errors.New("director: unknown director selector")

// Instance is one VM of a deployment as reported by the director.
type Instance struct {
	ID      string `json:"id"`
	Job     string `json:"job"`
	Index   int    `json:"index"`
	Address string `json:"address"`
}

// Config describes one director backend.
type Config struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Default marks the director used when a request names no selector.
	Default bool `yaml:"default"`
}

// Client queries a single director backend over HTTP.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a director client from config.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "director").Str("director", cfg.Name).Logger(),
	}
}

// Instances returns the deployment's instances in director order. The first
// instance of this sequence hosts the operational agent.
func (c *Client) Instances(ctx context.Context, deployment string) ([]Instance, error) {
	url := fmt.Sprintf("%s/deployments/%s/instances", c.baseURL, deployment)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("director %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("director: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrDeploymentNotFound, deployment)
	default:
		return nil, fmt.Errorf("director returned %d: %s", resp.StatusCode, string(body))
	}

	var instances []Instance
	if err := json.Unmarshal(body, &instances); err != nil {
		return nil, fmt.Errorf("director: decode instances: %w", err)
	}
	return instances, nil
}

// Registry holds the configured director backends keyed by name. More than
// one director may address the same deployment name space; the selector
// discriminates.
type Registry struct {
	clients     map[string]*Client
	defaultName string
}

// NewRegistry builds a Registry from the configured backends. Exactly one
// backend must be marked default unless only one is configured.
func NewRegistry(cfgs []Config, logger zerolog.Logger) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("director: at least one director must be configured")
	}

	r := &Registry{clients: make(map[string]*Client)}
	for _, cfg := range cfgs {
		if cfg.Name == "" || cfg.URL == "" {
			return nil, errors.New("director: name and url are required for every director")
		}
		if _, dup := r.clients[cfg.Name]; dup {
			return nil, fmt.Errorf("director: duplicate director name %q", cfg.Name)
		}
		r.clients[cfg.Name] = NewClient(cfg, logger)
		if cfg.Default {
			if r.defaultName != "" {
				return nil, errors.New("director: more than one default director")
			}
			r.defaultName = cfg.Name
		}
	}
	if r.defaultName == "" {
		if len(cfgs) > 1 {
			return nil, errors.New("director: no default director configured")
		}
		r.defaultName = cfgs[0].Name
	}
	return r, nil
}

// Get returns the director registered under selector, or the default when
// selector is empty.
func (r *Registry) Get(selector string) (*Client, error) {
	if selector == "" {
		selector = r.defaultName
	}
	client, ok := r.clients[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDirector, selector)
	}
	return client, nil
}

// Resolve looks up the director for selector and queries the deployment's
// instances in one step.
func (r *Registry) Resolve(ctx context.Context, selector, deployment string) ([]Instance, error) {
	client, err := r.Get(selector)
	if err != nil {
		return nil, err
	}
	return client.Instances(ctx, deployment)
}
