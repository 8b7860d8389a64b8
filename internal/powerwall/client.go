package powerwall

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"codeberg.org/mutker/powerwallmon/internal/errors"
	"codeberg.org/mutker/powerwallmon/internal/logger"
)

const (
	defaultTimeout = 10 * time.Second

	loginPath      = "/api/login/Basic"
	logoutPath     = "/api/logout"
	aggregatesPath = "/api/meters/aggregates"
	soePath        = "/api/system_status/soe"

	// The gateway's local login endpoint expects the customer role.
	loginUsername = "customer"
)

type Config struct {
	Host     string
	Email    string
	Password string
	Timeout  time.Duration
}

// Client is an authenticated session with a Powerwall gateway's local
// API. It is owned by a single goroutine; Connect re-establishes the
// session after the gateway has expired or rejected it.
type Client struct {
	cfg       Config
	baseURL   string
	http      *http.Client
	connected bool
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	jar, _ := cookiejar.New(nil)

	return &Client{
		cfg:     cfg,
		baseURL: baseURL(cfg.Host),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				// The gateway serves a self-signed certificate.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}
}

// baseURL normalizes a bare hostname to the gateway's HTTPS endpoint.
func baseURL(host string) string {
	if strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/")
	}

	return "https://" + host
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	ForceSmOff bool   `json:"force_sm_off"`
}

// Connect logs in to the gateway. The session cookie is stored on the
// client's cookie jar and used for subsequent fetches.
func (c *Client) Connect(ctx context.Context) error {
	errFactory := errors.New()

	body, err := json.Marshal(loginRequest{
		Username: loginUsername,
		Password: c.cfg.Password,
		Email:    c.cfg.Email,
	})
	if err != nil {
		return errFactory.Wrap(ErrAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errFactory.WithData(ErrAuthFailed, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return errFactory.WithData(ErrUnreachable, resp.Status)
	}

	c.connected = true
	logger.Debug().Str("host", c.cfg.Host).Msg("Powerwall session established")

	return nil
}

type meterAggregates struct {
	Site    meter `json:"site"`
	Battery meter `json:"battery"`
	Solar   meter `json:"solar"`
	Load    meter `json:"load"`
}

type meter struct {
	InstantPower *float64 `json:"instant_power"`
}

type stateOfEnergy struct {
	Percentage *float64 `json:"percentage"`
}

// Fetch reads the meter aggregates and the battery state of energy and
// combines them into one Reading. The caller stamps the timestamp.
func (c *Client) Fetch(ctx context.Context) (Reading, error) {
	errFactory := errors.New()

	if !c.connected {
		return Reading{}, errFactory.New(ErrNotConnected)
	}

	var aggregates meterAggregates
	if err := c.get(ctx, aggregatesPath, &aggregates); err != nil {
		return Reading{}, err
	}

	var soe stateOfEnergy
	if err := c.get(ctx, soePath, &soe); err != nil {
		return Reading{}, err
	}

	for name, value := range map[string]*float64{
		"site":       aggregates.Site.InstantPower,
		"battery":    aggregates.Battery.InstantPower,
		"solar":      aggregates.Solar.InstantPower,
		"load":       aggregates.Load.InstantPower,
		"percentage": soe.Percentage,
	} {
		if value == nil {
			return Reading{}, errFactory.WithData(ErrMalformedResponse, fmt.Sprintf("missing field: %s", name))
		}
	}

	if *soe.Percentage < 0 || *soe.Percentage > 100 {
		return Reading{}, errFactory.WithData(ErrMalformedResponse,
			fmt.Sprintf("battery level out of range: %.1f", *soe.Percentage))
	}

	return Reading{
		Grid:    *aggregates.Site.InstantPower,
		Battery: *aggregates.Battery.InstantPower,
		Solar:   *aggregates.Solar.InstantPower,
		Home:    *aggregates.Load.InstantPower,
		Level:   *soe.Percentage,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return errFactory.Wrap(ErrFetchFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.connected = false
		return errFactory.WithData(ErrSessionRejected, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return errFactory.WithData(ErrFetchFailed, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errFactory.Wrap(ErrMalformedResponse, err)
	}

	return nil
}

// Close drops the session. The logout call is best-effort; an expired
// session is already gone on the gateway side.
func (c *Client) Close() error {
	if !c.connected {
		return nil
	}
	c.connected = false

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+logoutPath, http.NoBody)
	if err != nil {
		return nil
	}

	if resp, err := c.http.Do(req); err == nil {
		resp.Body.Close()
	}

	logger.Debug().Str("host", c.cfg.Host).Msg("Powerwall session released")

	return nil
}
