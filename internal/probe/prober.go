package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dc-tec/ibgateway-operator/internal/ibgateway"
	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 4 * time.Second

// Prober performs health checks against a gateway pod.
type Prober interface {
	// CheckStartup verifies the API socket accepts TCP connections.
	CheckStartup(ctx context.Context) error
	// CheckAPI performs the full gateway version handshake.
	CheckAPI(ctx context.Context) error
	// CheckHTTP fetches the desktop-bridge web root; 2xx and 3xx pass.
	CheckHTTP(ctx context.Context) error
}

// PodProber implements Prober against one pod's sockets.
type PodProber struct {
	apiAddr   string
	httpAddr  string
	timeout   time.Duration
	handshake interfaces.GatewayProber
	client    *http.Client
}

// ProberConfig holds configuration for creating a Prober.
type ProberConfig struct {
	// APIAddr is the gateway API socket as host:port.
	APIAddr string
	// HTTPAddr is the desktop-bridge web root URL. Required only for
	// CheckHTTP.
	HTTPAddr string
	// Timeout bounds each check. Defaults to DefaultTimeout if zero.
	Timeout time.Duration
	// Handshake overrides the gateway handshake client. Tests only.
	Handshake interfaces.GatewayProber
}

// NewProber creates a new PodProber with the given configuration.
func NewProber(cfg ProberConfig) (Prober, error) {
	if cfg.APIAddr == "" {
		return nil, fmt.Errorf("api address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.APIAddr); err != nil {
		return nil, fmt.Errorf("invalid api address %q: %w", cfg.APIAddr, err)
	}

	if cfg.HTTPAddr != "" {
		parsed, err := url.Parse(cfg.HTTPAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid http address %q: %w", cfg.HTTPAddr, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("invalid http address %q: expected http or https scheme", cfg.HTTPAddr)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	handshake := cfg.Handshake
	if handshake == nil {
		// Probes already run on the kubelet's period; pacing would only
		// stack delays on top of it.
		handshake = ibgateway.NewClient(ibgateway.Config{
			DialTimeout:      timeout,
			HandshakeTimeout: timeout,
			PacingDisabled:   true,
		})
	}

	return &PodProber{
		apiAddr:   cfg.APIAddr,
		httpAddr:  cfg.HTTPAddr,
		timeout:   timeout,
		handshake: handshake,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
				DisableKeepAlives:     true,
			},
			// Redirects count as reachable; do not follow them.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// CheckStartup performs a TCP dial check to verify the gateway is listening.
func (p *PodProber) CheckStartup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", p.apiAddr)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// CheckAPI performs the version handshake. A socket that accepts the dial
// but never answers the handshake fails here.
func (p *PodProber) CheckAPI(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.handshake.Probe(ctx, p.apiAddr)
	return err
}

// CheckHTTP fetches the desktop-bridge web root.
func (p *PodProber) CheckHTTP(ctx context.Context) error {
	if p.httpAddr == "" {
		return fmt.Errorf("no http address configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	return fmt.Errorf("http check failed with status %d", resp.StatusCode)
}
