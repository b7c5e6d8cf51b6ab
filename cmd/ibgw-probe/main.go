package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/dc-tec/ibgateway-operator/internal/probe"
)

const (
	modeStartup   = "startup"
	modeLiveness  = "liveness"
	modeReadiness = "readiness"
	modeWait      = "wait"
	modeHTTP      = "http"

	// waitPollInterval paces the wait-mode retry loop. IB enforces connection
	// pacing, so the interval stays well above the handshake client's own
	// limiter window.
	waitPollInterval = 2 * time.Second
)

// runCheck dispatches one probe mode against the prober.
//
//   - startup and readiness only dial the socket: startup gates the first
//     kubelet checks, readiness gates Service endpoints, and both need to be
//     cheap.
//   - liveness performs the full API handshake: a session that accepts TCP
//     but stopped answering the protocol is dead and needs the pod restarted.
//   - http fetches the desktop-bridge web root.
func runCheck(ctx context.Context, p probe.Prober, mode string) error {
	switch mode {
	case modeStartup, modeReadiness:
		return p.CheckStartup(ctx)
	case modeLiveness:
		return p.CheckAPI(ctx)
	case modeHTTP:
		return p.CheckHTTP(ctx)
	default:
		return fmt.Errorf("unknown probe mode %q", mode)
	}
}

// waitForGateway blocks until the gateway socket accepts connections or the
// context deadline fires. It is used as an init step by the desktop bridge
// and the scripting sidecar, which would crash-loop if started before the
// gateway session is up.
func waitForGateway(ctx context.Context, p probe.Prober, interval time.Duration) error {
	var lastErr error
	pollFn := func(ctx context.Context) (bool, error) {
		if err := p.CheckStartup(ctx); err != nil {
			lastErr = err
			return false, nil
		}
		return true, nil
	}

	if err := wait.PollUntilContextCancel(ctx, interval, true, pollFn); err != nil {
		if lastErr != nil {
			return fmt.Errorf("gateway did not become reachable: %w (last check: %v)", err, lastErr)
		}
		return fmt.Errorf("gateway did not become reachable: %w", err)
	}
	return nil
}

func main() {
	var (
		mode     string
		addr     string
		httpAddr string
		timeout  time.Duration
	)

	flag.StringVar(&mode, "mode", "", "Probe mode: startup, liveness, readiness, wait, or http")
	flag.StringVar(&addr, "addr", "127.0.0.1:4002",
		"Gateway API socket as host:port (must be reachable from inside the pod)")
	flag.StringVar(&httpAddr, "http", "", "Desktop-bridge web root URL (http mode only)")
	flag.DurationVar(&timeout, "timeout", probe.DefaultTimeout,
		"Timeout for the check; in wait mode, the total time to wait for the gateway")
	flag.Parse()

	switch mode {
	case modeStartup, modeLiveness, modeReadiness, modeWait, modeHTTP:
	default:
		_, _ = fmt.Fprintf(os.Stderr, "invalid -mode %q (expected %q, %q, %q, %q, or %q)\n",
			mode, modeStartup, modeLiveness, modeReadiness, modeWait, modeHTTP)
		os.Exit(2)
	}
	if mode == modeHTTP && httpAddr == "" {
		_, _ = fmt.Fprintln(os.Stderr, "-http is required for http mode")
		os.Exit(2)
	}

	// In wait mode the flag bounds the whole retry loop, not one dial;
	// each individual check keeps the default budget.
	checkTimeout := timeout
	if mode == modeWait {
		checkTimeout = probe.DefaultTimeout
	}

	p, err := probe.NewProber(probe.ProberConfig{
		APIAddr:  addr,
		HTTPAddr: httpAddr,
		Timeout:  checkTimeout,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid probe configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if mode == modeWait {
		err = waitForGateway(ctx, p, waitPollInterval)
	} else {
		err = runCheck(ctx, p, mode)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s check failed: %v\n", mode, err)
		os.Exit(1)
	}
	os.Exit(0)
}
