// Package ibgateway speaks the gateway's API wire protocol far enough to
// prove the socket is alive: one version handshake, nothing more. The
// broker enforces connection pacing on the API socket, so every probe goes
// through a per-address rate limiter.
package ibgateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
)

const (
	// DefaultDialTimeout is the timeout for establishing the TCP connection.
	DefaultDialTimeout = 5 * time.Second
	// DefaultHandshakeTimeout bounds the version exchange after connect.
	DefaultHandshakeTimeout = 5 * time.Second

	// minClientVersion..maxClientVersion is the protocol range announced in
	// the client hello.
	minClientVersion = 100
	maxClientVersion = 187

	// defaultPacingQPS keeps probes well under the broker's connection
	// pacing threshold. Burst 2 lets a probe and a reconcile check coincide
	// without tripping it.
	defaultPacingQPS   = 1.0
	defaultPacingBurst = 2

	// maxFrameBytes guards against reading a garbage length prefix from a
	// socket that is open but not speaking the gateway protocol.
	maxFrameBytes = 4 * 1024
)

// apiPrefix announces the versioned protocol; it is sent raw, before the
// first length-prefixed frame.
var apiPrefix = []byte("API\x00")

// Config holds configuration for creating a new Client.
type Config struct {
	// DialTimeout is the timeout for establishing connections.
	// Defaults to DefaultDialTimeout if zero.
	DialTimeout time.Duration
	// HandshakeTimeout is the timeout for the version exchange.
	// Defaults to DefaultHandshakeTimeout if zero.
	HandshakeTimeout time.Duration

	// PacingQPS is the per-address rate limit applied to handshakes.
	PacingQPS float64
	// PacingBurst is the per-address burst allowance.
	PacingBurst int
	// PacingDisabled disables rate limiting. Tests only.
	PacingDisabled bool
}

// Client performs gateway API handshakes. One Client may probe many
// addresses; pacing state is shared per address across all Clients in the
// process.
type Client struct {
	dialTimeout      time.Duration
	handshakeTimeout time.Duration

	pacingQPS      float64
	pacingBurst    int
	pacingDisabled bool
}

var _ interfaces.GatewayProber = &Client{}

// addressLimiters shares pacing state per gateway address across Client
// instances, mirroring how the broker accounts connections.
var addressLimiters sync.Map // map[string]*rate.Limiter

// NewClient creates a new handshake client with the given configuration.
func NewClient(config Config) *Client {
	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}
	handshakeTimeout := config.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}

	qps := config.PacingQPS
	if qps <= 0 {
		qps = defaultPacingQPS
	}
	burst := config.PacingBurst
	if burst <= 0 {
		burst = defaultPacingBurst
	}

	return &Client{
		dialTimeout:      dialTimeout,
		handshakeTimeout: handshakeTimeout,
		pacingQPS:        qps,
		pacingBurst:      burst,
		pacingDisabled:   config.PacingDisabled,
	}
}

func (c *Client) limiterFor(address string) *rate.Limiter {
	if existing, ok := addressLimiters.Load(address); ok {
		return existing.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Limit(c.pacingQPS), c.pacingBurst)

	// Avoid overwriting if another goroutine won the race.
	actual, _ := addressLimiters.LoadOrStore(address, limiter)
	return actual.(*rate.Limiter)
}

// Probe dials address and performs the API version handshake: send the
// protocol prefix plus the supported version range, read back the server
// version and connection time. All failures classify as connectivity errors.
func (c *Client) Probe(ctx context.Context, address string) (*interfaces.HandshakeResult, error) {
	if address == "" {
		return nil, operatorerrors.WrapConnectivity(fmt.Errorf("no gateway address"))
	}

	if !c.pacingDisabled {
		if err := c.limiterFor(address).Wait(ctx); err != nil {
			return nil, operatorerrors.WrapConnectivity(
				fmt.Errorf("pacing wait for %s: %w", address, err))
		}
	}

	start := time.Now()

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, operatorerrors.WrapConnectivity(err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.handshakeTimeout))
	}

	if _, err := conn.Write(apiPrefix); err != nil {
		return nil, operatorerrors.WrapConnectivity(fmt.Errorf("send protocol prefix: %w", err))
	}
	hello := fmt.Sprintf("v%d..%d", minClientVersion, maxClientVersion)
	if err := writeFrame(conn, []byte(hello)); err != nil {
		return nil, operatorerrors.WrapConnectivity(fmt.Errorf("send version range: %w", err))
	}

	payload, err := readFrame(conn)
	if err != nil {
		return nil, operatorerrors.WrapConnectivity(fmt.Errorf("read server hello: %w", err))
	}

	version, connectionTime, err := parseServerHello(payload)
	if err != nil {
		return nil, operatorerrors.WrapConnectivity(err)
	}

	return &interfaces.HandshakeResult{
		ServerVersion:  version,
		ConnectionTime: connectionTime,
		Elapsed:        time.Since(start),
	}, nil
}

// writeFrame sends one length-prefixed message: 4-byte big-endian length
// followed by the payload.
func writeFrame(w io.Writer, payload []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed message.
func readFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 || length > maxFrameBytes {
		return nil, fmt.Errorf("implausible frame length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// parseServerHello splits the NUL-delimited server hello into its version
// and connection-time fields.
func parseServerHello(payload []byte) (int, string, error) {
	fields := strings.Split(strings.TrimRight(string(payload), "\x00"), "\x00")
	if len(fields) < 1 || fields[0] == "" {
		return 0, "", fmt.Errorf("empty server hello")
	}

	version, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("malformed server version %q: %w", fields[0], err)
	}
	if version <= 0 {
		return 0, "", fmt.Errorf("implausible server version %d", version)
	}

	connectionTime := ""
	if len(fields) > 1 {
		connectionTime = fields[1]
	}

	return version, connectionTime, nil
}
