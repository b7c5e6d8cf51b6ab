package ibgateway

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

// startFakeGateway runs a loopback listener that handles each connection
// with respond. It returns the listen address.
func startFakeGateway(t *testing.T, respond func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				respond(conn)
			}()
		}
	}()

	return ln.Addr().String()
}

// readClientHello consumes the protocol prefix and the version-range frame.
func readClientHello(conn net.Conn) error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return err
	}
	var length [4]byte
	if _, err := io.ReadFull(conn, length[:]); err != nil {
		return err
	}
	payload := make([]byte, binary.BigEndian.Uint32(length[:]))
	_, err := io.ReadFull(conn, payload)
	return err
}

func writeServerHello(conn net.Conn, payload []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	_, _ = conn.Write(length[:])
	_, _ = conn.Write(payload)
}

func TestProbeHandshake(t *testing.T) {
	addr := startFakeGateway(t, func(conn net.Conn) {
		if err := readClientHello(conn); err != nil {
			return
		}
		writeServerHello(conn, []byte("176\x0020250821 10:23:45 EST\x00"))
	})

	client := NewClient(Config{PacingDisabled: true})

	result, err := client.Probe(context.Background(), addr)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if result.ServerVersion != 176 {
		t.Errorf("ServerVersion = %d, want 176", result.ServerVersion)
	}
	if result.ConnectionTime != "20250821 10:23:45 EST" {
		t.Errorf("ConnectionTime = %q", result.ConnectionTime)
	}
	if result.Elapsed <= 0 {
		t.Errorf("Elapsed = %v, want > 0", result.Elapsed)
	}
}

func TestProbeRefusedConnection(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := NewClient(Config{PacingDisabled: true, DialTimeout: time.Second})

	_, err = client.Probe(context.Background(), addr)
	if err == nil {
		t.Fatal("Probe() expected error for refused connection")
	}
	if !operatorerrors.IsConnectivity(err) {
		t.Errorf("error %v must classify as connectivity", err)
	}
	if !operatorerrors.IsTransientConnection(err) {
		t.Errorf("error %v must classify as transient", err)
	}
}

func TestProbeMalformedHello(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "non-numeric version", payload: []byte("gateway\x00now\x00")},
		{name: "empty hello", payload: []byte("\x00")},
		{name: "negative version", payload: []byte("-3\x00now\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startFakeGateway(t, func(conn net.Conn) {
				if err := readClientHello(conn); err != nil {
					return
				}
				writeServerHello(conn, tt.payload)
			})

			client := NewClient(Config{PacingDisabled: true})

			_, err := client.Probe(context.Background(), addr)
			if err == nil {
				t.Fatal("Probe() expected error for malformed hello")
			}
			if !operatorerrors.IsConnectivity(err) {
				t.Errorf("error %v must classify as connectivity", err)
			}
		})
	}
}

func TestProbeImplausibleFrameLength(t *testing.T) {
	addr := startFakeGateway(t, func(conn net.Conn) {
		if err := readClientHello(conn); err != nil {
			return
		}
		// A socket that is open but not speaking the protocol: the first
		// four bytes decode to a huge length.
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	})

	client := NewClient(Config{PacingDisabled: true})

	_, err := client.Probe(context.Background(), addr)
	if err == nil {
		t.Fatal("Probe() expected error for non-protocol response")
	}
}

func TestProbePacingHonorsContext(t *testing.T) {
	addr := startFakeGateway(t, func(conn net.Conn) {
		if err := readClientHello(conn); err != nil {
			return
		}
		writeServerHello(conn, []byte("176\x00now\x00"))
	})

	// One token, effectively never refilled: the second probe must fail
	// fast on the context deadline instead of waiting.
	client := NewClient(Config{PacingQPS: 0.001, PacingBurst: 1})

	if _, err := client.Probe(context.Background(), addr); err != nil {
		t.Fatalf("first Probe() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Probe(ctx, addr)
	if err == nil {
		t.Fatal("second Probe() expected pacing error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("pacing wait did not honor the context deadline (took %v)", elapsed)
	}
}
