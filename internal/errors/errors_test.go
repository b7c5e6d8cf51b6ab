package errors

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestDomainErrorClassification(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		wantValidation   bool
		wantExpansion    bool
		wantMaterialized bool
		wantConnectivity bool
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name:           "validation sentinel",
			err:            ErrValidation,
			wantValidation: true,
		},
		{
			name:           "wrapped validation",
			err:            WrapValidation(errors.New("port name collision")),
			wantValidation: true,
		},
		{
			name:          "wrapped expansion",
			err:           WrapTemplateExpansion(errors.New("image repository is required")),
			wantExpansion: true,
		},
		{
			name:             "wrapped materialization",
			err:              WrapMaterialization(errors.New("copy jts.ini: permission denied")),
			wantMaterialized: true,
		},
		{
			name:             "wrapped connectivity",
			err:              WrapConnectivity(errors.New("dial tcp: connection refused")),
			wantConnectivity: true,
		},
		{
			name:           "double wrap keeps identity",
			err:            WrapValidation(WrapValidation(errors.New("x"))),
			wantValidation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.wantValidation {
				t.Errorf("IsValidation() = %v, want %v", got, tt.wantValidation)
			}
			if got := IsTemplateExpansion(tt.err); got != tt.wantExpansion {
				t.Errorf("IsTemplateExpansion() = %v, want %v", got, tt.wantExpansion)
			}
			if got := IsMaterialization(tt.err); got != tt.wantMaterialized {
				t.Errorf("IsMaterialization() = %v, want %v", got, tt.wantMaterialized)
			}
			if got := IsConnectivity(tt.err); got != tt.wantConnectivity {
				t.Errorf("IsConnectivity() = %v, want %v", got, tt.wantConnectivity)
			}
		})
	}
}

func TestWrapTemplateExpansionPreservesValidation(t *testing.T) {
	underlying := WrapValidation(errors.New("referenced secret key absent"))

	wrapped := WrapTemplateExpansion(underlying)

	if !IsValidation(wrapped) {
		t.Fatal("validation class must survive expansion wrapping")
	}
	if IsTemplateExpansion(wrapped) {
		t.Fatal("validation errors must pass through expansion unchanged")
	}
}

func TestIsTransientConnection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "sentinel error", err: ErrTransientConnection, want: true},
		{name: "wrapped sentinel error", err: fmt.Errorf("context: %w", ErrTransientConnection), want: true},
		{name: "connection refused", err: errors.New("connection refused"), want: true},
		{name: "dial tcp error", err: errors.New("dial tcp 127.0.0.1:4001: connect: connection refused"), want: true},
		{name: "i/o timeout", err: errors.New("i/o timeout"), want: true},
		{name: "DNS error", err: &net.DNSError{Err: "no such host", Name: "example.com"}, want: true},
		{name: "non-transient error", err: errors.New("invalid configuration"), want: false},
		{name: "validation error", err: ErrValidation, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientConnection(tt.err); got != tt.want {
				t.Errorf("IsTransientConnection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      bool
		wantDelay time.Duration
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name:      "transient connection",
			err:       WrapTransientConnection(errors.New("connection refused")),
			want:      true,
			wantDelay: 5 * time.Second,
		},
		{
			name:      "transient kubernetes api",
			err:       WrapTransientKubernetesAPI(errors.New("too many requests")),
			want:      true,
			wantDelay: 5 * time.Second,
		},
		{
			name:      "prerequisites missing",
			err:       WrapPrerequisitesMissing(errors.New("credentials Secret not found")),
			want:      true,
			wantDelay: 30 * time.Second,
		},
		{
			name: "validation error does not requeue",
			err:  WrapValidation(errors.New("bad document")),
			want: false,
		},
		{
			name: "expansion error does not requeue",
			err:  WrapTemplateExpansion(errors.New("no default")),
			want: false,
		},
		{
			name: "unknown error requeues with controller backoff",
			err:  errors.New("something else"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, delay := ShouldRequeue(tt.err)
			if got != tt.want {
				t.Errorf("ShouldRequeue() = %v, want %v", got, tt.want)
			}
			if delay != tt.wantDelay {
				t.Errorf("ShouldRequeue() delay = %v, want %v", delay, tt.wantDelay)
			}
		})
	}
}

func TestIsCRDMissingError(t *testing.T) {
	if !IsCRDMissingError(errors.New(`no matches for kind "HTTPRoute" in version "gateway.networking.k8s.io/v1"`)) {
		t.Error("expected missing-CRD detection for unmatched kind")
	}
	if IsCRDMissingError(errors.New("connection refused")) {
		t.Error("connection errors are not missing-CRD errors")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	for name, fn := range map[string]func(error) error{
		"WrapValidation":        WrapValidation,
		"WrapTemplateExpansion": WrapTemplateExpansion,
		"WrapMaterialization":   WrapMaterialization,
		"WrapConnectivity":      WrapConnectivity,
		"WrapTransientConn":     WrapTransientConnection,
	} {
		if fn(nil) != nil {
			t.Errorf("%s(nil) must return nil", name)
		}
	}
}
