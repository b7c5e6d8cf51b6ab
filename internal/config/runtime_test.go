package config

import (
	"testing"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

func standardServicePorts() []ibgwv1alpha1.PortSpec {
	return []ibgwv1alpha1.PortSpec{
		{Name: "tws", Port: 4001, TargetPort: 4003},
		{Name: "api", Port: 4002, TargetPort: 4004},
	}
}

func TestRuntimeEnvProjectsServicePorts(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")
	gw.Spec.Service = &ibgwv1alpha1.ServiceConfig{Ports: standardServicePorts()}

	env, err := RuntimeEnv(gw)
	if err != nil {
		t.Fatalf("RuntimeEnv() error = %v", err)
	}

	if got := env[constants.EnvTWSPort]; got != "4001" {
		t.Errorf("TWS_PORT = %q, want %q", got, "4001")
	}
	if got := env[constants.EnvAPIPort]; got != "4002" {
		t.Errorf("API_PORT = %q, want %q", got, "4002")
	}
}

// The published service port is the client-facing contract; the container
// target port never leaks into the runtime environment.
func TestRuntimeEnvUsesPublishedPortNotTarget(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")
	gw.Spec.Service = &ibgwv1alpha1.ServiceConfig{
		Ports: []ibgwv1alpha1.PortSpec{
			{Name: "tws", Port: 14001, TargetPort: 4003},
			{Name: "api", Port: 14002, TargetPort: 4004},
		},
	}

	env, err := RuntimeEnv(gw)
	if err != nil {
		t.Fatalf("RuntimeEnv() error = %v", err)
	}

	if got := env[constants.EnvTWSPort]; got != "14001" {
		t.Errorf("TWS_PORT = %q, want %q", got, "14001")
	}
	if got := env[constants.EnvAPIPort]; got != "14002" {
		t.Errorf("API_PORT = %q, want %q", got, "14002")
	}
}

func TestRuntimeEnvMissingNamedPort(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")
	gw.Spec.Service = &ibgwv1alpha1.ServiceConfig{
		Ports: []ibgwv1alpha1.PortSpec{
			{Name: "tws", Port: 4001, TargetPort: 4003},
		},
	}

	_, err := RuntimeEnv(gw)
	if err == nil {
		t.Fatal("RuntimeEnv() expected error for missing api port")
	}
	if !operatorerrors.IsTemplateExpansion(err) {
		t.Errorf("error %v is not a template expansion error", err)
	}
}

func TestRuntimeEnvDefaults(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")

	env, err := RuntimeEnv(gw)
	if err != nil {
		t.Fatalf("RuntimeEnv() error = %v", err)
	}

	want := map[string]string{
		constants.EnvTWSPort:     "4001",
		constants.EnvAPIPort:     "4002",
		constants.EnvTradingMode: "paper",
		constants.EnvTimezone:    "America/New_York",
		constants.EnvLogLevel:    "info",
		constants.EnvAutoRestart: "yes",
	}
	for key, val := range want {
		if got := env[key]; got != val {
			t.Errorf("%s = %q, want %q", key, got, val)
		}
	}
	if _, ok := env[constants.EnvVNCPassword]; ok {
		t.Error("VNC password key present without VNC enabled")
	}
}

func TestRuntimeEnvVNCPassword(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")
	gw.Spec.VNC = &ibgwv1alpha1.VNCConfig{Enabled: true, Password: "watchonly"}

	env, err := RuntimeEnv(gw)
	if err != nil {
		t.Fatalf("RuntimeEnv() error = %v", err)
	}
	if got := env[constants.EnvVNCPassword]; got != "watchonly" {
		t.Errorf("%s = %q, want %q", constants.EnvVNCPassword, got, "watchonly")
	}

	gw.Spec.VNC.Enabled = false
	env, err = RuntimeEnv(gw)
	if err != nil {
		t.Fatalf("RuntimeEnv() error = %v", err)
	}
	if _, ok := env[constants.EnvVNCPassword]; ok {
		t.Error("VNC password key present with VNC disabled")
	}
}

func TestDataBundlesTemplatesWithEnv(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")
	gw.Spec.TradingMode = ibgwv1alpha1.TradingModeLive

	data, err := Data(gw)
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}

	if data[constants.FileGatewaySettings] == "" {
		t.Errorf("data is missing the %s template", constants.FileGatewaySettings)
	}
	if data[constants.FileAutomationSettings] == "" {
		t.Errorf("data is missing the %s template", constants.FileAutomationSettings)
	}
	if got := data[constants.EnvTradingMode]; got != "live" {
		t.Errorf("TRADING_MODE = %q, want %q", got, "live")
	}
}

func TestExternalAPIPortFollowsTradingMode(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")
	gw.Spec.Service = &ibgwv1alpha1.ServiceConfig{Ports: standardServicePorts()}

	if got := ExternalAPIPort(gw); got != 4002 {
		t.Errorf("paper mode ExternalAPIPort() = %d, want 4002", got)
	}

	gw.Spec.TradingMode = ibgwv1alpha1.TradingModeLive
	if got := ExternalAPIPort(gw); got != 4001 {
		t.Errorf("live mode ExternalAPIPort() = %d, want 4001", got)
	}
}

func TestServicePortsFallBackToStandardPair(t *testing.T) {
	gw := newMinimalGateway("trader", "trading")

	ports := ServicePorts(gw)
	if len(ports) != 2 {
		t.Fatalf("ServicePorts() returned %d ports, want 2", len(ports))
	}
	if ports[0].Name != constants.PortNameTWS || ports[0].Port != constants.PortTWS {
		t.Errorf("first default port = %+v", ports[0])
	}
	if ports[1].Name != constants.PortNameAPI || ports[1].Port != constants.PortAPI {
		t.Errorf("second default port = %+v", ports[1])
	}
}
