package config

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
)

// jts.ini section names.
const (
	sectionGateway       = "IBGateway"
	sectionLogon         = "Logon"
	sectionCommunication = "Communication"
)

// trustedClientIPsTemplate trusts API connections from inside the pod. The
// ${POD_IP} placeholder is resolved by the config materializer at pod start,
// after the pod has an address.
const trustedClientIPsTemplate = "127.0.0.1,${POD_IP}"

func init() {
	// The gateway process rewrites these files at runtime using the compact
	// key=value form; render them the same way so diffs stay readable.
	ini.PrettyFormat = false
}

// RenderGatewaySettings renders the trading-gateway settings file (jts.ini).
// The gateway process owns this file at runtime and rewrites it freely; the
// rendered body only seeds the session defaults that must be right on first
// start: API-only mode and the session timezone.
func RenderGatewaySettings(gw *ibgwv1alpha1.IBGateway) ([]byte, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	file := ini.Empty()

	gatewaySec, err := file.NewSection(sectionGateway)
	if err != nil {
		return nil, fmt.Errorf("failed to render gateway settings: %w", err)
	}
	mustNewKey(gatewaySec, "ApiOnly", "true")
	mustNewKey(gatewaySec, "LocalServerPort", strconv.Itoa(apiSocketPort(EffectiveTradingMode(gw))))

	logonSec, err := file.NewSection(sectionLogon)
	if err != nil {
		return nil, fmt.Errorf("failed to render gateway settings: %w", err)
	}
	mustNewKey(logonSec, "Locale", "en")
	mustNewKey(logonSec, "TimeZone", EffectiveTimezone(gw))
	mustNewKey(logonSec, "displayedproxymsg", "1")
	mustNewKey(logonSec, "UseSSL", "true")
	mustNewKey(logonSec, "s3store", "true")

	commSec, err := file.NewSection(sectionCommunication)
	if err != nil {
		return nil, fmt.Errorf("failed to render gateway settings: %w", err)
	}
	mustNewKey(commSec, "ctciAutoEncrypt", "true")
	mustNewKey(commSec, "Internal", "false")
	mustNewKey(commSec, "Region", "usr")

	return writeINI(file)
}

// RenderAutomationSettings renders the automation-layer settings file
// (config.ini). Credentials are deliberately left empty: the automation
// layer receives them from the injected environment at login time, so no
// secret material ever lands in the rendered template.
func RenderAutomationSettings(gw *ibgwv1alpha1.IBGateway) ([]byte, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	mode := EffectiveTradingMode(gw)

	file := ini.Empty()
	sec := file.Section(ini.DefaultSection)

	for _, kv := range []struct{ key, value string }{
		{"IbLoginId", ""},
		{"IbPassword", ""},
		{"TradingMode", string(mode)},
		{"FIX", "no"},
		{"StoreSettingsOnServer", "no"},
		{"MinimizeMainWindow", "yes"},
		{"ExistingSessionDetectedAction", "primary"},
		{"AcceptIncomingConnectionAction", "accept"},
		{"AllowBlindTrading", "no"},
		{"ReadOnlyApi", "no"},
		{"AcceptNonBrokerageAccountWarning", "yes"},
		// Daily restarts are driven from the control plane by rolling the
		// gateway Deployment, so the in-process timers stay disabled.
		{"IbAutoClosedown", "no"},
		{"ClosedownAt", ""},
		{"AutoRestartTime", ""},
		{"AutoLogoffTime", ""},
		{"OverrideTwsApiPort", strconv.Itoa(apiSocketPort(mode))},
		{"TrustedTwsApiClientIPs", trustedClientIPsTemplate},
		{"SuppressInfoMessages", "yes"},
		{"ReloginAfterSecondFactorAuthenticationTimeout", "no"},
	} {
		mustNewKey(sec, kv.key, kv.value)
	}

	return writeINI(file)
}

func writeINI(file *ini.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write settings file: %w", err)
	}

	return buf.Bytes(), nil
}

// mustNewKey adds a key to a section. ini.v1 only errors on an empty key
// name, which never happens for the fixed names rendered here.
func mustNewKey(sec *ini.Section, name, value string) {
	if _, err := sec.NewKey(name, value); err != nil {
		panic(fmt.Sprintf("ini key %q: %v", name, err))
	}
}

// apiSocketPort returns the port the gateway process binds its API socket
// to. IB fixes these by login mode: 4001 for live sessions, 4002 for paper.
// The in-container forwarder bridges the declared targetPorts to this socket.
func apiSocketPort(mode ibgwv1alpha1.TradingMode) int {
	if mode == ibgwv1alpha1.TradingModeLive {
		return constants.PortTWS
	}

	return constants.PortAPI
}
