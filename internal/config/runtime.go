package config

import (
	"fmt"
	"strconv"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

// RuntimeEnv builds the environment key/value scalars of the rendered
// configuration bundle. Port values are projected from the declared Service
// port, never the container targetPort: consumers connect by the published
// port, and the published numbers are the stable contract.
func RuntimeEnv(gw *ibgwv1alpha1.IBGateway) (map[string]string, error) {
	ports := ServicePorts(gw)

	tws, ok := portByName(ports, constants.PortNameTWS)
	if !ok {
		return nil, operatorerrors.WrapTemplateExpansion(
			fmt.Errorf("no service port named %q is declared and no default applies", constants.PortNameTWS))
	}
	api, ok := portByName(ports, constants.PortNameAPI)
	if !ok {
		return nil, operatorerrors.WrapTemplateExpansion(
			fmt.Errorf("no service port named %q is declared and no default applies", constants.PortNameAPI))
	}

	env := map[string]string{
		constants.EnvTWSPort:     strconv.Itoa(int(tws.Port)),
		constants.EnvAPIPort:     strconv.Itoa(int(api.Port)),
		constants.EnvTradingMode: string(EffectiveTradingMode(gw)),
		constants.EnvTimezone:    EffectiveTimezone(gw),
		constants.EnvLogLevel:    string(EffectiveLogLevel(gw)),
		constants.EnvAutoRestart: yesNo(AutoRestartOnDisconnect(gw)),
	}

	if gw.Spec.VNC != nil && gw.Spec.VNC.Enabled && gw.Spec.VNC.Password != "" {
		env[constants.EnvVNCPassword] = gw.Spec.VNC.Password
	}

	return env, nil
}

// Data assembles the complete ConfigMap payload: the runtime environment
// plus the two template file bodies keyed by filename. The bundle is derived
// fresh on every reconciliation and carries no identity of its own.
func Data(gw *ibgwv1alpha1.IBGateway) (map[string]string, error) {
	env, err := RuntimeEnv(gw)
	if err != nil {
		return nil, err
	}

	gatewaySettings, err := RenderGatewaySettings(gw)
	if err != nil {
		return nil, operatorerrors.WrapTemplateExpansion(err)
	}
	automationSettings, err := RenderAutomationSettings(gw)
	if err != nil {
		return nil, operatorerrors.WrapTemplateExpansion(err)
	}

	data := make(map[string]string, len(env)+2)
	for k, v := range env {
		data[k] = v
	}
	data[constants.FileGatewaySettings] = string(gatewaySettings)
	data[constants.FileAutomationSettings] = string(automationSettings)

	return data, nil
}

// ServicePorts returns the declared gateway Service ports, falling back to
// the standard pair when the document omits them. Every consumer of port
// information goes through this function so the Service, the Deployment, and
// the rendered configuration can never disagree.
func ServicePorts(gw *ibgwv1alpha1.IBGateway) []ibgwv1alpha1.PortSpec {
	if gw.Spec.Service != nil && len(gw.Spec.Service.Ports) > 0 {
		return gw.Spec.Service.Ports
	}

	return []ibgwv1alpha1.PortSpec{
		{Name: constants.PortNameTWS, Port: constants.PortTWS, TargetPort: constants.PortTargetTWS, Protocol: "TCP"},
		{Name: constants.PortNameAPI, Port: constants.PortAPI, TargetPort: constants.PortTargetAPI, Protocol: "TCP"},
	}
}

// ExternalAPIPort returns the published port scripting clients dial for the
// current trading mode, preferring the declared "api" port.
func ExternalAPIPort(gw *ibgwv1alpha1.IBGateway) int32 {
	name := constants.PortNameAPI
	if EffectiveTradingMode(gw) == ibgwv1alpha1.TradingModeLive {
		name = constants.PortNameTWS
	}

	if p, ok := portByName(ServicePorts(gw), name); ok {
		return p.Port
	}
	if EffectiveTradingMode(gw) == ibgwv1alpha1.TradingModeLive {
		return constants.PortTWS
	}

	return constants.PortAPI
}

// EffectiveTradingMode returns the trading mode with the paper default applied.
func EffectiveTradingMode(gw *ibgwv1alpha1.IBGateway) ibgwv1alpha1.TradingMode {
	if gw.Spec.TradingMode == "" {
		return ibgwv1alpha1.TradingModePaper
	}

	return gw.Spec.TradingMode
}

// EffectiveTimezone returns the session timezone with the default applied.
func EffectiveTimezone(gw *ibgwv1alpha1.IBGateway) string {
	if gw.Spec.Timezone == "" {
		return "America/New_York"
	}

	return gw.Spec.Timezone
}

// EffectiveLogLevel returns the gateway log level with the default applied.
func EffectiveLogLevel(gw *ibgwv1alpha1.IBGateway) ibgwv1alpha1.LogLevel {
	if gw.Spec.Logging == nil || gw.Spec.Logging.Level == "" {
		return ibgwv1alpha1.LogLevelInfo
	}

	return gw.Spec.Logging.Level
}

// AutoRestartOnDisconnect reports whether the automation layer should restart
// the session after an unexpected disconnect. Defaults to true.
func AutoRestartOnDisconnect(gw *ibgwv1alpha1.IBGateway) bool {
	if gw.Spec.Security == nil || gw.Spec.Security.AutoRestartOnDisconnect == nil {
		return true
	}

	return *gw.Spec.Security.AutoRestartOnDisconnect
}

func portByName(ports []ibgwv1alpha1.PortSpec, name string) (ibgwv1alpha1.PortSpec, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}

	return ibgwv1alpha1.PortSpec{}, false
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}

	return "no"
}
