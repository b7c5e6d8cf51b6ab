//go:build e2e
// +build e2e

package e2e

import (
	"os"
	"strings"
)

// defaultGatewayRepository is the container image used for the gateway
// workload in e2e tests. The upstream image bundles IB Gateway together with
// the IBC automation layer, which is the deployment shape the operator
// materializes configuration for.
const defaultGatewayRepository = "ghcr.io/gnzsnz/ib-gateway"

// defaultGatewayTag pins the IB Gateway release under test. Update this when
// a new stable release is published upstream.
const defaultGatewayTag = "10.30.1v"

// defaultNoVNCRepository / defaultNoVNCTag select the image for the noVNC
// bridge workload when a scenario enables it.
const (
	defaultNoVNCRepository = "theasp/novnc"
	defaultNoVNCTag        = "latest"
)

// defaultPythonRepository / defaultPythonTag select the image for the Python
// scripting sidecar. Toggle scenarios only assert the workload exists, so a
// plain interpreter image is sufficient.
const (
	defaultPythonRepository = "python"
	defaultPythonTag        = "3.12-slim"
)

var (
	gatewayRepository string
	gatewayTag        string
	novncRepository   string
	novncTag          string
	pythonRepository  string
	pythonTag         string
)

func init() {
	gatewayRepository = envOrDefault("E2E_GATEWAY_REPOSITORY", defaultGatewayRepository)
	gatewayTag = envOrDefault("E2E_GATEWAY_TAG", defaultGatewayTag)
	novncRepository = envOrDefault("E2E_NOVNC_REPOSITORY", defaultNoVNCRepository)
	novncTag = envOrDefault("E2E_NOVNC_TAG", defaultNoVNCTag)
	pythonRepository = envOrDefault("E2E_PYTHON_REPOSITORY", defaultPythonRepository)
	pythonTag = envOrDefault("E2E_PYTHON_TAG", defaultPythonTag)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
