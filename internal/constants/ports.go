package constants

// Service port names. Port names must be unique within one workload.
const (
	PortNameTWS  = "tws"
	PortNameAPI  = "api"
	PortNameVNC  = "vnc"
	PortNameHTTP = "http"
)

// Published port numbers (the stable contract consumers connect to).
// The gateway process itself listens on the in-container forward ports;
// the Service publishes the canonical IB API ports.
const (
	PortTWS = 4001
	PortAPI = 4002

	PortTargetTWS = 4003
	PortTargetAPI = 4004

	PortVNC       = 5900
	PortNoVNC     = 6080
	PortScripting = 8000
)

// DefaultClientID is the default API client id used by the scripting sidecar.
const DefaultClientID = 123
