package infra

import (
	"fmt"
	"strconv"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/config"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/internal/security"
)

const (
	gatewayStartupProbeTimeout   = "4s"
	gatewayLivenessProbeTimeout  = "8s"
	gatewayReadinessProbeTimeout = "4s"

	// waitGatewayTimeout bounds the bridge and sidecar init containers that
	// block on the gateway socket. The gateway's own startup probe allows
	// the same window.
	waitGatewayTimeout = "300s"
)

type probeExecActions struct {
	startup   *corev1.ExecAction
	liveness  *corev1.ExecAction
	readiness *corev1.ExecAction
}

// buildGatewayDeployment constructs the gateway Deployment.
//
// The pod template carries two operator annotations: the rendered config
// revision, so a configuration change rolls the pod onto the new ConfigMap
// contents, and the scheduled-restart stamp, so advancing the restart status
// rolls the pod through this same apply path instead of a side-channel patch.
func buildGatewayDeployment(gw *ibgwv1alpha1.IBGateway, configRevision string, operatorImage string, pins security.ImagePins) *appsv1.Deployment {
	labels := componentLabels(gw, constants.ComponentGateway)

	annotations := map[string]string{
		constants.AnnotationConfigRevision: configRevision,
	}
	if stamp := scheduledRestartStamp(gw); stamp != "" {
		annotations[constants.AnnotationRestartedAt] = stamp
	}

	containerPorts := buildGatewayContainerPorts(gw)
	probes := buildGatewayProbeExecActions(gw)

	container := corev1.Container{
		Name:            constants.ContainerNameGateway,
		Image:           pins.Pinned(gw.Spec.Image.Reference()),
		ImagePullPolicy: gw.Spec.Image.PullPolicy,
		// Env entries take precedence over envFrom, so a declared entry can
		// override any rendered default.
		Env: buildGatewayEnv(gw),
		// The rendered ConfigMap also carries the two template file bodies;
		// their keys are not valid environment names and the kubelet skips
		// them here.
		EnvFrom: []corev1.EnvFromSource{
			{
				ConfigMapRef: &corev1.ConfigMapEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: configMapName(gw)},
				},
			},
			{
				SecretRef: &corev1.SecretEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: gw.Spec.CredentialsSecretRef.Name},
				},
			},
		},
		Ports: containerPorts,
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			Capabilities: &corev1.Capabilities{
				Drop: []corev1.Capability{"ALL"},
			},
			// No read-only root filesystem: the session writes to its home
			// directory and the X stack writes under /tmp.
		},
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:      settingsVolumeName,
				MountPath: constants.PathSettings,
			},
			{
				Name:      utilsVolumeName,
				MountPath: utilsMountPath,
				ReadOnly:  true,
			},
		},
		StartupProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: probes.startup,
			},
			TimeoutSeconds:   10,
			PeriodSeconds:    5,
			FailureThreshold: 60,
		},
		LivenessProbe:  buildGatewayLivenessProbe(gw, probes),
		ReadinessProbe: buildGatewayReadinessProbe(gw, probes),
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: "apps/v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      gatewayName(gw),
			Namespace: gw.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			// Exactly one live session per account: a rolling update would
			// briefly run two gateways that kick each other's login, and the
			// settings volume is ReadWriteOnce.
			Replicas: int32Ptr(1),
			Strategy: appsv1.DeploymentStrategy{
				Type: appsv1.RecreateDeploymentStrategyType,
			},
			Selector: &metav1.LabelSelector{
				MatchLabels: labels,
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      labels,
					Annotations: annotations,
				},
				Spec: corev1.PodSpec{
					SecurityContext: buildGatewayPodSecurityContext(),
					InitContainers:  buildMaterializerInitContainers(operatorImage),
					Containers:      []corev1.Container{container},
					Volumes:         buildGatewayVolumes(gw),
				},
			},
		},
	}
}

// scheduledRestartStamp returns the pod template value for the restartedAt
// annotation, or empty when no scheduled restart has fired yet.
func scheduledRestartStamp(gw *ibgwv1alpha1.IBGateway) string {
	if gw.Status.Restart == nil || gw.Status.Restart.LastRestartTime == nil {
		return ""
	}
	return gw.Status.Restart.LastRestartTime.UTC().Format(time.RFC3339)
}

// buildMaterializerInitContainers returns the config materializer init step.
// It copies the template files from the read-only templates mount into the
// writable settings mount, expanding runtime references such as POD_IP, and
// stages the probe helper into the shared utils volume so the gateway
// container can exec it.
func buildMaterializerInitContainers(operatorImage string) []corev1.Container {
	return []corev1.Container{
		{
			Name:    constants.ContainerNameConfigInit,
			Image:   operatorImage,
			Command: []string{"/" + constants.BinaryNameConfigInit},
			Args: []string{
				"-copy-probe=/" + constants.BinaryNameProbe,
				"--templates", constants.PathTemplates,
				"--settings", constants.PathSettings,
			},
			Env: []corev1.EnvVar{
				{
					Name: constants.EnvHostname,
					ValueFrom: &corev1.EnvVarSource{
						FieldRef: &corev1.ObjectFieldSelector{
							FieldPath: "metadata.name",
						},
					},
				},
				{
					Name: constants.EnvPodIP,
					ValueFrom: &corev1.EnvVarSource{
						FieldRef: &corev1.ObjectFieldSelector{
							FieldPath: "status.podIP",
						},
					},
				},
			},
			SecurityContext: &corev1.SecurityContext{
				AllowPrivilegeEscalation: ptr.To(false),
				Capabilities: &corev1.Capabilities{
					Drop: []corev1.Capability{"ALL"},
				},
				ReadOnlyRootFilesystem: ptr.To(true),
				RunAsNonRoot:           ptr.To(true),
			},
			VolumeMounts: []corev1.VolumeMount{
				{
					Name:      templatesVolumeName,
					MountPath: constants.PathTemplates,
					ReadOnly:  true,
				},
				{
					Name:      settingsVolumeName,
					MountPath: constants.PathSettings,
				},
				{
					Name:      utilsVolumeName,
					MountPath: utilsMountPath,
				},
			},
		},
	}
}

// buildGatewayEnv projects the declared environment entries. A literal value
// lands verbatim; a secret reference stays a reference so the secret value
// never appears in the pod spec or the rendered configuration.
func buildGatewayEnv(gw *ibgwv1alpha1.IBGateway) []corev1.EnvVar {
	if len(gw.Spec.Env) == 0 {
		return nil
	}

	env := make([]corev1.EnvVar, 0, len(gw.Spec.Env))
	for _, entry := range gw.Spec.Env {
		switch {
		case entry.Value != nil:
			env = append(env, corev1.EnvVar{
				Name:  entry.Name,
				Value: *entry.Value,
			})
		case entry.ValueFrom != nil:
			env = append(env, corev1.EnvVar{
				Name: entry.Name,
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{
							Name: entry.ValueFrom.SecretKeyRef.Name,
						},
						Key: entry.ValueFrom.SecretKeyRef.Key,
					},
				},
			})
		}
	}

	return env
}

// buildGatewayContainerPorts exposes the in-container target of every
// declared Service port, plus the VNC port when desktop access is enabled.
func buildGatewayContainerPorts(gw *ibgwv1alpha1.IBGateway) []corev1.ContainerPort {
	servicePorts := config.ServicePorts(gw)

	ports := make([]corev1.ContainerPort, 0, len(servicePorts)+1)
	for _, p := range servicePorts {
		protocol := p.Protocol
		if protocol == "" {
			protocol = corev1.ProtocolTCP
		}
		ports = append(ports, corev1.ContainerPort{
			Name:          p.Name,
			ContainerPort: p.TargetPort,
			Protocol:      protocol,
		})
	}

	if gw.Spec.VNC != nil && gw.Spec.VNC.Enabled {
		ports = append(ports, corev1.ContainerPort{
			Name:          constants.PortNameVNC,
			ContainerPort: effectiveVNCPort(gw),
			Protocol:      corev1.ProtocolTCP,
		})
	}

	return ports
}

func buildGatewayVolumes(gw *ibgwv1alpha1.IBGateway) []corev1.Volume {
	settings := corev1.Volume{Name: settingsVolumeName}
	if gw.Spec.Persistence != nil && gw.Spec.Persistence.Enabled {
		settings.VolumeSource = corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
				ClaimName: settingsPVCName(gw),
			},
		}
	} else {
		// Session state is lost on pod restart when persistence is off.
		settings.VolumeSource = corev1.VolumeSource{
			EmptyDir: &corev1.EmptyDirVolumeSource{},
		}
	}

	return []corev1.Volume{
		{
			Name: templatesVolumeName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: configMapName(gw)},
					// Only the template file bodies; the env scalars in the
					// same ConfigMap are consumed through envFrom.
					Items: []corev1.KeyToPath{
						{Key: constants.FileGatewaySettings, Path: constants.FileGatewaySettings},
						{Key: constants.FileAutomationSettings, Path: constants.FileAutomationSettings},
					},
				},
			},
		},
		settings,
		{
			Name: utilsVolumeName,
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		},
	}
}

func buildGatewayPodSecurityContext() *corev1.PodSecurityContext {
	return &corev1.PodSecurityContext{
		RunAsNonRoot: ptr.To(true),
		RunAsUser:    ptr.To(gatewayUserID),
		RunAsGroup:   ptr.To(gatewayGroupID),
		// FSGroup makes the settings volume writable for the materializer and
		// the gateway process alike.
		FSGroup: ptr.To(gatewayGroupID),
		SeccompProfile: &corev1.SeccompProfile{
			Type: corev1.SeccompProfileTypeRuntimeDefault,
		},
	}
}

func buildGatewayProbeExecActions(gw *ibgwv1alpha1.IBGateway) probeExecActions {
	// Use 127.0.0.1 instead of localhost to force IPv4; the gateway only
	// listens on IPv4 and localhost can resolve to ::1.
	addr := fmt.Sprintf("127.0.0.1:%d", apiTargetPort(gw))

	return probeExecActions{
		startup: &corev1.ExecAction{
			Command: []string{
				constants.PathProbeBinary,
				"-mode=startup",
				"-addr=" + addr,
				"-timeout=" + gatewayStartupProbeTimeout,
			},
		},
		liveness: &corev1.ExecAction{
			Command: []string{
				constants.PathProbeBinary,
				"-mode=liveness",
				"-addr=" + addr,
				"-timeout=" + gatewayLivenessProbeTimeout,
			},
		},
		readiness: &corev1.ExecAction{
			Command: []string{
				constants.PathProbeBinary,
				"-mode=readiness",
				"-addr=" + addr,
				"-timeout=" + gatewayReadinessProbeTimeout,
			},
		},
	}
}

// buildGatewayLivenessProbe performs the full API handshake: a session that
// accepts TCP but stopped answering the protocol is dead and needs the pod
// restarted.
func buildGatewayLivenessProbe(gw *ibgwv1alpha1.IBGateway, probes probeExecActions) *corev1.Probe {
	probe := &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			Exec: probes.liveness,
		},
		TimeoutSeconds:   10,
		PeriodSeconds:    30,
		FailureThreshold: 3,
	}
	if gw.Spec.Probes != nil {
		applyProbeOverrides(probe, gw.Spec.Probes.Liveness)
	}
	return probe
}

// buildGatewayReadinessProbe only dials the socket. Readiness gates Service
// endpoints; the cheaper check keeps the probe period tight.
func buildGatewayReadinessProbe(gw *ibgwv1alpha1.IBGateway, probes probeExecActions) *corev1.Probe {
	probe := &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			Exec: probes.readiness,
		},
		InitialDelaySeconds: 5,
		TimeoutSeconds:      5,
		PeriodSeconds:       10,
		FailureThreshold:    6,
	}
	if gw.Spec.Probes != nil {
		applyProbeOverrides(probe, gw.Spec.Probes.Readiness)
	}
	return probe
}

func applyProbeOverrides(probe *corev1.Probe, spec *ibgwv1alpha1.ProbeSpec) {
	if spec == nil {
		return
	}
	if spec.InitialDelaySeconds > 0 {
		probe.InitialDelaySeconds = spec.InitialDelaySeconds
	}
	if spec.PeriodSeconds > 0 {
		probe.PeriodSeconds = spec.PeriodSeconds
	}
	if spec.TimeoutSeconds > 0 {
		probe.TimeoutSeconds = spec.TimeoutSeconds
	}
	if spec.FailureThreshold > 0 {
		probe.FailureThreshold = spec.FailureThreshold
	}
}

// buildWaitGatewayInitContainer returns the init step that delays the bridge
// and the sidecar until the gateway session socket answers. The dependency is
// soft: only creation is delayed, nothing gates their readiness afterwards
// beyond their own probes.
func buildWaitGatewayInitContainer(gw *ibgwv1alpha1.IBGateway, operatorImage string) corev1.Container {
	addr := fmt.Sprintf("%s:%d", GatewayServiceDNS(gw), config.ExternalAPIPort(gw))

	return corev1.Container{
		Name:    constants.ContainerNameWaitGateway,
		Image:   operatorImage,
		Command: []string{"/" + constants.BinaryNameProbe},
		Args: []string{
			"-mode=wait",
			"-addr=" + addr,
			"-timeout=" + waitGatewayTimeout,
		},
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			Capabilities: &corev1.Capabilities{
				Drop: []corev1.Capability{"ALL"},
			},
			ReadOnlyRootFilesystem: ptr.To(true),
			RunAsNonRoot:           ptr.To(true),
		},
	}
}

// buildBridgeDeployment constructs the desktop-bridge Deployment. The bridge
// reaches the gateway's VNC session by derived Service name, never by IP.
func buildBridgeDeployment(gw *ibgwv1alpha1.IBGateway, operatorImage string, pins security.ImagePins) (*appsv1.Deployment, error) {
	novnc := gw.Spec.NoVNC
	if novnc == nil || novnc.Image == nil {
		return nil, fmt.Errorf("desktop bridge image is required when novnc is enabled")
	}

	labels := componentLabels(gw, constants.ComponentBridge)
	port := effectiveBridgePort(gw)

	container := corev1.Container{
		Name:            constants.ContainerNameBridge,
		Image:           pins.Pinned(novnc.Image.Reference()),
		ImagePullPolicy: novnc.Image.PullPolicy,
		Env: []corev1.EnvVar{
			{
				Name:  constants.EnvVNCHost,
				Value: gatewayName(gw),
			},
			{
				Name:  constants.EnvVNCPort,
				Value: strconv.Itoa(int(effectiveVNCPort(gw))),
			},
		},
		Ports: []corev1.ContainerPort{
			{
				Name:          constants.PortNameHTTP,
				ContainerPort: port,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{
					Port: intstr.FromInt32(port),
				},
			},
			InitialDelaySeconds: 10,
			TimeoutSeconds:      5,
			PeriodSeconds:       10,
			FailureThreshold:    6,
		},
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			Capabilities: &corev1.Capabilities{
				Drop: []corev1.Capability{"ALL"},
			},
		},
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: "apps/v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      bridgeName(gw),
			Namespace: gw.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(1),
			Selector: &metav1.LabelSelector{
				MatchLabels: labels,
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					SecurityContext: &corev1.PodSecurityContext{
						SeccompProfile: &corev1.SeccompProfile{
							Type: corev1.SeccompProfileTypeRuntimeDefault,
						},
					},
					InitContainers: []corev1.Container{buildWaitGatewayInitContainer(gw, operatorImage)},
					Containers:     []corev1.Container{container},
				},
			},
		},
	}, nil
}

// buildScriptingDeployment constructs the scripting sidecar Deployment,
// wired to the gateway API socket through IB_HOST, IB_PORT, and IB_CLIENT_ID.
func buildScriptingDeployment(gw *ibgwv1alpha1.IBGateway, operatorImage string, pins security.ImagePins) (*appsv1.Deployment, error) {
	pySvc := gw.Spec.PythonService
	if pySvc == nil || pySvc.Image == nil {
		return nil, fmt.Errorf("scripting sidecar image is required when pythonService is enabled")
	}

	labels := componentLabels(gw, constants.ComponentScripting)
	port := effectiveScriptingPort(gw)

	container := corev1.Container{
		Name:            constants.ContainerNameScripting,
		Image:           pins.Pinned(pySvc.Image.Reference()),
		ImagePullPolicy: pySvc.Image.PullPolicy,
		Env: []corev1.EnvVar{
			{
				Name:  constants.EnvIBHost,
				Value: gatewayName(gw),
			},
			{
				// The published API port for the active trading mode, not the
				// in-container target.
				Name:  constants.EnvIBPort,
				Value: strconv.Itoa(int(config.ExternalAPIPort(gw))),
			},
			{
				Name:  constants.EnvIBClientID,
				Value: strconv.Itoa(int(effectiveClientID(gw))),
			},
		},
		Ports: []corev1.ContainerPort{
			{
				Name:          constants.PortNameHTTP,
				ContainerPort: port,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{
					Port: intstr.FromInt32(port),
				},
			},
			InitialDelaySeconds: 10,
			TimeoutSeconds:      5,
			PeriodSeconds:       10,
			FailureThreshold:    6,
		},
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			Capabilities: &corev1.Capabilities{
				Drop: []corev1.Capability{"ALL"},
			},
		},
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: "apps/v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      scriptingName(gw),
			Namespace: gw.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(1),
			Selector: &metav1.LabelSelector{
				MatchLabels: labels,
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					SecurityContext: &corev1.PodSecurityContext{
						SeccompProfile: &corev1.SeccompProfile{
							Type: corev1.SeccompProfileTypeRuntimeDefault,
						},
					},
					InitContainers: []corev1.Container{buildWaitGatewayInitContainer(gw, operatorImage)},
					Containers:     []corev1.Container{container},
				},
			},
		},
	}, nil
}

// apiTargetPort returns the in-container port the active session listens on.
// Live sessions expose the tws socket, paper sessions the api socket,
// matching the published-port selection in config.ExternalAPIPort.
func apiTargetPort(gw *ibgwv1alpha1.IBGateway) int32 {
	name := constants.PortNameAPI
	fallback := int32(constants.PortTargetAPI)
	if config.EffectiveTradingMode(gw) == ibgwv1alpha1.TradingModeLive {
		name = constants.PortNameTWS
		fallback = int32(constants.PortTargetTWS)
	}

	for _, p := range config.ServicePorts(gw) {
		if p.Name == name {
			return p.TargetPort
		}
	}
	return fallback
}

func effectiveVNCPort(gw *ibgwv1alpha1.IBGateway) int32 {
	if gw.Spec.VNC != nil && gw.Spec.VNC.Port > 0 {
		return gw.Spec.VNC.Port
	}
	return constants.PortVNC
}

func effectiveBridgePort(gw *ibgwv1alpha1.IBGateway) int32 {
	if gw.Spec.NoVNC != nil && gw.Spec.NoVNC.Port > 0 {
		return gw.Spec.NoVNC.Port
	}
	return constants.PortNoVNC
}

func effectiveScriptingPort(gw *ibgwv1alpha1.IBGateway) int32 {
	if gw.Spec.PythonService != nil && gw.Spec.PythonService.Port > 0 {
		return gw.Spec.PythonService.Port
	}
	return constants.PortScripting
}

func effectiveClientID(gw *ibgwv1alpha1.IBGateway) int32 {
	if gw.Spec.PythonService != nil && gw.Spec.PythonService.ClientID > 0 {
		return gw.Spec.PythonService.ClientID
	}
	return constants.DefaultClientID
}
