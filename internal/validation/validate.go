package validation

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

// RequiredCredentialKeys are the keys every bound credentials Secret must
// carry. The pre-flight procedure writes exactly this set.
var RequiredCredentialKeys = []string{
	constants.EnvTWSUserID,
	constants.EnvTWSPassword,
	constants.EnvIBAccount,
}

// ValidateGateway checks a desired-state document against the rules the
// admission webhook cannot enforce alone. It is pure: the bound credentials
// Secret is injected by the caller, never read from the cluster. Any failure
// classifies as a validation error; the reconciler surfaces it in the
// Validated condition and expands no workloads for the document.
func ValidateGateway(gw *ibgwv1alpha1.IBGateway, credentials *corev1.Secret) error {
	if gw == nil {
		return operatorerrors.WrapValidation(fmt.Errorf("no gateway document provided"))
	}

	checks := []func() error{
		func() error { return validateCredentials(gw, credentials) },
		func() error { return validateEnvEntries(gw, credentials) },
		func() error { return validateServicePorts(gw) },
		func() error { return validatePersistence(gw) },
		func() error { return validateComponentImages(gw) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return operatorerrors.WrapValidation(err)
		}
	}

	return nil
}

// validateCredentials verifies the bound Secret carries every required
// credential key with a non-empty value. Values are never logged.
func validateCredentials(gw *ibgwv1alpha1.IBGateway, credentials *corev1.Secret) error {
	if credentials == nil {
		return fmt.Errorf("credentials secret %q is not bound", gw.Spec.CredentialsSecretRef.Name)
	}

	for _, key := range RequiredCredentialKeys {
		if len(credentials.Data[key]) == 0 {
			return fmt.Errorf("credentials secret %q is missing required key %q",
				credentials.Name, key)
		}
	}

	return nil
}

// validateEnvEntries re-runs the webhook's shape checks and adds the
// cluster-aware one: a secretKeyRef into the bound credentials Secret must
// name an existing key. References into other Secrets resolve at pod start
// and are not checked here.
func validateEnvEntries(gw *ibgwv1alpha1.IBGateway, credentials *corev1.Secret) error {
	seen := make(map[string]struct{}, len(gw.Spec.Env))
	for i, entry := range gw.Spec.Env {
		if entry.Name == "" {
			return fmt.Errorf("env entry %d: name is required", i)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("env entry %q is declared more than once", entry.Name)
		}
		seen[entry.Name] = struct{}{}

		hasValue := entry.Value != nil
		hasRef := entry.ValueFrom != nil
		switch {
		case hasValue && hasRef:
			return fmt.Errorf("env entry %q: exactly one of value and valueFrom must be set, not both", entry.Name)
		case !hasValue && !hasRef:
			return fmt.Errorf("env entry %q: exactly one of value and valueFrom must be set", entry.Name)
		case hasRef:
			ref := entry.ValueFrom.SecretKeyRef
			if ref.Name == "" || ref.Key == "" {
				return fmt.Errorf("env entry %q: secretKeyRef requires both a secret name and a key", entry.Name)
			}
			if credentials != nil && ref.Name == credentials.Name {
				if _, ok := credentials.Data[ref.Key]; !ok {
					return fmt.Errorf("env entry %q references key %q absent from secret %q",
						entry.Name, ref.Key, ref.Name)
				}
			}
		}
	}

	return nil
}

// validateServicePorts rejects name, port, and targetPort collisions within
// the gateway workload, including an enabled VNC port landing on a declared
// target port.
func validateServicePorts(gw *ibgwv1alpha1.IBGateway) error {
	if gw.Spec.Service == nil || len(gw.Spec.Service.Ports) == 0 {
		return nil
	}

	seenNames := make(map[string]struct{})
	seenPorts := make(map[int32]struct{})
	seenTargets := make(map[int32]struct{})

	for _, p := range gw.Spec.Service.Ports {
		if _, dup := seenNames[p.Name]; dup {
			return fmt.Errorf("service port name %q is declared more than once", p.Name)
		}
		seenNames[p.Name] = struct{}{}

		if _, dup := seenPorts[p.Port]; dup {
			return fmt.Errorf("service port %d is declared more than once", p.Port)
		}
		seenPorts[p.Port] = struct{}{}

		if _, dup := seenTargets[p.TargetPort]; dup {
			return fmt.Errorf("service targetPort %d is declared more than once", p.TargetPort)
		}
		seenTargets[p.TargetPort] = struct{}{}
	}

	if gw.Spec.VNC != nil && gw.Spec.VNC.Enabled && gw.Spec.VNC.Port != 0 {
		if _, collides := seenTargets[gw.Spec.VNC.Port]; collides {
			return fmt.Errorf("vnc port %d collides with a declared service targetPort", gw.Spec.VNC.Port)
		}
	}

	return nil
}

func validatePersistence(gw *ibgwv1alpha1.IBGateway) error {
	p := gw.Spec.Persistence
	if p == nil || !p.Enabled {
		return nil
	}
	if p.Size == "" {
		return fmt.Errorf("persistence is enabled but size is empty")
	}
	return nil
}

// validateComponentImages rejects enabled components with an incomplete image
// reference. Disabled components may omit their image entirely.
func validateComponentImages(gw *ibgwv1alpha1.IBGateway) error {
	check := func(component string, image *ibgwv1alpha1.ImageSpec) error {
		if image == nil {
			return fmt.Errorf("%s is enabled but no image is set", component)
		}
		if image.Repository == "" {
			return fmt.Errorf("%s image repository is empty", component)
		}
		if image.Tag == "" {
			return fmt.Errorf("%s image tag is empty", component)
		}
		return nil
	}

	if gw.Spec.NoVNC != nil && gw.Spec.NoVNC.Enabled {
		if err := check("novnc", gw.Spec.NoVNC.Image); err != nil {
			return err
		}
	}
	if gw.Spec.PythonService != nil && gw.Spec.PythonService.Enabled {
		if err := check("pythonService", gw.Spec.PythonService.Image); err != nil {
			return err
		}
	}

	return nil
}
