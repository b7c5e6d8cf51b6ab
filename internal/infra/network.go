package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/config"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

// ensureGatewayService manages the gateway Service using Server-Side Apply.
// The published ports are the stable contract: the bridge, the sidecar, the
// rendered configuration, and external consumers all address the gateway
// through them.
func (m *Manager) ensureGatewayService(ctx context.Context, _ logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	svcName := gatewayName(gw)

	svcType := corev1.ServiceTypeClusterIP
	var annotations map[string]string
	if gw.Spec.Service != nil {
		if gw.Spec.Service.Type != "" {
			svcType = gw.Spec.Service.Type
		}
		annotations = gw.Spec.Service.Annotations
	}

	service := &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Service",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:        svcName,
			Namespace:   gw.Namespace,
			Labels:      componentLabels(gw, constants.ComponentGateway),
			Annotations: annotations,
		},
		Spec: corev1.ServiceSpec{
			Type:     svcType,
			Selector: componentLabels(gw, constants.ComponentGateway),
			Ports:    buildGatewayServicePorts(gw),
		},
	}

	if err := m.applyResource(ctx, service, gw); err != nil {
		return fmt.Errorf("failed to ensure gateway Service %s/%s: %w", gw.Namespace, svcName, err)
	}

	return nil
}

// buildGatewayServicePorts maps each declared port triple to a Service port
// and appends the VNC port when desktop access is enabled.
func buildGatewayServicePorts(gw *ibgwv1alpha1.IBGateway) []corev1.ServicePort {
	declared := config.ServicePorts(gw)

	ports := make([]corev1.ServicePort, 0, len(declared)+1)
	for _, p := range declared {
		protocol := p.Protocol
		if protocol == "" {
			protocol = corev1.ProtocolTCP
		}
		ports = append(ports, corev1.ServicePort{
			Name:       p.Name,
			Port:       p.Port,
			TargetPort: intstr.FromInt32(p.TargetPort),
			Protocol:   protocol,
		})
	}

	if gw.Spec.VNC != nil && gw.Spec.VNC.Enabled {
		vncPort := effectiveVNCPort(gw)
		ports = append(ports, corev1.ServicePort{
			Name:       constants.PortNameVNC,
			Port:       vncPort,
			TargetPort: intstr.FromInt32(vncPort),
			Protocol:   corev1.ProtocolTCP,
		})
	}

	return ports
}

// ensureBridgeService manages the desktop-bridge Service. Disabling the
// bridge deletes it.
func (m *Manager) ensureBridgeService(ctx context.Context, _ logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	enabled := gw.Spec.NoVNC != nil && gw.Spec.NoVNC.Enabled
	svcName := bridgeName(gw)

	if !enabled {
		if err := m.deleteServiceIfExists(ctx, gw.Namespace, svcName); err != nil {
			return fmt.Errorf("failed to delete bridge Service %s/%s: %w", gw.Namespace, svcName, err)
		}
		return nil
	}

	service := buildComponentService(gw, svcName, constants.ComponentBridge, effectiveBridgePort(gw))
	if err := m.applyResource(ctx, service, gw); err != nil {
		return fmt.Errorf("failed to ensure bridge Service %s/%s: %w", gw.Namespace, svcName, err)
	}

	return nil
}

// ensureScriptingService manages the scripting sidecar Service. Disabling the
// sidecar deletes it.
func (m *Manager) ensureScriptingService(ctx context.Context, _ logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	enabled := gw.Spec.PythonService != nil && gw.Spec.PythonService.Enabled
	svcName := scriptingName(gw)

	if !enabled {
		if err := m.deleteServiceIfExists(ctx, gw.Namespace, svcName); err != nil {
			return fmt.Errorf("failed to delete sidecar Service %s/%s: %w", gw.Namespace, svcName, err)
		}
		return nil
	}

	service := buildComponentService(gw, svcName, constants.ComponentScripting, effectiveScriptingPort(gw))
	if err := m.applyResource(ctx, service, gw); err != nil {
		return fmt.Errorf("failed to ensure sidecar Service %s/%s: %w", gw.Namespace, svcName, err)
	}

	return nil
}

// buildComponentService constructs the single-port ClusterIP Service used by
// the bridge and the sidecar.
func buildComponentService(gw *ibgwv1alpha1.IBGateway, name, component string, port int32) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Service",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: gw.Namespace,
			Labels:    componentLabels(gw, component),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: componentLabels(gw, component),
			Ports: []corev1.ServicePort{
				{
					Name:       constants.PortNameHTTP,
					Port:       port,
					TargetPort: intstr.FromInt32(port),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}

// ensureIngress manages external access via Ingress using Server-Side Apply.
func (m *Manager) ensureIngress(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	ingressCfg := gw.Spec.Ingress
	enabled := ingressCfg != nil && ingressCfg.Enabled
	name := ingressName(gw)

	// If Ingress is disabled, check if it exists and delete it
	if !enabled {
		ingress := &networkingv1.Ingress{}
		err := m.client.Get(ctx, types.NamespacedName{
			Namespace: gw.Namespace,
			Name:      name,
		}, ingress)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil // Already deleted, nothing to do
			}
			return fmt.Errorf("failed to get Ingress %s/%s: %w", gw.Namespace, name, err)
		}

		logger.Info("Ingress no longer enabled; deleting", "ingress", name)
		if err := m.client.Delete(ctx, ingress); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete Ingress %s/%s: %w", gw.Namespace, name, err)
		}
		return nil
	}

	desired := buildIngress(gw)
	if desired == nil {
		// Configuration incomplete, check if Ingress exists and delete it
		ingress := &networkingv1.Ingress{}
		err := m.client.Get(ctx, types.NamespacedName{
			Namespace: gw.Namespace,
			Name:      name,
		}, ingress)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil // Already deleted, nothing to do
			}
			return fmt.Errorf("failed to get Ingress %s/%s: %w", gw.Namespace, name, err)
		}

		logger.Info("Ingress configuration incomplete; deleting existing Ingress", "ingress", name)
		if err := m.client.Delete(ctx, ingress); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete Ingress %s/%s after incomplete config: %w", gw.Namespace, name, err)
		}
		return nil
	}

	// Set TypeMeta for SSA
	desired.TypeMeta = metav1.TypeMeta{
		Kind:       "Ingress",
		APIVersion: "networking.k8s.io/v1",
	}

	if err := m.applyResource(ctx, desired, gw); err != nil {
		return fmt.Errorf("failed to ensure Ingress %s/%s: %w", gw.Namespace, name, err)
	}

	return nil
}

// buildIngress constructs an Ingress for the given IBGateway. Returns nil
// when the configuration is incomplete or there is nothing to route.
func buildIngress(gw *ibgwv1alpha1.IBGateway) *networkingv1.Ingress {
	if gw.Spec.Ingress == nil || !gw.Spec.Ingress.Enabled {
		return nil
	}

	ing := gw.Spec.Ingress
	if strings.TrimSpace(ing.Host) == "" {
		return nil
	}

	paths := ing.Paths
	if len(paths) == 0 {
		paths = defaultIngressPaths(gw)
	}
	if len(paths) == 0 {
		return nil
	}

	pathType := networkingv1.PathTypePrefix
	httpPaths := make([]networkingv1.HTTPIngressPath, 0, len(paths))
	for _, p := range paths {
		httpPaths = append(httpPaths, networkingv1.HTTPIngressPath{
			Path:     p.Path,
			PathType: &pathType,
			Backend: networkingv1.IngressBackend{
				Service: &networkingv1.IngressServiceBackend{
					Name: ingressBackendServiceName(gw, p.Service),
					Port: networkingv1.ServiceBackendPort{
						Number: p.Port,
					},
				},
			},
		})
	}

	rule := networkingv1.IngressRule{
		Host: ing.Host,
		IngressRuleValue: networkingv1.IngressRuleValue{
			HTTP: &networkingv1.HTTPIngressRuleValue{
				Paths: httpPaths,
			},
		},
	}

	var tls []networkingv1.IngressTLS
	if strings.TrimSpace(ing.TLSSecretName) != "" {
		tls = append(tls, networkingv1.IngressTLS{
			Hosts:      []string{ing.Host},
			SecretName: ing.TLSSecretName,
		})
	}

	ingress := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        ingressName(gw),
			Namespace:   gw.Namespace,
			Labels:      infraLabels(gw),
			Annotations: ing.Annotations,
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{rule},
			TLS:   tls,
		},
	}

	if ing.ClassName != nil && strings.TrimSpace(*ing.ClassName) != "" {
		className := strings.TrimSpace(*ing.ClassName)
		ingress.Spec.IngressClassName = &className
	}

	return ingress
}

// ingressBackendServiceName maps a declared path component to its derived
// Service name. An unknown component is projected as declared; the resulting
// rule is inert at runtime rather than fatal at reconcile time.
func ingressBackendServiceName(gw *ibgwv1alpha1.IBGateway, component string) string {
	switch component {
	case constants.ComponentBridge:
		return bridgeName(gw)
	case constants.ComponentScripting:
		return scriptingName(gw)
	default:
		return gw.Name + "-" + component
	}
}

// defaultIngressPaths routes "/" to the bridge when no explicit paths are
// declared and the bridge is enabled.
func defaultIngressPaths(gw *ibgwv1alpha1.IBGateway) []ibgwv1alpha1.IngressPath {
	if gw.Spec.NoVNC == nil || !gw.Spec.NoVNC.Enabled {
		return nil
	}
	return []ibgwv1alpha1.IngressPath{
		{
			Path:    "/",
			Service: constants.ComponentBridge,
			Port:    effectiveBridgePort(gw),
		},
	}
}

// ensureHTTPRoute manages the Gateway API HTTPRoute for the IBGateway. When
// spec.gatewayRoute.enabled is true, it creates or updates an HTTPRoute that
// routes traffic from the referenced Gateway to the desktop-bridge Service.
//
// This function gracefully handles the case where Gateway API CRDs are not
// installed in the cluster. If the HTTPRoute CRD is not found, the function
// returns ErrGatewayAPIMissing so the caller can degrade instead of failing
// the whole reconciliation.
func (m *Manager) ensureHTTPRoute(ctx context.Context, logger logr.Logger, gw *ibgwv1alpha1.IBGateway) error {
	routeCfg := gw.Spec.GatewayRoute
	enabled := routeCfg != nil && routeCfg.Enabled
	name := httpRouteName(gw)

	// If the HTTPRoute is disabled, check if it exists and delete it
	if !enabled {
		httpRoute := &gatewayv1.HTTPRoute{}
		err := m.client.Get(ctx, types.NamespacedName{
			Namespace: gw.Namespace,
			Name:      name,
		}, httpRoute)
		if err != nil {
			if operatorerrors.IsCRDMissingError(err) {
				return nil // CRD not installed, nothing to do
			}
			if apierrors.IsNotFound(err) {
				return nil // Already deleted, nothing to do
			}
			return fmt.Errorf("failed to get HTTPRoute %s/%s: %w", gw.Namespace, name, err)
		}

		logger.Info("HTTPRoute no longer enabled; deleting", "httproute", name)
		if err := m.client.Delete(ctx, httpRoute); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete HTTPRoute %s/%s: %w", gw.Namespace, name, err)
		}
		return nil
	}

	desired := buildHTTPRoute(gw)
	if desired == nil {
		// Configuration incomplete, check if the HTTPRoute exists and delete it
		httpRoute := &gatewayv1.HTTPRoute{}
		err := m.client.Get(ctx, types.NamespacedName{
			Namespace: gw.Namespace,
			Name:      name,
		}, httpRoute)
		if err != nil {
			if operatorerrors.IsCRDMissingError(err) {
				return nil
			}
			if apierrors.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to get HTTPRoute %s/%s: %w", gw.Namespace, name, err)
		}

		logger.Info("HTTPRoute configuration incomplete; deleting existing HTTPRoute", "httproute", name)
		if err := m.client.Delete(ctx, httpRoute); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete HTTPRoute %s/%s after incomplete config: %w", gw.Namespace, name, err)
		}
		return nil
	}

	// Set TypeMeta for SSA
	desired.TypeMeta = metav1.TypeMeta{
		Kind:       "HTTPRoute",
		APIVersion: "gateway.networking.k8s.io/v1",
	}

	if err := m.applyResource(ctx, desired, gw); err != nil {
		if operatorerrors.IsCRDMissingError(err) {
			logger.Info("Gateway API CRDs not installed; HTTPRoute reconciliation will be marked as degraded", "httproute", name)
			return ErrGatewayAPIMissing
		}
		return fmt.Errorf("failed to ensure HTTPRoute %s/%s: %w", gw.Namespace, name, err)
	}

	return nil
}

// buildHTTPRoute constructs an HTTPRoute for the given IBGateway. Returns nil
// if the Gateway route configuration is incomplete.
func buildHTTPRoute(gw *ibgwv1alpha1.IBGateway) *gatewayv1.HTTPRoute {
	if gw.Spec.GatewayRoute == nil || !gw.Spec.GatewayRoute.Enabled {
		return nil
	}

	routeCfg := gw.Spec.GatewayRoute
	if strings.TrimSpace(routeCfg.Hostname) == "" {
		return nil
	}
	if strings.TrimSpace(routeCfg.GatewayRef.Name) == "" {
		return nil
	}

	// Determine the Gateway namespace; defaults to the IBGateway namespace
	gatewayNamespace := routeCfg.GatewayRef.Namespace
	if strings.TrimSpace(gatewayNamespace) == "" {
		gatewayNamespace = gw.Namespace
	}

	hostname := gatewayv1.Hostname(routeCfg.Hostname)
	pathType := gatewayv1.PathMatchPathPrefix
	path := "/"
	port := gatewayv1.PortNumber(effectiveBridgePort(gw))
	gatewayNS := gatewayv1.Namespace(gatewayNamespace)

	return &gatewayv1.HTTPRoute{
		ObjectMeta: metav1.ObjectMeta{
			Name:        httpRouteName(gw),
			Namespace:   gw.Namespace,
			Labels:      infraLabels(gw),
			Annotations: routeCfg.Annotations,
		},
		Spec: gatewayv1.HTTPRouteSpec{
			CommonRouteSpec: gatewayv1.CommonRouteSpec{
				ParentRefs: []gatewayv1.ParentReference{
					{
						Name:      gatewayv1.ObjectName(routeCfg.GatewayRef.Name),
						Namespace: &gatewayNS,
					},
				},
			},
			Hostnames: []gatewayv1.Hostname{hostname},
			Rules: []gatewayv1.HTTPRouteRule{
				{
					Matches: []gatewayv1.HTTPRouteMatch{
						{
							Path: &gatewayv1.HTTPPathMatch{
								Type:  &pathType,
								Value: &path,
							},
						},
					},
					BackendRefs: []gatewayv1.HTTPBackendRef{
						{
							BackendRef: gatewayv1.BackendRef{
								BackendObjectReference: gatewayv1.BackendObjectReference{
									Name: gatewayv1.ObjectName(bridgeName(gw)),
									Port: &port,
								},
							},
						},
					},
				},
			},
		},
	}
}

func (m *Manager) deleteServiceIfExists(ctx context.Context, namespace, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}

	service := &corev1.Service{}
	err := m.client.Get(ctx, types.NamespacedName{
		Namespace: namespace,
		Name:      name,
	}, service)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := m.client.Delete(ctx, service); err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	return nil
}

// deleteServices removes all Services associated with the IBGateway.
func (m *Manager) deleteServices(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	serviceNames := []string{
		gatewayName(gw),
		bridgeName(gw),
		scriptingName(gw),
	}

	for _, name := range serviceNames {
		if err := m.deleteServiceIfExists(ctx, gw.Namespace, name); err != nil {
			return err
		}
	}

	return nil
}

// deleteIngress removes the Ingress resource for the IBGateway.
func (m *Manager) deleteIngress(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	ingress := &networkingv1.Ingress{}
	err := m.client.Get(ctx, types.NamespacedName{
		Namespace: gw.Namespace,
		Name:      ingressName(gw),
	}, ingress)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := m.client.Delete(ctx, ingress); err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	return nil
}

// deleteHTTPRoute removes the HTTPRoute resource for the IBGateway.
func (m *Manager) deleteHTTPRoute(ctx context.Context, gw *ibgwv1alpha1.IBGateway) error {
	httpRoute := &gatewayv1.HTTPRoute{}
	err := m.client.Get(ctx, types.NamespacedName{
		Namespace: gw.Namespace,
		Name:      httpRouteName(gw),
	}, httpRoute)
	if err != nil {
		if apierrors.IsNotFound(err) || operatorerrors.IsCRDMissingError(err) {
			return nil
		}
		return err
	}

	if err := m.client.Delete(ctx, httpRoute); err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	return nil
}
