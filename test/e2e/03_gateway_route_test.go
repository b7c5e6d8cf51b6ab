//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/test/e2e/framework"
)

var _ = Describe("Gateway API: HTTPRoute publication", Label("gateway-api", "httproute"), Ordered, func() {
	ctx := context.Background()

	var (
		cfg    *rest.Config
		scheme *runtime.Scheme
		c      client.Client
		f      *framework.Framework
	)

	const (
		gatewayName  = "route-gateway"
		edgeName     = "edge"
		routeHost    = "gateway.e2e.local"
		routeSuffix  = "-httproute"
		gatewayClass = "ibgateway-e2e"
	)

	BeforeAll(func() {
		var err error

		cfg, err = ctrlconfig.GetConfig()
		Expect(err).NotTo(HaveOccurred())

		scheme = runtime.NewScheme()
		Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
		Expect(ibgwv1alpha1.AddToScheme(scheme)).To(Succeed())
		Expect(gatewayv1.Install(scheme)).To(Succeed())

		c, err = client.New(cfg, client.Options{Scheme: scheme})
		Expect(err).NotTo(HaveOccurred())

		f, err = framework.New(ctx, c, "route", operatorNamespace)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if f == nil {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		_ = f.Cleanup(cleanupCtx)
	})

	It("reports Degraded while the Gateway API types are missing", func() {
		By(fmt.Sprintf("creating IBGateway %q with gatewayRoute enabled", gatewayName))
		secretName, err := f.EnsureCredentialsSecret(ctx, gatewayName)
		Expect(err).NotTo(HaveOccurred())

		gw := &ibgwv1alpha1.IBGateway{
			ObjectMeta: metav1.ObjectMeta{
				Name:      gatewayName,
				Namespace: f.Namespace,
			},
			Spec: ibgwv1alpha1.IBGatewaySpec{
				Image: ibgwv1alpha1.ImageSpec{
					Repository: gatewayRepository,
					Tag:        gatewayTag,
				},
				TradingMode: ibgwv1alpha1.TradingModePaper,
				CredentialsSecretRef: corev1.LocalObjectReference{
					Name: secretName,
				},
				VNC: &ibgwv1alpha1.VNCConfig{
					Enabled: true,
				},
				NoVNC: &ibgwv1alpha1.NoVNCConfig{
					Enabled: true,
					Image: &ibgwv1alpha1.ImageSpec{
						Repository: novncRepository,
						Tag:        novncTag,
					},
				},
				GatewayRoute: &ibgwv1alpha1.GatewayRouteConfig{
					Enabled: true,
					GatewayRef: ibgwv1alpha1.GatewayReference{
						Name: edgeName,
					},
					Hostname: routeHost,
				},
			},
		}
		Expect(c.Create(ctx, gw)).To(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Created IBGateway %q\n", gatewayName)

		By("waiting for the Degraded condition to report the missing route types")
		Eventually(func(g Gomega) {
			updated := &ibgwv1alpha1.IBGateway{}
			g.Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, updated)).To(Succeed())

			degraded := meta.FindStatusCondition(updated.Status.Conditions, string(ibgwv1alpha1.ConditionDegraded))
			g.Expect(degraded).NotTo(BeNil())
			_, _ = fmt.Fprintf(GinkgoWriter, "Degraded condition: status=%s reason=%s message=%q\n",
				degraded.Status, degraded.Reason, degraded.Message)
			g.Expect(degraded.Status).To(Equal(metav1.ConditionTrue))
			g.Expect(degraded.Reason).To(Equal("GatewayAPIMissing"))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())

		By("verifying the other workloads still converged")
		Eventually(func(g Gomega) {
			updated := &ibgwv1alpha1.IBGateway{}
			g.Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, updated)).To(Succeed())

			validated := meta.FindStatusCondition(updated.Status.Conditions, string(ibgwv1alpha1.ConditionValidated))
			g.Expect(validated).NotTo(BeNil())
			g.Expect(validated.Status).To(Equal(metav1.ConditionTrue),
				"a missing optional surface must not block the core workloads")
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
	})

	It("publishes the HTTPRoute once the Gateway API is installed", func() {
		By("installing the Gateway API CRDs")
		cleanup, err := f.RequireGatewayAPI()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(cleanup)

		By(fmt.Sprintf("creating the parent Gateway %q", edgeName))
		edge := &gatewayv1.Gateway{
			ObjectMeta: metav1.ObjectMeta{
				Name:      edgeName,
				Namespace: f.Namespace,
			},
			Spec: gatewayv1.GatewaySpec{
				GatewayClassName: gatewayClass,
				Listeners: []gatewayv1.Listener{
					{
						Name:     "http",
						Port:     80,
						Protocol: gatewayv1.HTTPProtocolType,
					},
				},
			},
		}
		Expect(c.Create(ctx, edge)).To(Succeed())
		DeferCleanup(func() {
			_ = c.Delete(ctx, edge)
		})

		By("triggering a reconcile and waiting for the HTTPRoute")
		Expect(f.TriggerReconcile(ctx, gatewayName)).To(Succeed())

		Eventually(func(g Gomega) {
			route := &gatewayv1.HTTPRoute{}
			err := c.Get(ctx, types.NamespacedName{Name: gatewayName + routeSuffix, Namespace: f.Namespace}, route)
			if err != nil {
				_, _ = fmt.Fprintf(GinkgoWriter, "HTTPRoute not found yet: %v\n", err)
				g.Expect(err).NotTo(HaveOccurred())
			}

			g.Expect(route.Spec.Hostnames).To(ConsistOf(gatewayv1.Hostname(routeHost)))
			g.Expect(route.Spec.ParentRefs).To(HaveLen(1))
			g.Expect(string(route.Spec.ParentRefs[0].Name)).To(Equal(edgeName))
			g.Expect(route.Spec.Rules).To(HaveLen(1))
			g.Expect(route.Spec.Rules[0].BackendRefs).To(HaveLen(1))
			g.Expect(string(route.Spec.Rules[0].BackendRefs[0].Name)).To(Equal(gatewayName + constants.SuffixBridge))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "HTTPRoute %q published\n", gatewayName+routeSuffix)

		By("waiting for the Degraded condition to clear")
		f.WaitForCondition(gatewayName, ibgwv1alpha1.ConditionDegraded, metav1.ConditionFalse)
		_, _ = fmt.Fprintf(GinkgoWriter, "Degraded condition cleared after route publication\n")
	})
})
