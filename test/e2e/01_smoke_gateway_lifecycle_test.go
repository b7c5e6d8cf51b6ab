//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/test/e2e/framework"
)

var _ = Describe("Smoke: IBGateway lifecycle", Label("smoke", "critical", "gateway"), Ordered, func() {
	ctx := context.Background()

	var (
		cfg    *rest.Config
		scheme *runtime.Scheme
		c      client.Client
		f      *framework.Framework
	)

	const (
		gatewayName = "smoke-gateway"
	)

	BeforeAll(func() {
		var err error

		cfg, err = ctrlconfig.GetConfig()
		Expect(err).NotTo(HaveOccurred())

		scheme = runtime.NewScheme()
		Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
		Expect(ibgwv1alpha1.AddToScheme(scheme)).To(Succeed())

		c, err = client.New(cfg, client.Options{Scheme: scheme})
		Expect(err).NotTo(HaveOccurred())

		f, err = framework.New(ctx, c, "smoke", operatorNamespace)
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

	It("creates an IBGateway and materializes its configuration", func() {
		By(fmt.Sprintf("creating IBGateway %q in namespace %q", gatewayName, f.Namespace))
		_, err := f.CreatePaperGateway(ctx, framework.PaperGatewayConfig{
			Name:       gatewayName,
			Repository: gatewayRepository,
			Tag:        gatewayTag,
		})
		Expect(err).NotTo(HaveOccurred())
		_, _ = fmt.Fprintf(GinkgoWriter, "Created IBGateway %q\n", gatewayName)

		By("waiting for the IBGateway to be observed by the API server")
		Eventually(func() error {
			return c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, &ibgwv1alpha1.IBGateway{})
		}, 30*time.Second, 1*time.Second).Should(Succeed())

		By("waiting for the Validated condition")
		f.WaitForCondition(gatewayName, ibgwv1alpha1.ConditionValidated, metav1.ConditionTrue)

		By("checking the rendered configuration bundle")
		Eventually(func(g Gomega) {
			cm := &corev1.ConfigMap{}
			cmName := types.NamespacedName{Name: gatewayName + constants.SuffixConfigMap, Namespace: f.Namespace}
			err := c.Get(ctx, cmName, cm)
			if err != nil {
				_, _ = fmt.Fprintf(GinkgoWriter, "ConfigMap %q not found yet: %v\n", cmName.Name, err)
			}
			g.Expect(err).NotTo(HaveOccurred(), "rendered ConfigMap should exist")

			// Port scalars come from the published Service ports, not the
			// container targetPorts; clients dial the published numbers.
			g.Expect(cm.Data).To(HaveKeyWithValue(constants.EnvTWSPort, "4001"))
			g.Expect(cm.Data).To(HaveKeyWithValue(constants.EnvAPIPort, "4002"))
			g.Expect(cm.Data).To(HaveKeyWithValue(constants.EnvTradingMode, "paper"))
			g.Expect(cm.Data).To(HaveKey(constants.FileGatewaySettings))
			g.Expect(cm.Data).To(HaveKey(constants.FileAutomationSettings))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "ConfigMap %q carries the rendered bundle\n", gatewayName+constants.SuffixConfigMap)

		By("waiting for the gateway Deployment to be created")
		Eventually(func(g Gomega) {
			updated := &ibgwv1alpha1.IBGateway{}
			if err := c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, updated); err == nil {
				for _, cond := range updated.Status.Conditions {
					_, _ = fmt.Fprintf(GinkgoWriter, "Gateway condition: %s=%s reason=%s message=%q\n",
						cond.Type, cond.Status, cond.Reason, cond.Message)
				}
			}

			deployment := &appsv1.Deployment{}
			err := c.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixGateway, Namespace: f.Namespace}, deployment)
			if err != nil {
				_, _ = fmt.Fprintf(GinkgoWriter, "Deployment %q not found yet: %v\n", gatewayName+constants.SuffixGateway, err)
				g.Expect(err).NotTo(HaveOccurred())
			}

			initNames := make([]string, 0, len(deployment.Spec.Template.Spec.InitContainers))
			for _, ic := range deployment.Spec.Template.Spec.InitContainers {
				initNames = append(initNames, ic.Name)
			}
			g.Expect(initNames).To(ContainElement(constants.ContainerNameConfigInit),
				"gateway pod should materialize its configuration through the init container")
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Deployment %q created\n", gatewayName+constants.SuffixGateway)

		By("checking the gateway Service publishes the session ports")
		Eventually(func(g Gomega) {
			svc := &corev1.Service{}
			g.Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixGateway, Namespace: f.Namespace}, svc)).To(Succeed())

			ports := map[string]int32{}
			for _, p := range svc.Spec.Ports {
				ports[p.Name] = p.Port
			}
			g.Expect(ports).To(HaveKeyWithValue(constants.PortNameTWS, int32(constants.PortTWS)))
			g.Expect(ports).To(HaveKeyWithValue(constants.PortNameAPI, int32(constants.PortAPI)))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())

		By("waiting for the gateway pod to become Ready")
		deployment, err := f.WaitForDeploymentReady(ctx, gatewayName+constants.SuffixGateway, 1, framework.DefaultLongWaitTimeout, 3*time.Second)
		Expect(err).NotTo(HaveOccurred())
		_, _ = fmt.Fprintf(GinkgoWriter, "Deployment %q ready (ready=%d)\n", deployment.Name, deployment.Status.ReadyReplicas)

		By("triggering a reconcile and waiting for the Running phase")
		Expect(f.TriggerReconcile(ctx, gatewayName)).To(Succeed())
		f.WaitForPhase(gatewayName, ibgwv1alpha1.GatewayPhaseRunning)

		By("checking the published status fields")
		Eventually(func(g Gomega) {
			updated := &ibgwv1alpha1.IBGateway{}
			g.Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, updated)).To(Succeed())

			g.Expect(updated.Status.RenderedConfigRevision).NotTo(BeEmpty())
			g.Expect(updated.Status.GatewayAddress).To(Equal(
				fmt.Sprintf("%s%s.%s.svc", gatewayName, constants.SuffixGateway, f.Namespace)))
			g.Expect(updated.Status.ObservedGeneration).To(Equal(updated.Generation))

			ready := meta.FindStatusCondition(updated.Status.Conditions, string(ibgwv1alpha1.ConditionReady))
			g.Expect(ready).NotTo(BeNil())
			g.Expect(ready.Status).To(Equal(metav1.ConditionTrue),
				fmt.Sprintf("Ready=%s reason=%s message=%s", ready.Status, ready.Reason, ready.Message))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "IBGateway %q is Running\n", gatewayName)
	})

	It("removes workloads on deletion but preserves settings and credentials", func() {
		By(fmt.Sprintf("deleting IBGateway %q", gatewayName))
		gw := &ibgwv1alpha1.IBGateway{}
		Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, gw)).To(Succeed())
		Expect(c.Delete(ctx, gw)).To(Succeed())

		By("waiting for the gateway workloads to be removed")
		Expect(f.WaitForDeploymentDeleted(ctx, gatewayName+constants.SuffixGateway, framework.DefaultWaitTimeout, framework.DefaultPollInterval)).To(Succeed())

		Eventually(func(g Gomega) {
			svc := &corev1.Service{}
			err := c.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixGateway, Namespace: f.Namespace}, svc)
			g.Expect(apierrors.IsNotFound(err)).To(BeTrue(), "gateway Service should be deleted")

			cm := &corev1.ConfigMap{}
			err = c.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixConfigMap, Namespace: f.Namespace}, cm)
			g.Expect(apierrors.IsNotFound(err)).To(BeTrue(), "rendered ConfigMap should be deleted")
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())

		By("verifying the settings volume and credentials Secret survive")
		pvc := &corev1.PersistentVolumeClaim{}
		Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixSettingsPVC, Namespace: f.Namespace}, pvc)).To(Succeed(),
			"settings PVC must outlive the gateway document")

		secret := &corev1.Secret{}
		Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixCredentials, Namespace: f.Namespace}, secret)).To(Succeed(),
			"credentials Secret must outlive the gateway document")
		_, _ = fmt.Fprintf(GinkgoWriter, "Settings PVC and credentials Secret preserved after deletion\n")
	})
})
