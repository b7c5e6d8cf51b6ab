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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	ibgwv1alpha1 "github.com/dc-tec/ibgateway-operator/api/v1alpha1"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/test/e2e/framework"
)

var _ = Describe("Component toggles: noVNC bridge and scripting sidecar", Label("components", "novnc", "python"), Ordered, func() {
	ctx := context.Background()

	var f *framework.Framework

	const (
		gatewayName = "toggles-gateway"
	)

	BeforeAll(func() {
		var err error
		f, err = framework.NewSetup(ctx, "toggles", operatorNamespace)
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

	It("provisions the bridge and scripting workloads when enabled", func() {
		By(fmt.Sprintf("creating IBGateway %q with noVNC and pythonService enabled", gatewayName))
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
				PythonService: &ibgwv1alpha1.PythonServiceConfig{
					Enabled: true,
					Image: &ibgwv1alpha1.ImageSpec{
						Repository: pythonRepository,
						Tag:        pythonTag,
					},
				},
			},
		}
		Expect(f.Client.Create(ctx, gw)).To(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Created IBGateway %q\n", gatewayName)

		By("waiting for the bridge Deployment to be created")
		Eventually(func(g Gomega) {
			deployment := &appsv1.Deployment{}
			err := f.Client.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixBridge, Namespace: f.Namespace}, deployment)
			if err != nil {
				_, _ = fmt.Fprintf(GinkgoWriter, "Bridge Deployment not found yet: %v\n", err)
				g.Expect(err).NotTo(HaveOccurred())
			}

			env := map[string]string{}
			for _, c := range deployment.Spec.Template.Spec.Containers {
				if c.Name != constants.ContainerNameBridge {
					continue
				}
				for _, e := range c.Env {
					env[e.Name] = e.Value
				}
			}
			// The bridge dials the gateway by derived Service name, never by IP.
			g.Expect(env).To(HaveKeyWithValue(constants.EnvVNCHost, gatewayName+constants.SuffixGateway))
			g.Expect(env).To(HaveKeyWithValue(constants.EnvVNCPort, "5900"))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Bridge Deployment %q created\n", gatewayName+constants.SuffixBridge)

		By("waiting for the scripting Deployment to be created")
		Eventually(func(g Gomega) {
			deployment := &appsv1.Deployment{}
			err := f.Client.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixScripting, Namespace: f.Namespace}, deployment)
			if err != nil {
				_, _ = fmt.Fprintf(GinkgoWriter, "Scripting Deployment not found yet: %v\n", err)
				g.Expect(err).NotTo(HaveOccurred())
			}

			env := map[string]string{}
			for _, c := range deployment.Spec.Template.Spec.Containers {
				if c.Name != constants.ContainerNameScripting {
					continue
				}
				for _, e := range c.Env {
					env[e.Name] = e.Value
				}
			}
			g.Expect(env).To(HaveKeyWithValue(constants.EnvIBHost, gatewayName+constants.SuffixGateway))
			// Paper mode dials the published API port.
			g.Expect(env).To(HaveKeyWithValue(constants.EnvIBPort, "4002"))
			g.Expect(env).To(HaveKeyWithValue(constants.EnvIBClientID, "123"))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Scripting Deployment %q created\n", gatewayName+constants.SuffixScripting)

		By("checking the component Services")
		Eventually(func(g Gomega) {
			bridgeSvc := &corev1.Service{}
			g.Expect(f.Client.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixBridge, Namespace: f.Namespace}, bridgeSvc)).To(Succeed())
			g.Expect(bridgeSvc.Spec.Ports).To(HaveLen(1))
			g.Expect(bridgeSvc.Spec.Ports[0].Port).To(Equal(int32(constants.PortNoVNC)))

			scriptingSvc := &corev1.Service{}
			g.Expect(f.Client.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixScripting, Namespace: f.Namespace}, scriptingSvc)).To(Succeed())
			g.Expect(scriptingSvc.Spec.Ports).To(HaveLen(1))
			g.Expect(scriptingSvc.Spec.Ports[0].Port).To(Equal(int32(constants.PortScripting)))
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())
	})

	It("removes the bridge workload when novnc is disabled", func() {
		By("disabling novnc on the gateway")
		gw := &ibgwv1alpha1.IBGateway{}
		Expect(f.Client.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, gw)).To(Succeed())

		gw.Spec.NoVNC.Enabled = false
		Expect(f.Client.Update(ctx, gw)).To(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Disabled novnc on IBGateway %q\n", gatewayName)

		By("waiting for the bridge Deployment and Service to be removed")
		Expect(f.WaitForDeploymentDeleted(ctx, gatewayName+constants.SuffixBridge, framework.DefaultWaitTimeout, framework.DefaultPollInterval)).To(Succeed())

		Eventually(func(g Gomega) {
			svc := &corev1.Service{}
			err := f.Client.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixBridge, Namespace: f.Namespace}, svc)
			g.Expect(apierrors.IsNotFound(err)).To(BeTrue(), "bridge Service should be deleted")
		}, framework.DefaultWaitTimeout, framework.DefaultPollInterval).Should(Succeed())

		By("verifying the scripting workload is untouched")
		deployment := &appsv1.Deployment{}
		Expect(f.Client.Get(ctx, types.NamespacedName{Name: gatewayName + constants.SuffixScripting, Namespace: f.Namespace}, deployment)).To(Succeed(),
			"scripting Deployment should still exist")
		_, _ = fmt.Fprintf(GinkgoWriter, "Bridge removed, scripting sidecar retained\n")
	})
})
