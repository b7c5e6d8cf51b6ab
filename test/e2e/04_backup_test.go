//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
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
	"github.com/dc-tec/ibgateway-operator/test/e2e/helpers"
)

var _ = Describe("Backup: settings archive to object storage", Label("backup", "storage"), Ordered, func() {
	ctx := context.Background()

	var (
		cfg    *rest.Config
		scheme *runtime.Scheme
		c      client.Client
		f      *framework.Framework
	)

	const (
		gatewayName  = "backup-gateway"
		backupBucket = "ibgw-backups"
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

		f, err = framework.New(ctx, c, "backup", operatorNamespace)
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

	It("archives the settings volume to the object store", func() {
		By("provisioning MinIO with the backup bucket")
		minioCfg := helpers.DefaultMinIOConfig()
		minioCfg.Namespace = f.Namespace
		minioCfg.Buckets = []string{backupBucket}
		Expect(helpers.EnsureMinIO(ctx, c, cfg, minioCfg)).To(Succeed())
		DeferCleanup(func() {
			helpers.CleanupMinIO(ctx, c, minioCfg)
		})
		_, _ = fmt.Fprintf(GinkgoWriter, "MinIO ready at %s\n", minioCfg.Endpoint())

		By(fmt.Sprintf("creating IBGateway %q with a backup schedule", gatewayName))
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
				Persistence: &ibgwv1alpha1.PersistenceConfig{
					Enabled: true,
					Size:    "1Gi",
				},
				Backup: &ibgwv1alpha1.BackupSchedule{
					// The baseline archive runs as soon as backups are
					// configured; the daily window only governs repeats.
					Schedule: "0 3 * * *",
					Target: ibgwv1alpha1.BackupTarget{
						Endpoint:     minioCfg.Endpoint(),
						Bucket:       backupBucket,
						Region:       "us-east-1",
						UsePathStyle: true,
						CredentialsSecretRef: &corev1.LocalObjectReference{
							Name: minioCfg.CredentialsSecretName(),
						},
					},
					Retention: &ibgwv1alpha1.BackupRetention{
						MaxCount: 3,
					},
				},
			},
		}
		Expect(c.Create(ctx, gw)).To(Succeed())
		_, _ = fmt.Fprintf(GinkgoWriter, "Created IBGateway %q\n", gatewayName)

		By("waiting for the baseline archive to complete")
		Eventually(func(g Gomega) {
			updated := &ibgwv1alpha1.IBGateway{}
			g.Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, updated)).To(Succeed())

			cond := meta.FindStatusCondition(updated.Status.Conditions, string(ibgwv1alpha1.ConditionBackupReady))
			if cond != nil {
				_, _ = fmt.Fprintf(GinkgoWriter, "BackupReady condition: status=%s reason=%s message=%q\n",
					cond.Status, cond.Reason, cond.Message)
			}
			if updated.Status.Backup != nil && updated.Status.Backup.LastFailureReason != "" {
				_, _ = fmt.Fprintf(GinkgoWriter, "Last backup failure: %s\n", updated.Status.Backup.LastFailureReason)
			}

			g.Expect(cond).NotTo(BeNil())
			g.Expect(cond.Status).To(Equal(metav1.ConditionTrue),
				fmt.Sprintf("BackupReady=%s reason=%s message=%s", cond.Status, cond.Reason, cond.Message))
		}, framework.DefaultLongWaitTimeout, framework.DefaultPollInterval).Should(Succeed())

		By("checking the recorded archive bookkeeping")
		updated := &ibgwv1alpha1.IBGateway{}
		Expect(c.Get(ctx, types.NamespacedName{Name: gatewayName, Namespace: f.Namespace}, updated)).To(Succeed())
		Expect(updated.Status.Backup).NotTo(BeNil())
		Expect(updated.Status.Backup.LastBackupName).NotTo(BeEmpty())
		Expect(updated.Status.Backup.LastBackupName).To(ContainSubstring(gatewayName),
			"archive keys are namespaced by gateway identity")
		Expect(updated.Status.Backup.LastBackupTime).NotTo(BeNil())
		Expect(updated.Status.Backup.NextScheduledBackup).NotTo(BeNil())
		Expect(updated.Status.Backup.ConsecutiveFailures).To(BeZero())
		_, _ = fmt.Fprintf(GinkgoWriter, "Archive %q uploaded (%d bytes)\n",
			updated.Status.Backup.LastBackupName, updated.Status.Backup.LastBackupSize)

		By("verifying the archive Job completed")
		var jobs batchv1.JobList
		Expect(c.List(ctx, &jobs,
			client.InNamespace(f.Namespace),
			client.MatchingLabels{
				constants.LabelGateway:   gatewayName,
				constants.LabelComponent: constants.ComponentBackup,
			})).To(Succeed())
		Expect(jobs.Items).NotTo(BeEmpty(), "at least one archive Job should exist")

		succeeded := false
		for i := range jobs.Items {
			if jobs.Items[i].Status.Succeeded > 0 {
				succeeded = true
				break
			}
		}
		Expect(succeeded).To(BeTrue(), "an archive Job should have succeeded")
	})
})
