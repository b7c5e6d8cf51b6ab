package v1alpha1

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestTradingModeConstants(t *testing.T) {
	t.Parallel()

	if TradingModePaper != TradingMode("paper") {
		t.Fatalf("TradingModePaper=%q", TradingModePaper)
	}
	if TradingModeLive != TradingMode("live") {
		t.Fatalf("TradingModeLive=%q", TradingModeLive)
	}
}

func TestImageSpecReference(t *testing.T) {
	t.Parallel()

	img := ImageSpec{Repository: "ghcr.io/gnzsnz/ib-gateway", Tag: "10.30.1t"}
	if got := img.Reference(); got != "ghcr.io/gnzsnz/ib-gateway:10.30.1t" {
		t.Fatalf("Reference()=%q", got)
	}
}

func TestBackupStatusFields(t *testing.T) {
	t.Parallel()

	status := &BackupStatus{
		LastBackupName:      "archives/default/trader/2026-01-02T03-04-05Z-a1b2c3d4.tar.gz",
		LastBackupSize:      1 << 20,
		ConsecutiveFailures: 2,
		LastFailureReason:   "upload timed out",
	}

	if status.LastBackupSize != 1<<20 {
		t.Fatalf("LastBackupSize=%d", status.LastBackupSize)
	}
	if status.ConsecutiveFailures != 2 {
		t.Fatalf("ConsecutiveFailures=%d", status.ConsecutiveFailures)
	}

	now := metav1.Now()
	status.NextScheduledBackup = &now
	if status.NextScheduledBackup == nil {
		t.Fatalf("NextScheduledBackup=nil")
	}
}

func TestDeepCopyIsIndependent(t *testing.T) {
	t.Parallel()

	value := "gw"
	gw := &IBGateway{
		Spec: IBGatewaySpec{
			Env: []EnvEntry{{Name: "EXTRA", Value: &value}},
			NoVNC: &NoVNCConfig{
				Enabled: true,
				Image:   &ImageSpec{Repository: "novnc/novnc", Tag: "v2"},
			},
		},
	}

	clone := gw.DeepCopy()
	*clone.Spec.Env[0].Value = "changed"
	clone.Spec.NoVNC.Image.Tag = "v3"

	if *gw.Spec.Env[0].Value != "gw" {
		t.Fatalf("env literal shared between copies: %q", *gw.Spec.Env[0].Value)
	}
	if gw.Spec.NoVNC.Image.Tag != "v2" {
		t.Fatalf("novnc image shared between copies: %q", gw.Spec.NoVNC.Image.Tag)
	}
}
