package v1alpha1

import (
	"context"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

func validGateway() *IBGateway {
	return &IBGateway{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "trader",
			Namespace: "default",
		},
		Spec: IBGatewaySpec{
			Image:                ImageSpec{Repository: "ghcr.io/gnzsnz/ib-gateway", Tag: "10.30.1t"},
			TradingMode:          TradingModePaper,
			CredentialsSecretRef: corev1.LocalObjectReference{Name: "trader-credentials"},
		},
	}
}

func TestIBGatewayDefaulterAddsFinalizer(t *testing.T) {
	defaulter := &ibGatewayDefaulter{}
	ctx := context.Background()

	gw := validGateway()
	if err := defaulter.Default(ctx, gw); err != nil {
		t.Fatalf("Default() error = %v, want no error", err)
	}

	found := false
	for _, f := range gw.Finalizers {
		if f == IBGatewayFinalizer {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("Default() did not add expected finalizer %q, got %v", IBGatewayFinalizer, gw.Finalizers)
	}
}

func TestIBGatewayDefaulterDoesNotAddFinalizerDuringDeletion(t *testing.T) {
	defaulter := &ibGatewayDefaulter{}
	ctx := context.Background()

	now := metav1.Now()
	gw := validGateway()
	gw.DeletionTimestamp = &now

	if err := defaulter.Default(ctx, gw); err != nil {
		t.Fatalf("Default() error = %v, want no error", err)
	}

	for _, f := range gw.Finalizers {
		if f == IBGatewayFinalizer {
			t.Fatalf("Default() unexpectedly added finalizer %q during deletion", IBGatewayFinalizer)
		}
	}
}

func TestIBGatewayDefaulterFillsStandardPorts(t *testing.T) {
	defaulter := &ibGatewayDefaulter{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.TradingMode = ""
	gw.Spec.Timezone = ""

	if err := defaulter.Default(ctx, gw); err != nil {
		t.Fatalf("Default() error = %v, want no error", err)
	}

	if gw.Spec.TradingMode != TradingModePaper {
		t.Errorf("TradingMode = %q, want %q", gw.Spec.TradingMode, TradingModePaper)
	}
	if gw.Spec.Timezone != defaultTimezone {
		t.Errorf("Timezone = %q, want %q", gw.Spec.Timezone, defaultTimezone)
	}

	if gw.Spec.Service == nil || len(gw.Spec.Service.Ports) != 2 {
		t.Fatalf("Service.Ports = %+v, want the standard pair", gw.Spec.Service)
	}

	tws := gw.Spec.Service.Ports[0]
	if tws.Name != "tws" || tws.Port != 4001 || tws.TargetPort != 4003 {
		t.Errorf("tws port = %+v, want tws 4001->4003", tws)
	}
	api := gw.Spec.Service.Ports[1]
	if api.Name != "api" || api.Port != 4002 || api.TargetPort != 4004 {
		t.Errorf("api port = %+v, want api 4002->4004", api)
	}
}

func TestIBGatewayDefaulterKeepsDeclaredPorts(t *testing.T) {
	defaulter := &ibGatewayDefaulter{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Service = &ServiceConfig{
		Ports: []PortSpec{{Name: "api", Port: 14002, TargetPort: 4004, Protocol: "TCP"}},
	}

	if err := defaulter.Default(ctx, gw); err != nil {
		t.Fatalf("Default() error = %v, want no error", err)
	}

	if len(gw.Spec.Service.Ports) != 1 || gw.Spec.Service.Ports[0].Port != 14002 {
		t.Fatalf("Default() rewrote declared ports: %+v", gw.Spec.Service.Ports)
	}
}

func TestValidateEnvEntriesRejectsBothValueAndRef(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Env = []EnvEntry{
		{
			Name:  "JAVA_HEAP_SIZE",
			Value: ptr.To("1024"),
			ValueFrom: &EnvValueSource{
				SecretKeyRef: SecretKeySelector{Name: "extra", Key: "heap"},
			},
		},
	}

	_, err := validator.ValidateCreate(ctx, gw)
	if err == nil {
		t.Fatal("ValidateCreate() accepted an env entry with both value and valueFrom")
	}
	if !strings.Contains(err.Error(), "not both") {
		t.Errorf("error %q does not explain the both-set rejection", err)
	}
}

func TestValidateEnvEntriesRejectsNeitherValueNorRef(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Env = []EnvEntry{{Name: "JAVA_HEAP_SIZE"}}

	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted an env entry with neither value nor valueFrom")
	}
}

func TestValidateEnvEntriesWarnsOnCredentialShadowing(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Env = []EnvEntry{{Name: "TWS_USERID", Value: ptr.To("someone")}}

	warnings, err := validator.ValidateCreate(ctx, gw)
	if err != nil {
		t.Fatalf("ValidateCreate() error = %v, want warning only", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "TWS_USERID") {
		t.Errorf("warnings = %v, want one credential-shadowing warning", warnings)
	}
}

func TestValidateServicePortsRejectsDuplicateNames(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Service = &ServiceConfig{
		Ports: []PortSpec{
			{Name: "api", Port: 4001, TargetPort: 4003},
			{Name: "api", Port: 4002, TargetPort: 4004},
		},
	}

	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted duplicate port names within one workload")
	}
}

func TestValidateServicePortsRejectsVNCTargetCollision(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Service = &ServiceConfig{
		Ports: []PortSpec{{Name: "tws", Port: 4001, TargetPort: 5900}},
	}
	gw.Spec.VNC = &VNCConfig{Enabled: true, Port: 5900}

	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted a VNC port colliding with a declared targetPort")
	}
}

func TestValidatePersistenceRequiresSize(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Persistence = &PersistenceConfig{Enabled: true}

	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted enabled persistence without a size")
	}

	// Storage class stays optional: the platform default class may serve.
	gw.Spec.Persistence = &PersistenceConfig{Enabled: true, Size: "1Gi"}
	if _, err := validator.ValidateCreate(ctx, gw); err != nil {
		t.Fatalf("ValidateCreate() error = %v, want persistence without storageClassName accepted", err)
	}
}

func TestValidateComponentImagesRejectsEnabledWithoutImage(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(gw *IBGateway)
	}{
		{
			name: "novnc enabled without image",
			mutate: func(gw *IBGateway) {
				gw.Spec.NoVNC = &NoVNCConfig{Enabled: true}
			},
		},
		{
			name: "novnc enabled with empty repository",
			mutate: func(gw *IBGateway) {
				gw.Spec.NoVNC = &NoVNCConfig{Enabled: true, Image: &ImageSpec{Tag: "latest"}}
			},
		},
		{
			name: "python enabled without image",
			mutate: func(gw *IBGateway) {
				gw.Spec.PythonService = &PythonServiceConfig{Enabled: true}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := validGateway()
			tt.mutate(gw)
			if _, err := validator.ValidateCreate(ctx, gw); err == nil {
				t.Fatal("ValidateCreate() accepted an enabled component with an incomplete image")
			}
		})
	}
}

func TestValidateComponentImagesAllowsDisabledWithoutImage(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.NoVNC = &NoVNCConfig{Enabled: false}
	gw.Spec.PythonService = &PythonServiceConfig{Enabled: false}

	if _, err := validator.ValidateCreate(ctx, gw); err != nil {
		t.Fatalf("ValidateCreate() error = %v, want disabled components accepted without images", err)
	}
}

func TestValidateIngressWarnsOnUnknownService(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Ingress = &IngressConfig{
		Enabled: true,
		Host:    "gw.example.com",
		Paths: []IngressPath{
			{Path: "/vnc", Service: "novnc", Port: 6080},
			{Path: "/grafana", Service: "grafana", Port: 3000},
		},
	}

	warnings, err := validator.ValidateCreate(ctx, gw)
	if err != nil {
		t.Fatalf("ValidateCreate() error = %v, want unknown backend to be a warning", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "grafana") {
		t.Errorf("warnings = %v, want one inert-rule warning naming grafana", warnings)
	}
}

func TestValidateRestartScheduleRejectsBadCron(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Restart = &RestartSchedule{Schedule: "not a cron"}

	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted an unparseable restart schedule")
	}

	gw.Spec.Restart = &RestartSchedule{Schedule: "* * * * *"}
	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted a restart schedule firing every minute")
	}

	gw.Spec.Restart = &RestartSchedule{Schedule: "0 2 * * *"}
	if _, err := validator.ValidateCreate(ctx, gw); err != nil {
		t.Fatalf("ValidateCreate() error = %v, want daily restart accepted", err)
	}
}

func TestValidateBackupScheduleRequiresTarget(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Backup = &BackupSchedule{Schedule: "0 3 * * *"}

	_, err := validator.ValidateCreate(ctx, gw)
	if err == nil {
		t.Fatal("ValidateCreate() accepted a backup schedule without endpoint and bucket")
	}
	if !strings.Contains(err.Error(), "endpoint") || !strings.Contains(err.Error(), "bucket") {
		t.Errorf("error %q does not name the missing target fields", err)
	}
}

func TestValidateBackupWarnsWithoutPersistence(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.Backup = &BackupSchedule{
		Schedule: "0 3 * * *",
		Target: BackupTarget{
			Endpoint: "https://minio.storage.svc:9000",
			Bucket:   "ibgw-backups",
		},
	}

	warnings, err := validator.ValidateCreate(ctx, gw)
	if err != nil {
		t.Fatalf("ValidateCreate() error = %v, want backup without persistence accepted", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "persistence") {
		t.Errorf("warnings = %v, want one blocked-backup warning naming persistence", warnings)
	}

	gw.Spec.Persistence = &PersistenceConfig{Enabled: true, Size: "1Gi"}
	warnings, err = validator.ValidateCreate(ctx, gw)
	if err != nil {
		t.Fatalf("ValidateCreate() error = %v, want backup with persistence accepted", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none once persistence is enabled", warnings)
	}
}

func TestValidateImageVerificationKeylessNeedsIdentity(t *testing.T) {
	validator := &ibGatewayValidator{}
	ctx := context.Background()

	gw := validGateway()
	gw.Spec.ImageVerification = &ImageVerificationConfig{Enabled: true}

	if _, err := validator.ValidateCreate(ctx, gw); err == nil {
		t.Fatal("ValidateCreate() accepted keyless verification without issuer and subject")
	}

	gw.Spec.ImageVerification = &ImageVerificationConfig{
		Enabled: true,
		Issuer:  "https://token.actions.githubusercontent.com",
		Subject: "https://github.com/example/build.yml@refs/tags/v1",
	}
	if _, err := validator.ValidateCreate(ctx, gw); err != nil {
		t.Fatalf("ValidateCreate() error = %v, want complete keyless identity accepted", err)
	}
}
