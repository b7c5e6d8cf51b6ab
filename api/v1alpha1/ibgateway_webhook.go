package v1alpha1

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"
)

var ibGatewayWebhookLog = ctrl.Log.WithName("ibgateway-webhook")

const (
	specFieldPathRoot = "spec"

	// Default gateway Service ports: the external pair consumers connect to,
	// and the in-container forward targets the gateway process binds.
	defaultTWSPortName   = "tws"
	defaultAPIPortName   = "api"
	defaultTWSPort       = 4001
	defaultAPIPort       = 4002
	defaultTWSTargetPort = 4003
	defaultAPITargetPort = 4004

	defaultTimezone = "America/New_York"

	// minBackupScheduleInterval is the minimum allowed interval between backups.
	minBackupScheduleInterval = 5 * time.Minute
	// warnBackupScheduleInterval is the interval below which we warn about frequent backups.
	warnBackupScheduleInterval = 10 * time.Minute
	// minRestartScheduleInterval guards against schedules that roll the
	// gateway so often no session could complete its login.
	minRestartScheduleInterval = time.Hour
)

// cronParser parses the 5-field cron expressions used for backup and restart schedules.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// credentialEnvNames are projected from the credential Secret by the
// reconciler; declaring them in spec.env would shadow that projection.
var credentialEnvNames = map[string]struct{}{
	"TWS_USERID":   {},
	"TWS_PASSWORD": {},
	"IB_ACCOUNT":   {},
}

// ibGatewayValidator implements admission.CustomValidator for IBGateway.
type ibGatewayValidator struct{}

// Ensure ibGatewayValidator satisfies the CustomValidator interface.
var _ webhook.CustomValidator = &ibGatewayValidator{}

// ibGatewayDefaulter implements admission.CustomDefaulter for IBGateway.
// It injects defaults that cannot be expressed as CRD schema defaults: the
// cleanup finalizer and the standard Service port pair.
type ibGatewayDefaulter struct{}

// Ensure ibGatewayDefaulter satisfies the CustomDefaulter interface.
var _ webhook.CustomDefaulter = &ibGatewayDefaulter{}

// Default sets default values on IBGateway resources during admission.
func (d *ibGatewayDefaulter) Default(_ context.Context, obj runtime.Object) error {
	gw, ok := obj.(*IBGateway)
	if !ok {
		return apierrors.NewBadRequest("expected IBGateway object for defaulting")
	}

	// During deletion, the controller must be able to remove the finalizer.
	// If the defaulter re-adds it on update, the IBGateway will get stuck in
	// a terminating state.
	if gw.DeletionTimestamp != nil && !gw.DeletionTimestamp.IsZero() {
		return nil
	}

	if !containsString(gw.Finalizers, IBGatewayFinalizer) {
		gw.Finalizers = append(gw.Finalizers, IBGatewayFinalizer)
	}

	if gw.Spec.TradingMode == "" {
		gw.Spec.TradingMode = TradingModePaper
	}
	if gw.Spec.Timezone == "" {
		gw.Spec.Timezone = defaultTimezone
	}
	if gw.Spec.Logging == nil {
		gw.Spec.Logging = &LoggingConfig{Level: LogLevelInfo}
	} else if gw.Spec.Logging.Level == "" {
		gw.Spec.Logging.Level = LogLevelInfo
	}

	if gw.Spec.Service == nil {
		gw.Spec.Service = &ServiceConfig{}
	}
	if len(gw.Spec.Service.Ports) == 0 {
		gw.Spec.Service.Ports = []PortSpec{
			{Name: defaultTWSPortName, Port: defaultTWSPort, TargetPort: defaultTWSTargetPort, Protocol: "TCP"},
			{Name: defaultAPIPortName, Port: defaultAPIPort, TargetPort: defaultAPITargetPort, Protocol: "TCP"},
		}
	}

	if gw.Spec.Probes == nil {
		gw.Spec.Probes = &ProbesConfig{}
	}
	if gw.Spec.Probes.Readiness == nil {
		gw.Spec.Probes.Readiness = &ProbeSpec{
			InitialDelaySeconds: 30,
			PeriodSeconds:       10,
			TimeoutSeconds:      5,
			FailureThreshold:    3,
		}
	}
	if gw.Spec.Probes.Liveness == nil {
		gw.Spec.Probes.Liveness = &ProbeSpec{
			InitialDelaySeconds: 120,
			PeriodSeconds:       60,
			TimeoutSeconds:      10,
			FailureThreshold:    5,
		}
	}

	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}

	return false
}

// SetupWebhookWithManager registers the IBGateway webhook with the manager.
func (r *IBGateway) SetupWebhookWithManager(mgr ctrl.Manager) error {
	return ctrl.NewWebhookManagedBy(mgr).
		For(&IBGateway{}).
		WithValidator(&ibGatewayValidator{}).
		WithDefaulter(&ibGatewayDefaulter{}).
		Complete()
}

// +kubebuilder:webhook:path=/mutate-ibgateway-dc-tec-io-v1alpha1-ibgateway,mutating=true,failurePolicy=fail,sideEffects=None,groups=ibgateway.dc-tec.io,resources=ibgateways,verbs=create;update,versions=v1alpha1,name=mibgateway.kb.io,admissionReviewVersions=v1

// +kubebuilder:webhook:path=/validate-ibgateway-dc-tec-io-v1alpha1-ibgateway,mutating=false,failurePolicy=fail,sideEffects=None,groups=ibgateway.dc-tec.io,resources=ibgateways,verbs=create;update,versions=v1alpha1,name=vibgateway.kb.io,admissionReviewVersions=v1

// ValidateCreate validates IBGateway resources on create.
func (v *ibGatewayValidator) ValidateCreate(ctx context.Context, obj runtime.Object) (admission.Warnings, error) {
	gw, ok := obj.(*IBGateway)
	if !ok {
		return nil, apierrors.NewBadRequest("expected IBGateway object for validation")
	}

	ibGatewayWebhookLog.Info("validating create", "name", gw.Name, "namespace", gw.Namespace)

	return validateIBGateway(gw)
}

// ValidateUpdate validates IBGateway resources on update.
func (v *ibGatewayValidator) ValidateUpdate(ctx context.Context, oldObj, newObj runtime.Object) (admission.Warnings, error) {
	gw, ok := newObj.(*IBGateway)
	if !ok {
		return nil, apierrors.NewBadRequest("expected IBGateway object for validation")
	}

	ibGatewayWebhookLog.Info("validating update", "name", gw.Name, "namespace", gw.Namespace)

	return validateIBGateway(gw)
}

// ValidateDelete validates IBGateway resources on delete. We currently do not
// enforce additional delete-time invariants beyond those handled by finalizers.
func (v *ibGatewayValidator) ValidateDelete(ctx context.Context, obj runtime.Object) (admission.Warnings, error) {
	gw, ok := obj.(*IBGateway)
	if !ok {
		return nil, apierrors.NewBadRequest("expected IBGateway object for validation")
	}

	ibGatewayWebhookLog.Info("validating delete", "name", gw.Name, "namespace", gw.Namespace)
	return nil, nil
}

// validateIBGateway runs the cluster-independent subset of desired-state
// validation so malformed documents are rejected at apply time. Checks that
// need the bound credential Secret run in the reconciler instead.
func validateIBGateway(gw *IBGateway) (admission.Warnings, error) {
	var allErrs field.ErrorList
	var warnings admission.Warnings

	envErrs, envWarnings := validateEnvEntries(gw)
	allErrs = append(allErrs, envErrs...)
	warnings = append(warnings, envWarnings...)

	allErrs = append(allErrs, validateServicePorts(gw)...)
	allErrs = append(allErrs, validatePersistence(gw)...)
	allErrs = append(allErrs, validateComponentImages(gw)...)

	ingressErrs, ingressWarnings := validateIngressRules(gw)
	allErrs = append(allErrs, ingressErrs...)
	warnings = append(warnings, ingressWarnings...)

	allErrs = append(allErrs, validateGatewayRoute(gw)...)
	allErrs = append(allErrs, validateRestartSchedule(gw)...)

	backupErrs, backupWarnings := validateBackupSchedule(gw)
	allErrs = append(allErrs, backupErrs...)
	warnings = append(warnings, backupWarnings...)

	allErrs = append(allErrs, validateImageVerification(gw)...)

	if len(allErrs) > 0 {
		return warnings, apierrors.NewInvalid(
			GroupVersion.WithKind("IBGateway").GroupKind(),
			gw.Name,
			allErrs,
		)
	}

	return warnings, nil
}

// validateEnvEntries enforces the literal-or-reference shape of each env
// entry: exactly one of value and valueFrom must be set. There is no
// precedence rule; ambiguous entries are rejected outright.
func validateEnvEntries(gw *IBGateway) (field.ErrorList, admission.Warnings) {
	if len(gw.Spec.Env) == 0 {
		return nil, nil
	}

	path := field.NewPath(specFieldPathRoot, "env")
	var allErrs field.ErrorList
	var warnings admission.Warnings

	seen := make(map[string]int)
	for i, entry := range gw.Spec.Env {
		entryPath := path.Index(i)

		if entry.Name == "" {
			allErrs = append(allErrs, field.Required(entryPath.Child("name"), "env entry name is required"))
		}

		hasValue := entry.Value != nil
		hasRef := entry.ValueFrom != nil
		switch {
		case hasValue && hasRef:
			allErrs = append(allErrs, field.Invalid(entryPath, entry.Name,
				"exactly one of value and valueFrom must be set, not both"))
		case !hasValue && !hasRef:
			allErrs = append(allErrs, field.Invalid(entryPath, entry.Name,
				"exactly one of value and valueFrom must be set"))
		case hasRef:
			if entry.ValueFrom.SecretKeyRef.Name == "" {
				allErrs = append(allErrs, field.Required(
					entryPath.Child("valueFrom", "secretKeyRef", "name"), "secret name is required"))
			}
			if entry.ValueFrom.SecretKeyRef.Key == "" {
				allErrs = append(allErrs, field.Required(
					entryPath.Child("valueFrom", "secretKeyRef", "key"), "secret key is required"))
			}
		}

		if _, reserved := credentialEnvNames[entry.Name]; reserved {
			warnings = append(warnings, fmt.Sprintf(
				"env entry %q shadows a credential projected from spec.credentialsSecretRef", entry.Name))
		}

		if prev, dup := seen[entry.Name]; dup {
			allErrs = append(allErrs, field.Duplicate(entryPath.Child("name"),
				fmt.Sprintf("%s (first declared at index %d)", entry.Name, prev)))
		} else {
			seen[entry.Name] = i
		}
	}

	return allErrs, warnings
}

// validateServicePorts enforces port uniqueness within the gateway workload:
// names, external ports, and container target ports must not collide, and an
// enabled VNC port must not overlap the declared target ports.
func validateServicePorts(gw *IBGateway) field.ErrorList {
	if gw.Spec.Service == nil || len(gw.Spec.Service.Ports) == 0 {
		return nil
	}

	path := field.NewPath(specFieldPathRoot, "service", "ports")
	var allErrs field.ErrorList

	seenNames := make(map[string]int)
	seenPorts := make(map[int32]int)
	seenTargets := make(map[int32]int)

	for i, p := range gw.Spec.Service.Ports {
		portPath := path.Index(i)

		if prev, dup := seenNames[p.Name]; dup {
			allErrs = append(allErrs, field.Duplicate(portPath.Child("name"),
				fmt.Sprintf("%s (first declared at index %d)", p.Name, prev)))
		} else {
			seenNames[p.Name] = i
		}
		if prev, dup := seenPorts[p.Port]; dup {
			allErrs = append(allErrs, field.Duplicate(portPath.Child("port"),
				fmt.Sprintf("%d (first declared at index %d)", p.Port, prev)))
		} else {
			seenPorts[p.Port] = i
		}
		if prev, dup := seenTargets[p.TargetPort]; dup {
			allErrs = append(allErrs, field.Duplicate(portPath.Child("targetPort"),
				fmt.Sprintf("%d (first declared at index %d)", p.TargetPort, prev)))
		} else {
			seenTargets[p.TargetPort] = i
		}
	}

	if gw.Spec.VNC != nil && gw.Spec.VNC.Enabled && gw.Spec.VNC.Port != 0 {
		if _, collides := seenTargets[gw.Spec.VNC.Port]; collides {
			allErrs = append(allErrs, field.Invalid(
				field.NewPath(specFieldPathRoot, "vnc", "port"), gw.Spec.VNC.Port,
				"collides with a declared service targetPort"))
		}
	}

	return allErrs
}

// validatePersistence requires an explicit size when the settings volume is
// enabled. The storage class stays optional: a platform default class may
// satisfy the claim.
func validatePersistence(gw *IBGateway) field.ErrorList {
	p := gw.Spec.Persistence
	if p == nil || !p.Enabled {
		return nil
	}

	var allErrs field.ErrorList
	if p.Size == "" {
		allErrs = append(allErrs, field.Required(
			field.NewPath(specFieldPathRoot, "persistence", "size"),
			"size is required when persistence is enabled"))
	}

	return allErrs
}

// validateComponentImages rejects enabled components whose image reference is
// incomplete. A disabled component may omit its image entirely.
func validateComponentImages(gw *IBGateway) field.ErrorList {
	var allErrs field.ErrorList

	check := func(path *field.Path, image *ImageSpec) {
		if image == nil {
			allErrs = append(allErrs, field.Required(path.Child("image"),
				"image is required when the component is enabled"))
			return
		}
		if image.Repository == "" {
			allErrs = append(allErrs, field.Required(path.Child("image", "repository"), "repository is required"))
		}
		if image.Tag == "" {
			allErrs = append(allErrs, field.Required(path.Child("image", "tag"), "tag is required"))
		}
	}

	if gw.Spec.NoVNC != nil && gw.Spec.NoVNC.Enabled {
		check(field.NewPath(specFieldPathRoot, "novnc"), gw.Spec.NoVNC.Image)
	}
	if gw.Spec.PythonService != nil && gw.Spec.PythonService.Enabled {
		check(field.NewPath(specFieldPathRoot, "pythonService"), gw.Spec.PythonService.Image)
	}

	return allErrs
}

// validateIngressRules checks the declared routing rules. A rule naming an
// unknown backend service is not an error: it is projected as declared and is
// inert at runtime, so we only warn.
func validateIngressRules(gw *IBGateway) (field.ErrorList, admission.Warnings) {
	ingress := gw.Spec.Ingress
	if ingress == nil || !ingress.Enabled {
		return nil, nil
	}

	path := field.NewPath(specFieldPathRoot, "ingress")
	var allErrs field.ErrorList
	var warnings admission.Warnings

	if ingress.Host == "" {
		allErrs = append(allErrs, field.Required(path.Child("host"), "host is required when ingress is enabled"))
	}

	for i, rule := range ingress.Paths {
		rulePath := path.Child("paths").Index(i)
		if rule.Path == "" {
			allErrs = append(allErrs, field.Required(rulePath.Child("path"), "path is required"))
		}
		switch rule.Service {
		case "", "novnc", "python":
		default:
			warnings = append(warnings, fmt.Sprintf(
				"ingress path %q routes to unknown service %q; the rule will be inert until a matching service exists",
				rule.Path, rule.Service))
		}
	}

	return allErrs, warnings
}

// validateGatewayRoute checks the Gateway API route configuration.
func validateGatewayRoute(gw *IBGateway) field.ErrorList {
	route := gw.Spec.GatewayRoute
	if route == nil || !route.Enabled {
		return nil
	}

	path := field.NewPath(specFieldPathRoot, "gatewayRoute")
	var allErrs field.ErrorList

	if route.GatewayRef.Name == "" {
		allErrs = append(allErrs, field.Required(path.Child("gatewayRef", "name"),
			"gateway reference name is required"))
	}
	if route.Hostname == "" {
		allErrs = append(allErrs, field.Required(path.Child("hostname"),
			"hostname is required when gatewayRoute is enabled"))
	}

	return allErrs
}

// validateRestartSchedule checks the restart cron expression and rejects
// intervals short enough to prevent a session from ever finishing login.
func validateRestartSchedule(gw *IBGateway) field.ErrorList {
	restart := gw.Spec.Restart
	if restart == nil {
		return nil
	}

	schedulePath := field.NewPath(specFieldPathRoot, "restart", "schedule")
	var allErrs field.ErrorList

	if restart.Schedule == "" {
		allErrs = append(allErrs, field.Required(schedulePath, "restart schedule is required"))
		return allErrs
	}

	schedule, err := cronParser.Parse(restart.Schedule)
	if err != nil {
		allErrs = append(allErrs, field.Invalid(schedulePath, restart.Schedule,
			fmt.Sprintf("invalid cron expression: %v", err)))
		return allErrs
	}

	now := time.Now().UTC()
	next := schedule.Next(now)
	interval := schedule.Next(next).Sub(next)
	if interval < minRestartScheduleInterval {
		allErrs = append(allErrs, field.Invalid(schedulePath, restart.Schedule,
			fmt.Sprintf("restart schedule interval %v is less than minimum allowed %v", interval, minRestartScheduleInterval)))
	}

	return allErrs
}

// validateBackupSchedule checks the backup cron expression and target.
func validateBackupSchedule(gw *IBGateway) (field.ErrorList, admission.Warnings) {
	backup := gw.Spec.Backup
	if backup == nil {
		return nil, nil
	}

	path := field.NewPath(specFieldPathRoot, "backup")
	var allErrs field.ErrorList
	var warnings admission.Warnings

	schedulePath := path.Child("schedule")
	if backup.Schedule == "" {
		allErrs = append(allErrs, field.Required(schedulePath, "backup schedule is required"))
	} else {
		schedule, err := cronParser.Parse(backup.Schedule)
		if err != nil {
			allErrs = append(allErrs, field.Invalid(schedulePath, backup.Schedule,
				fmt.Sprintf("invalid cron expression: %v", err)))
		} else {
			now := time.Now().UTC()
			next := schedule.Next(now)
			interval := schedule.Next(next).Sub(next)

			if interval < minBackupScheduleInterval {
				allErrs = append(allErrs, field.Invalid(schedulePath, backup.Schedule,
					fmt.Sprintf("backup schedule interval %v is less than minimum allowed %v", interval, minBackupScheduleInterval)))
			} else if interval < warnBackupScheduleInterval {
				warnings = append(warnings, fmt.Sprintf(
					"backup schedule interval %v is less than recommended %v; frequent backups may disturb the gateway session",
					interval, warnBackupScheduleInterval))
			}
		}
	}

	targetPath := path.Child("target")
	if backup.Target.Endpoint == "" {
		allErrs = append(allErrs, field.Required(targetPath.Child("endpoint"), "backup target endpoint is required"))
	}
	if backup.Target.Bucket == "" {
		allErrs = append(allErrs, field.Required(targetPath.Child("bucket"), "backup target bucket is required"))
	}

	if backup.Retention != nil && backup.Retention.MaxCount < 0 {
		allErrs = append(allErrs, field.Invalid(path.Child("retention", "maxCount"),
			backup.Retention.MaxCount, "maxCount must be non-negative"))
	}

	// Backups snapshot the settings volume. Without persistence there is
	// nothing durable to snapshot, so the reconciler holds backups in a
	// blocked state rather than failing the gateway.
	if gw.Spec.Persistence == nil || !gw.Spec.Persistence.Enabled {
		warnings = append(warnings,
			"backup is configured but persistence is disabled; backups stay blocked until spec.persistence.enabled is true")
	}

	return allErrs, warnings
}

// validateImageVerification requires a complete keyless identity when no
// static public key is configured.
func validateImageVerification(gw *IBGateway) field.ErrorList {
	iv := gw.Spec.ImageVerification
	if iv == nil || !iv.Enabled {
		return nil
	}

	path := field.NewPath(specFieldPathRoot, "imageVerification")
	var allErrs field.ErrorList

	if iv.PublicKey == "" {
		if iv.Issuer == "" {
			allErrs = append(allErrs, field.Required(path.Child("issuer"),
				"issuer is required for keyless verification when publicKey is not set"))
		}
		if iv.Subject == "" {
			allErrs = append(allErrs, field.Required(path.Child("subject"),
				"subject is required for keyless verification when publicKey is not set"))
		}
	}

	return allErrs
}
