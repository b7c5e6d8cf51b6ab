package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/dc-tec/ibgateway-operator/internal/constants"
	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
)

const (
	// settingsFileMode is the file mode for materialized settings files. The
	// gateway process rewrites jts.ini and config.ini at runtime, and the
	// settings volume is shared through the pod's fsGroup, so the group needs
	// write access too.
	settingsFileMode = 0o664

	// settingsDirMode is the mode for directories created under the settings
	// mount.
	settingsDirMode = 0o750

	// podIPWaitTimeout bounds how long the materializer waits for the pod to
	// receive an address. POD_IP comes from the downward API and may lag the
	// init container by a moment.
	podIPWaitTimeout = 5 * time.Second
)

// materializeSettings copies the rendered configuration templates from the
// read-only ConfigMap mount into the writable settings mount, expanding
// runtime placeholders. jts.ini lands at the settings root; config.ini lands
// in the automation subdirectory. Existing files are overwritten: after a pod
// restart the templates are the source of truth, and runtime edits by the
// gateway process are deliberately clobbered.
func materializeSettings(templatesDir, settingsDir, hostname, podIP string) error {
	if strings.TrimSpace(templatesDir) == "" {
		return fmt.Errorf("templates directory is required")
	}
	if strings.TrimSpace(settingsDir) == "" {
		return fmt.Errorf("settings directory is required")
	}
	if strings.TrimSpace(hostname) == "" {
		return fmt.Errorf("HOSTNAME environment variable is required (must be set from pod metadata.name)")
	}
	if strings.TrimSpace(podIP) == "" {
		return fmt.Errorf("POD_IP environment variable is required (must be set from pod status.podIP)")
	}

	cleanTemplates, err := cleanPath(templatesDir)
	if err != nil {
		return err
	}
	cleanSettings, err := cleanPath(settingsDir)
	if err != nil {
		return err
	}

	files := []struct {
		source string
		target string
	}{
		{
			source: filepath.Join(cleanTemplates, constants.FileGatewaySettings),
			target: filepath.Join(cleanSettings, constants.FileGatewaySettings),
		},
		{
			source: filepath.Join(cleanTemplates, constants.FileAutomationSettings),
			target: filepath.Join(cleanSettings, constants.DirAutomation, constants.FileAutomationSettings),
		},
	}

	for _, f := range files {
		if err := materializeFile(f.source, f.target, hostname, podIP); err != nil {
			return err
		}
	}

	return nil
}

// materializeFile reads one template, expands its placeholders, verifies the
// result, and writes it to the target path.
func materializeFile(sourcePath, targetPath, hostname, podIP string) error {
	content, err := os.ReadFile(sourcePath) // #nosec G304 -- Path is validated and cleaned to prevent traversal
	if err != nil {
		return fmt.Errorf("failed to read template file %q: %w", sourcePath, err)
	}

	rendered := expandPlaceholders(string(content), hostname, podIP)

	// Every placeholder must resolve before the file lands: an unresolved
	// reference would reach the gateway process verbatim and silently
	// misconfigure the session.
	if idx := strings.Index(rendered, "${"); idx != -1 {
		end := strings.Index(rendered[idx:], "}")
		placeholder := rendered[idx:]
		if end != -1 {
			placeholder = rendered[idx : idx+end+1]
		}
		return fmt.Errorf("template %q contains unresolved placeholder %q", filepath.Base(sourcePath), placeholder)
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, settingsDirMode); err != nil {
		return fmt.Errorf("failed to create settings directory %q: %w", dir, err)
	}

	if err := os.WriteFile(targetPath, []byte(rendered), settingsFileMode); err != nil {
		return fmt.Errorf("failed to write settings file %q: %w", targetPath, err)
	}

	// WriteFile honors the umask; chmod so the mode is exact regardless.
	if err := os.Chmod(targetPath, settingsFileMode); err != nil {
		return fmt.Errorf("failed to set permissions on settings file %q: %w", targetPath, err)
	}

	return nil
}

// expandPlaceholders substitutes the runtime references the controller cannot
// resolve at render time: the pod's name and address.
func expandPlaceholders(content, hostname, podIP string) string {
	content = strings.ReplaceAll(content, "${HOSTNAME}", hostname)
	content = strings.ReplaceAll(content, "${POD_IP}", podIP)
	return content
}

// resolvePodIP returns the pod address from the environment, polling until
// the downward API has populated it or the timeout fires.
func resolvePodIP(ctx context.Context, timeout time.Duration) (string, error) {
	podIP := strings.TrimSpace(os.Getenv(constants.EnvPodIP))
	if podIP != "" {
		return podIP, nil
	}

	pollFn := func(ctx context.Context) (bool, error) {
		podIP = strings.TrimSpace(os.Getenv(constants.EnvPodIP))
		return podIP != "", nil
	}
	err := wait.PollUntilContextTimeout(ctx, 500*time.Millisecond, timeout, true, pollFn)
	if podIP == "" {
		if err != nil {
			return "", fmt.Errorf(
				"POD_IP environment variable is required but not available after waiting (must be set from pod status.podIP): %w",
				err)
		}
		return "", fmt.Errorf(
			"POD_IP environment variable is required but not available after waiting (must be set from pod status.podIP)")
	}
	return podIP, nil
}

// copyProbe stages the probe helper into the shared utils volume so the
// gateway container can exec it. This eliminates the need for shell commands
// in the init container, allowing it to use a distroless/static image (no shell).
func copyProbe(sourcePath string) error {
	return copyBinary(sourcePath, constants.PathProbeBinary)
}

func copyBinary(sourcePath string, destPath string) error {
	const fileMode = 0o755

	cleanSourcePath, err := cleanPath(sourcePath)
	if err != nil {
		return err
	}
	cleanDestPath, err := cleanPath(destPath)
	if err != nil {
		return err
	}

	destDir := filepath.Dir(cleanDestPath)
	if err := os.MkdirAll(destDir, settingsDirMode); err != nil {
		return fmt.Errorf("failed to create destination directory %q: %w", destDir, err)
	}

	sourceFile, err := os.Open(cleanSourcePath) // #nosec G304 -- Path is validated and cleaned to prevent traversal
	if err != nil {
		return fmt.Errorf("failed to open source file %q: %w", cleanSourcePath, err)
	}
	defer func() { _ = sourceFile.Close() }()

	// #nosec G304 -- Path is validated and cleaned to prevent traversal
	destFile, err := os.OpenFile(cleanDestPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", cleanDestPath, err)
	}
	defer func() { _ = destFile.Close() }()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := os.Chmod(cleanDestPath, fileMode); err != nil {
		return fmt.Errorf("failed to set executable permissions on file %q: %w", cleanDestPath, err)
	}

	return nil
}

// cleanPath normalizes a flag-provided path and rejects traversal.
func cleanPath(path string) (string, error) {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path %q contains path traversal", path)
	}
	return clean, nil
}

func run(ctx context.Context, templatesDir, settingsDir, probeSource string) error {
	// Stage the probe binary first: probes must be in place before the
	// gateway container starts, and the copy does not depend on POD_IP.
	if probeSource != "" {
		if err := copyProbe(probeSource); err != nil {
			return fmt.Errorf("failed to copy probe: %w", err)
		}
	}

	podIP, err := resolvePodIP(ctx, podIPWaitTimeout)
	if err != nil {
		return err
	}

	return materializeSettings(templatesDir, settingsDir, os.Getenv(constants.EnvHostname), podIP)
}

func main() {
	templatesDir := flag.String("templates", constants.PathTemplates, "path to the directory holding the configuration templates")
	settingsDir := flag.String("settings", constants.PathSettings, "path to the writable settings directory")
	probeSource := flag.String("copy-probe", "", "optional path to the probe binary to copy into the shared utils volume")
	flag.Parse()

	if err := run(context.Background(), *templatesDir, *settingsDir, *probeSource); err != nil {
		err = operatorerrors.WrapMaterialization(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s error: %v\n", constants.BinaryNameConfigInit, err)
		os.Exit(1)
	}
}
