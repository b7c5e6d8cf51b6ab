package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/dc-tec/ibgateway-operator/internal/backup"
	"github.com/dc-tec/ibgateway-operator/internal/constants"
	"github.com/dc-tec/ibgateway-operator/internal/storage"
)

const (
	// Exit codes
	exitSuccess           = 0
	exitConfigError       = 1
	exitArchiveError      = 2
	exitStorageError      = 3
	exitVerificationError = 4

	// defaultRegion satisfies S3-compatible stores that require some region
	// value. Matches the CRD default for spec.backup.target.region.
	defaultRegion = "us-east-1"

	// terminationLogPath is where the result summary lands. The kubelet
	// surfaces it in the pod's container status, which is how the controller
	// reads the outcome back without object storage access.
	terminationLogPath = "/dev/termination-log"
)

// executorConfig is the archive run's configuration, passed by the
// controller through the Job environment.
type executorConfig struct {
	Namespace   string
	Gateway     string
	SettingsDir string
	ObjectKey   string

	Endpoint     string
	Bucket       string
	PathPrefix   string
	Region       string
	UsePathStyle bool
	PartSize     int64
	Concurrency  int

	CredentialsPath   string
	RetentionMaxCount int32
}

// loadExecutorConfig reads the Job environment. Missing required variables
// are reported together by name.
func loadExecutorConfig() (*executorConfig, error) {
	cfg := &executorConfig{
		Namespace:       os.Getenv(constants.EnvGatewayNamespace),
		Gateway:         os.Getenv(constants.EnvGatewayName),
		SettingsDir:     os.Getenv(constants.EnvSettingsDir),
		ObjectKey:       os.Getenv(constants.EnvBackupObjectKey),
		Endpoint:        os.Getenv(constants.EnvBackupEndpoint),
		Bucket:          os.Getenv(constants.EnvBackupBucket),
		PathPrefix:      os.Getenv(constants.EnvBackupPathPrefix),
		Region:          os.Getenv(constants.EnvBackupRegion),
		CredentialsPath: os.Getenv(constants.EnvBackupCredentialsPath),
	}

	var missing []string
	for _, required := range []struct {
		name  string
		value string
	}{
		{constants.EnvGatewayNamespace, cfg.Namespace},
		{constants.EnvGatewayName, cfg.Gateway},
		{constants.EnvSettingsDir, cfg.SettingsDir},
		{constants.EnvBackupObjectKey, cfg.ObjectKey},
		{constants.EnvBackupEndpoint, cfg.Endpoint},
		{constants.EnvBackupBucket, cfg.Bucket},
	} {
		if strings.TrimSpace(required.value) == "" {
			missing = append(missing, required.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	if raw := os.Getenv(constants.EnvBackupUsePathStyle); raw != "" {
		usePathStyle, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", constants.EnvBackupUsePathStyle, raw, err)
		}
		cfg.UsePathStyle = usePathStyle
	}
	if raw := os.Getenv(constants.EnvBackupPartSize); raw != "" {
		partSize, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", constants.EnvBackupPartSize, raw, err)
		}
		cfg.PartSize = partSize
	}
	if raw := os.Getenv(constants.EnvBackupConcurrency); raw != "" {
		concurrency, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", constants.EnvBackupConcurrency, raw, err)
		}
		cfg.Concurrency = concurrency
	}
	if raw := os.Getenv(constants.EnvBackupRetentionMaxCount); raw != "" {
		maxCount, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", constants.EnvBackupRetentionMaxCount, raw, err)
		}
		cfg.RetentionMaxCount = int32(maxCount)
	}

	return cfg, nil
}

// archiveSettings streams the settings directory as a gzipped tar to w.
// Directories and regular files are included; sockets, pipes, and symlinks
// are skipped because the gateway process leaves lock artifacts behind
// that have no place in an archive.
func archiveSettings(dir string, w io.Writer) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to read settings directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("settings path %q is not a directory", dir)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		switch {
		case entry.IsDir():
			info, err := entry.Info()
			if err != nil {
				return err
			}
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(rel) + "/"
			return tw.WriteHeader(header)

		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return err
			}
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(rel)
			if err := tw.WriteHeader(header); err != nil {
				return err
			}

			file, err := os.Open(path) // #nosec G304 -- Path comes from walking the operator-controlled settings mount
			if err != nil {
				return err
			}
			if _, err := io.Copy(tw, file); err != nil {
				_ = file.Close()
				return err
			}
			return file.Close()

		default:
			return nil
		}
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = gz.Close()
		return fmt.Errorf("failed to pack settings directory %q: %w", dir, walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// writeResult reports the archive outcome through the termination log so the
// controller can fold it into the gateway status.
func writeResult(path string, result backup.BackupResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write result to %q: %w", path, err)
	}
	return nil
}

func run(ctx context.Context) error {
	logger := zap.New()

	cfg, err := loadExecutorConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	creds, err := storage.LoadCredentialsFromDir(cfg.CredentialsPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	storageCfg := storage.S3ClientConfig{
		Endpoint:     cfg.Endpoint,
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		PartSize:     cfg.PartSize,
		Concurrency:  cfg.Concurrency,
	}
	creds.Apply(&storageCfg)

	store, err := storage.NewStore(ctx, storageCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Stream the archive straight into the uploader; the settings directory
	// never needs to fit on the executor's filesystem.
	pr, pw := io.Pipe()
	archiveErrCh := make(chan error, 1)
	go func() {
		archiveErr := archiveSettings(cfg.SettingsDir, pw)
		_ = pw.CloseWithError(archiveErr)
		archiveErrCh <- archiveErr
	}()

	if err := store.Upload(ctx, cfg.ObjectKey, pr); err != nil {
		_ = pr.Close()
		// A packing failure surfaces through the pipe as an upload error;
		// report the root cause instead.
		if archiveErr := <-archiveErrCh; archiveErr != nil {
			return fmt.Errorf("failed to archive settings: %w", archiveErr)
		}
		return fmt.Errorf("failed to upload archive: %w", err)
	}
	if err := <-archiveErrCh; err != nil {
		return fmt.Errorf("failed to archive settings: %w", err)
	}

	objInfo, err := store.Head(ctx, cfg.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to verify archive upload: %w", err)
	}
	if objInfo == nil {
		return fmt.Errorf("failed to verify archive upload: object %q not found after upload", cfg.ObjectKey)
	}
	if objInfo.Size == 0 {
		return fmt.Errorf("failed to verify archive upload: uploaded object has zero size")
	}

	// Retention is best effort: the archive that was just verified is safe
	// either way, and the next run prunes again.
	if cfg.RetentionMaxCount > 0 {
		prefix := backup.GetBackupListPrefix(cfg.PathPrefix, cfg.Namespace, cfg.Gateway)
		if _, retErr := backup.ApplyRetention(ctx, logger, store, prefix, cfg.RetentionMaxCount); retErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%s warning: retention pass failed: %v\n", constants.BinaryNameBackup, retErr)
		}
	}

	result := backup.BackupResult{Key: cfg.ObjectKey, Size: objInfo.Size}
	if err := writeResult(terminationLogPath, result); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s warning: %v\n", constants.BinaryNameBackup, err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Archive completed successfully: %s (size: %d bytes)\n", cfg.ObjectKey, objInfo.Size)
	return nil
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s error: %v\n", constants.BinaryNameBackup, err)
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "failed to load configuration"):
			os.Exit(exitConfigError)
		case strings.Contains(errStr, "failed to archive settings"):
			os.Exit(exitArchiveError)
		case strings.Contains(errStr, "failed to upload archive") || strings.Contains(errStr, "failed to create storage client"):
			os.Exit(exitStorageError)
		case strings.Contains(errStr, "failed to verify archive"):
			os.Exit(exitVerificationError)
		default:
			os.Exit(exitConfigError)
		}
	}
	os.Exit(exitSuccess)
}
