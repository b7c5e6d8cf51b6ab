package backup

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// BackupExtension is the file extension for settings archives.
	BackupExtension = ".tar.gz"
	// ShortIDLength is the length of the random suffix in hex characters.
	ShortIDLength = 8
)

// GenerateBackupKey generates a predictable, sortable object key for a
// settings archive.
// Format: <pathPrefix>/<namespace>/<gateway>/<timestamp>-<id>.tar.gz
//
// The timestamp is RFC3339 in UTC with colons replaced by dashes for
// filesystem compatibility. The id is 8 hex characters from crypto/rand to
// prevent collisions between archives scheduled in the same minute.
func GenerateBackupKey(pathPrefix, namespace, gateway string, timestamp time.Time) (string, error) {
	id, err := generateShortID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id for backup key: %w", err)
	}

	// Example: 2025-01-15T03-00-00Z
	ts := timestamp.UTC().Format(time.RFC3339)
	ts = strings.ReplaceAll(ts, ":", "-")

	filename := fmt.Sprintf("%s-%s%s", ts, id, BackupExtension)

	if pathPrefix != "" {
		pathPrefix = strings.Trim(pathPrefix, "/")
		return path.Join(pathPrefix, namespace, gateway, filename), nil
	}
	return path.Join(namespace, gateway, filename), nil
}

// ParseBackupKey extracts metadata from an archive object key.
// Returns the namespace, gateway name, timestamp, and random id.
func ParseBackupKey(key string) (namespace, gateway string, timestamp time.Time, id string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", time.Time{}, "", fmt.Errorf("invalid backup key format: %s", key)
	}

	// The last three parts are namespace/gateway/filename
	filename := parts[len(parts)-1]
	gateway = parts[len(parts)-2]
	namespace = parts[len(parts)-3]

	if !strings.HasSuffix(filename, BackupExtension) {
		return "", "", time.Time{}, "", fmt.Errorf("invalid backup filename extension: %s", filename)
	}

	base := strings.TrimSuffix(filename, BackupExtension)

	// The random id follows the last dash
	lastDash := strings.LastIndex(base, "-")
	if lastDash == -1 || lastDash+1+ShortIDLength != len(base) {
		return "", "", time.Time{}, "", fmt.Errorf("invalid backup filename format: %s", filename)
	}

	id = base[lastDash+1:]
	tsStr := base[:lastDash]

	// Restore colons in the time portion: dashes after 'T' were substituted
	// at generation time. 2025-01-15T03-00-00Z becomes 2025-01-15T03:00:00Z.
	tIdx := strings.Index(tsStr, "T")
	if tIdx == -1 {
		return "", "", time.Time{}, "", fmt.Errorf("invalid timestamp format in backup key: %s", tsStr)
	}
	tsStr = tsStr[:tIdx] + strings.ReplaceAll(tsStr[tIdx:], "-", ":")

	timestamp, err = time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("failed to parse timestamp from backup key: %w", err)
	}

	return namespace, gateway, timestamp, id, nil
}

// GetBackupListPrefix returns the object prefix for listing archives of a
// specific gateway.
func GetBackupListPrefix(pathPrefix, namespace, gateway string) string {
	if pathPrefix != "" {
		pathPrefix = strings.Trim(pathPrefix, "/")
		return path.Join(pathPrefix, namespace, gateway) + "/"
	}
	return path.Join(namespace, gateway) + "/"
}

func generateShortID() (string, error) {
	bytes := make([]byte, ShortIDLength/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
