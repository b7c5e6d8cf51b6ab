package backup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/dc-tec/ibgateway-operator/internal/interfaces"
)

// RetentionResult contains the result of a retention pass.
type RetentionResult struct {
	// TotalArchives is the number of archives found before retention.
	TotalArchives int
	// Deleted is the number of archives deleted.
	Deleted int
	// Errors contains any errors encountered during deletion.
	Errors []error
}

// ApplyRetention prunes archives beyond maxCount under the given prefix.
// It lists all archives, sorts them by timestamp (newest first), and deletes
// everything past the maxCount newest. A maxCount of zero disables pruning.
//
// Deletion failures are reported in the result but do not fail the pass: the
// archive that was just uploaded is safe either way, and the next run prunes
// again.
func ApplyRetention(
	ctx context.Context,
	logger logr.Logger,
	store interfaces.BlobStore,
	prefix string,
	maxCount int32,
) (*RetentionResult, error) {
	if maxCount <= 0 {
		return &RetentionResult{}, nil
	}

	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives for retention: %w", err)
	}

	if len(objects) == 0 {
		return &RetentionResult{}, nil
	}

	result := &RetentionResult{
		TotalArchives: len(objects),
	}

	type archiveInfo struct {
		key       string
		timestamp time.Time
	}

	archives := make([]archiveInfo, 0, len(objects))
	for _, obj := range objects {
		_, _, timestamp, _, parseErr := ParseBackupKey(obj.Key)
		if parseErr != nil {
			// Key does not follow the generated format; fall back to the
			// object's modification time so foreign objects still age out
			// in order.
			timestamp = obj.LastModified
		}
		archives = append(archives, archiveInfo{key: obj.Key, timestamp: timestamp})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].timestamp.After(archives[j].timestamp)
	})

	// #nosec G115 -- len(archives) is bounded by practical limits (< 2^31), conversion is safe
	if int32(len(archives)) <= maxCount {
		return result, nil
	}

	keysToDelete := make([]string, 0, len(archives)-int(maxCount))
	for _, archive := range archives[maxCount:] {
		keysToDelete = append(keysToDelete, archive.key)
	}

	logger.Info("Applying retention policy",
		"prefix", prefix,
		"totalArchives", result.TotalArchives,
		"toDelete", len(keysToDelete),
		"maxCount", maxCount,
	)

	if err := store.DeleteBatch(ctx, keysToDelete); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to delete archives: %w", err))
		logger.Error(err, "Failed to delete some archives during retention",
			"keysAttempted", len(keysToDelete))
		return result, nil
	}

	result.Deleted = len(keysToDelete)
	logger.Info("Retention policy applied", "deleted", result.Deleted)

	return result, nil
}
