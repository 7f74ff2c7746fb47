// Package backup implements the backup and restore orchestration engine:
// object key and token codecs, the state document store, and the operation
// state machine that coordinates director, agent, and object storage.
package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/google/uuid"
)

// timestampLayout is the timestamp segment format inside object keys. It is
// ISO-8601 UTC with colons replaced so keys stay portable, and it sorts
// lexicographically in chronological order.
const timestampLayout = "2006-01-02T15-04-05Z"

const keySuffix = ".json"

// Descriptor identifies one backup or restore artifact in object storage.
type Descriptor struct {
	Operation      models.OperationKind
	DeploymentName string
	BackupGUID     string
	StartedAt      time.Time
	RootFolder     string
}

// Key returns the canonical object key for d.
//
// Backups are multi-valued per deployment and keyed by guid and start time:
//
//	<root>/backup/<deployment>.<guid>.<timestamp>.json
//
// Restores track only the latest attempt under a fixed key:
//
//	<root>/restore/<deployment>.json
func (d Descriptor) Key() (string, error) {
	if d.RootFolder == "" {
		return "", &ValidationError{Message: "descriptor: root folder is required"}
	}
	if d.DeploymentName == "" {
		return "", &ValidationError{Message: "descriptor: deployment name is required"}
	}
	switch d.Operation {
	case models.OperationBackup:
		if _, err := uuid.Parse(d.BackupGUID); err != nil {
			return "", &ValidationError{Message: "descriptor: backup guid must be a UUID"}
		}
		if d.StartedAt.IsZero() {
			return "", &ValidationError{Message: "descriptor: started_at is required"}
		}
		ts := d.StartedAt.UTC().Format(timestampLayout)
		return fmt.Sprintf("%s/backup/%s.%s.%s%s", d.RootFolder, d.DeploymentName, d.BackupGUID, ts, keySuffix), nil
	case models.OperationRestore:
		return fmt.Sprintf("%s/restore/%s%s", d.RootFolder, d.DeploymentName, keySuffix), nil
	default:
		return "", &ValidationError{Message: fmt.Sprintf("descriptor: unknown operation %q", d.Operation)}
	}
}

// BackupPrefix returns the listing prefix covering every backup of a
// deployment. The trailing dot keeps deployments with a shared name prefix
// from matching each other.
func BackupPrefix(rootFolder, deployment string) string {
	return fmt.Sprintf("%s/backup/%s.", rootFolder, deployment)
}

// ParseKey decodes an object key produced by Descriptor.Key. Keys written by
// other tooling into the same container do not match and return a DecodeError;
// callers listing a shared container are expected to skip those.
func ParseKey(key string) (Descriptor, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return Descriptor{}, &DecodeError{Subject: "key", Reason: fmt.Sprintf("expected 3 segments, got %d", len(parts))}
	}
	root, op, name := parts[0], parts[1], parts[2]
	if root == "" || !strings.HasSuffix(name, keySuffix) {
		return Descriptor{}, &DecodeError{Subject: "key", Reason: "missing root folder or .json suffix"}
	}
	name = strings.TrimSuffix(name, keySuffix)

	switch models.OperationKind(op) {
	case models.OperationBackup:
		// The deployment name may itself contain dots, so take the guid and
		// timestamp from the right.
		fields := strings.Split(name, ".")
		if len(fields) < 3 {
			return Descriptor{}, &DecodeError{Subject: "key", Reason: "backup key needs deployment, guid and timestamp"}
		}
		deployment := strings.Join(fields[:len(fields)-2], ".")
		guid := fields[len(fields)-2]
		ts := fields[len(fields)-1]
		if deployment == "" {
			return Descriptor{}, &DecodeError{Subject: "key", Reason: "empty deployment name"}
		}
		if _, err := uuid.Parse(guid); err != nil {
			return Descriptor{}, &DecodeError{Subject: "key", Reason: "guid segment is not a UUID"}
		}
		startedAt, err := time.Parse(timestampLayout, ts)
		if err != nil {
			return Descriptor{}, &DecodeError{Subject: "key", Reason: "timestamp segment is not sortable ISO-8601"}
		}
		return Descriptor{
			Operation:      models.OperationBackup,
			DeploymentName: deployment,
			BackupGUID:     guid,
			StartedAt:      startedAt,
			RootFolder:     root,
		}, nil
	case models.OperationRestore:
		if name == "" {
			return Descriptor{}, &DecodeError{Subject: "key", Reason: "empty deployment name"}
		}
		return Descriptor{
			Operation:      models.OperationRestore,
			DeploymentName: name,
			RootFolder:     root,
		}, nil
	default:
		return Descriptor{}, &DecodeError{Subject: "key", Reason: fmt.Sprintf("unknown operation segment %q", op)}
	}
}
