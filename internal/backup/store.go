package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/MacJediWizard/bosun/internal/storage"
	"github.com/rs/zerolog"
)

// Store reads and writes state documents in object storage. Object content
// and key convention are the sole durable record of operation state; there is
// no database behind this.
type Store struct {
	objects    storage.ObjectStore
	container  string
	rootFolder string
	logger     zerolog.Logger
}

// NewStore creates a Store over the given object store. All keys live inside
// rootFolder, which partitions these administrative artifacts from tenant
// artifacts sharing the container.
func NewStore(objects storage.ObjectStore, container, rootFolder string, logger zerolog.Logger) *Store {
	return &Store{
		objects:    objects,
		container:  container,
		rootFolder: rootFolder,
		logger:     logger.With().Str("component", "backup_store").Logger(),
	}
}

// ListBackups returns the state documents for a deployment's backups in
// creation order. guidFilter, when non-empty, narrows the result to the
// matching backup. Keys that do not parse and documents that vanish or fail
// to decode between list and download are skipped, not fatal: the container
// is shared and list+download is not transactional.
func (s *Store) ListBackups(ctx context.Context, deployment, guidFilter string) ([]models.StateDocument, error) {
	prefix := BackupPrefix(s.rootFolder, deployment)
	keys, err := s.objects.List(ctx, s.container, prefix)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "storage", Err: err}
	}

	var docs []models.StateDocument
	for _, key := range keys {
		desc, err := ParseKey(key)
		if err != nil || desc.Operation != models.OperationBackup || desc.DeploymentName != deployment {
			continue
		}
		if guidFilter != "" && desc.BackupGUID != guidFilter {
			continue
		}
		doc, ok := s.download(ctx, key)
		if !ok {
			continue
		}
		docs = append(docs, doc)
	}
	// Keys sort by guid before timestamp, so list order is not chronological.
	sort.Slice(docs, func(i, j int) bool { return docs[i].StartedAt.Before(docs[j].StartedAt) })
	return docs, nil
}

// FindBackupByGUID returns the state document of the backup with the given
// guid, or a NotFoundError.
func (s *Store) FindBackupByGUID(ctx context.Context, deployment, guid string) (*models.StateDocument, error) {
	docs, err := s.ListBackups(ctx, deployment, guid)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &NotFoundError{Resource: fmt.Sprintf("backup %s for deployment %s", guid, deployment)}
	}
	doc := docs[len(docs)-1]
	return &doc, nil
}

// FindBackupByTime returns the most recent backup started at or before the
// given instant, or a NotFoundError.
func (s *Store) FindBackupByTime(ctx context.Context, deployment string, at time.Time) (*models.StateDocument, error) {
	docs, err := s.ListBackups(ctx, deployment, "")
	if err != nil {
		return nil, err
	}
	for i := len(docs) - 1; i >= 0; i-- {
		if !docs[i].StartedAt.After(at) {
			return &docs[i], nil
		}
	}
	return nil, &NotFoundError{Resource: fmt.Sprintf("backup before %s for deployment %s", at.Format(time.RFC3339), deployment)}
}

// HasProcessingBackup reports whether any backup of the deployment is still
// in the processing state. This read is the mutual-exclusion check for new
// backups; no lock is taken beyond it.
func (s *Store) HasProcessingBackup(ctx context.Context, deployment string) (bool, error) {
	docs, err := s.ListBackups(ctx, deployment, "")
	if err != nil {
		return false, err
	}
	for _, doc := range docs {
		if doc.State == models.StateProcessing {
			return true, nil
		}
	}
	return false, nil
}

// RestoreInfo returns the deployment's restore state document, or a
// NotFoundError when no restore has been recorded.
func (s *Store) RestoreInfo(ctx context.Context, deployment string) (*models.StateDocument, error) {
	key, err := Descriptor{
		Operation:      models.OperationRestore,
		DeploymentName: deployment,
		RootFolder:     s.rootFolder,
	}.Key()
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Download(ctx, s.container, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Resource: fmt.Sprintf("restore for deployment %s", deployment)}
		}
		return nil, &CollaboratorError{Collaborator: "storage", Err: err}
	}
	var doc models.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Subject: "restore document", Reason: err.Error()}
	}
	return &doc, nil
}

// PutDocument writes a state document at its descriptor key and confirms the
// write landed via a head probe. The probe defends against eventually
// consistent backends claiming success for a write that is not yet visible.
func (s *Store) PutDocument(ctx context.Context, doc models.StateDocument) error {
	key, err := Descriptor{
		Operation:      doc.Operation,
		DeploymentName: doc.DeploymentName,
		BackupGUID:     doc.BackupGUID,
		StartedAt:      doc.StartedAt,
		RootFolder:     s.rootFolder,
	}.Key()
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal state document: %w", err)
	}
	if err := s.objects.Upload(ctx, s.container, key, data); err != nil {
		return &CollaboratorError{Collaborator: "storage", Err: err}
	}

	exists, err := s.objects.Head(ctx, s.container, key)
	if err != nil {
		return &CollaboratorError{Collaborator: "storage", Err: err}
	}
	if !exists {
		return &CollaboratorError{Collaborator: "storage", Err: fmt.Errorf("write of %s not visible after upload", key)}
	}

	s.logger.Debug().Str("key", key).Str("state", string(doc.State)).Msg("state document written")
	return nil
}

func (s *Store) download(ctx context.Context, key string) (models.StateDocument, bool) {
	data, err := s.objects.Download(ctx, s.container, key)
	if err != nil {
		// A listed key whose download fails was removed concurrently; treat
		// it as no such operation.
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("skipping unreadable state document")
		}
		return models.StateDocument{}, false
	}
	var doc models.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("skipping malformed state document")
		return models.StateDocument{}, false
	}
	return doc, true
}
