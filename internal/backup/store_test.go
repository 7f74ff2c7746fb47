package backup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/rs/zerolog"
)

const testContainer = "backup-container"

func newTestStore(objects *memObjectStore) *Store {
	return NewStore(objects, testContainer, "root", zerolog.Nop())
}

func seedBackup(t *testing.T, objects *memObjectStore, doc models.StateDocument) string {
	t.Helper()
	key, err := Descriptor{
		Operation:      doc.Operation,
		DeploymentName: doc.DeploymentName,
		BackupGUID:     doc.BackupGUID,
		StartedAt:      doc.StartedAt,
		RootFolder:     "root",
	}.Key()
	if err != nil {
		t.Fatalf("seed key: %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("seed marshal: %v", err)
	}
	objects.objects[key] = data
	return key
}

func backupDoc(deployment, guid string, startedAt time.Time, state models.OperationState) models.StateDocument {
	return models.StateDocument{
		Operation:      models.OperationBackup,
		DeploymentName: deployment,
		BackupGUID:     guid,
		Type:           models.BackupTypeOnline,
		State:          state,
		Trigger:        models.TriggerOnDemand,
		AgentAddress:   "10.244.10.160",
		StartedAt:      startedAt,
	}
}

func TestListBackupsOrdersByStartTime(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	older := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	newer := backupDoc("ccdb", "2ed39cbf-37ab-4a54-ba9c-5bcbdbb35989", time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	seedBackup(t, objects, newer)
	seedBackup(t, objects, older)

	docs, err := store.ListBackups(context.Background(), "ccdb", "")
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("ListBackups() returned %d docs, want 2", len(docs))
	}
	if docs[0].BackupGUID != older.BackupGUID || docs[1].BackupGUID != newer.BackupGUID {
		t.Errorf("docs out of order: %s then %s", docs[0].BackupGUID, docs[1].BackupGUID)
	}
}

func TestListBackupsGUIDFilter(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	want := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	other := backupDoc("ccdb", "2ed39cbf-37ab-4a54-ba9c-5bcbdbb35989", time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	seedBackup(t, objects, want)
	seedBackup(t, objects, other)

	docs, err := store.ListBackups(context.Background(), "ccdb", want.BackupGUID)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(docs) != 1 || docs[0].BackupGUID != want.BackupGUID {
		t.Fatalf("ListBackups() with filter = %+v, want only %s", docs, want.BackupGUID)
	}
}

func TestListBackupsSkipsForeignAndBrokenKeys(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	good := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	seedBackup(t, objects, good)

	// Foreign tooling writing under the deployment's prefix, and a listed key
	// whose document is not JSON.
	objects.objects["root/backup/ccdb.manifest-export.txt"] = []byte("not ours")
	objects.objects["root/backup/ccdb.2ed39cbf-37ab-4a54-ba9c-5bcbdbb35989.2026-02-10T08-00-00Z.json"] = []byte("{broken")

	docs, err := store.ListBackups(context.Background(), "ccdb", "")
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(docs) != 1 || docs[0].BackupGUID != good.BackupGUID {
		t.Fatalf("ListBackups() = %+v, want only the well-formed document", docs)
	}
}

func TestListBackupsEmptyHistory(t *testing.T) {
	store := newTestStore(newMemObjectStore())
	docs, err := store.ListBackups(context.Background(), "ccdb", "")
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("ListBackups() = %+v, want empty", docs)
	}
}

func TestListBackupsStorageError(t *testing.T) {
	objects := newMemObjectStore()
	objects.listErr = errors.New("connection refused")
	store := newTestStore(objects)

	_, err := store.ListBackups(context.Background(), "ccdb", "")
	var collab *CollaboratorError
	if !errors.As(err, &collab) || collab.Collaborator != "storage" {
		t.Fatalf("ListBackups() error = %v, want storage CollaboratorError", err)
	}
}

func TestFindBackupByGUID(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	doc := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	seedBackup(t, objects, doc)

	found, err := store.FindBackupByGUID(context.Background(), "ccdb", doc.BackupGUID)
	if err != nil {
		t.Fatalf("FindBackupByGUID() error = %v", err)
	}
	if found.BackupGUID != doc.BackupGUID {
		t.Errorf("FindBackupByGUID() guid = %s, want %s", found.BackupGUID, doc.BackupGUID)
	}

	_, err = store.FindBackupByGUID(context.Background(), "ccdb", "2ed39cbf-37ab-4a54-ba9c-5bcbdbb35989")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("FindBackupByGUID() unknown guid error = %v, want NotFoundError", err)
	}
}

func TestFindBackupByTime(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	jan := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	feb := backupDoc("ccdb", "2ed39cbf-37ab-4a54-ba9c-5bcbdbb35989", time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded)
	seedBackup(t, objects, jan)
	seedBackup(t, objects, feb)

	tests := []struct {
		name     string
		at       time.Time
		wantGUID string
		wantErr  bool
	}{
		{"after both", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), feb.BackupGUID, false},
		{"between", time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), jan.BackupGUID, false},
		{"exactly at start", jan.StartedAt, jan.BackupGUID, false},
		{"before both", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := store.FindBackupByTime(context.Background(), "ccdb", tt.at)
			if tt.wantErr {
				var notFound *NotFoundError
				if !errors.As(err, &notFound) {
					t.Fatalf("FindBackupByTime() error = %v, want NotFoundError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindBackupByTime() error = %v", err)
			}
			if found.BackupGUID != tt.wantGUID {
				t.Errorf("FindBackupByTime() guid = %s, want %s", found.BackupGUID, tt.wantGUID)
			}
		})
	}
}

func TestHasProcessingBackup(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	seedBackup(t, objects, backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), models.StateSucceeded))

	processing, err := store.HasProcessingBackup(context.Background(), "ccdb")
	if err != nil {
		t.Fatalf("HasProcessingBackup() error = %v", err)
	}
	if processing {
		t.Error("HasProcessingBackup() = true with only terminal documents")
	}

	seedBackup(t, objects, backupDoc("ccdb", "2ed39cbf-37ab-4a54-ba9c-5bcbdbb35989", time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC), models.StateProcessing))

	processing, err = store.HasProcessingBackup(context.Background(), "ccdb")
	if err != nil {
		t.Fatalf("HasProcessingBackup() error = %v", err)
	}
	if !processing {
		t.Error("HasProcessingBackup() = false with a processing document present")
	}
}

func TestRestoreInfo(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	_, err := store.RestoreInfo(context.Background(), "ccdb")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("RestoreInfo() without record error = %v, want NotFoundError", err)
	}

	doc := models.StateDocument{
		Operation:      models.OperationRestore,
		DeploymentName: "ccdb",
		BackupGUID:     "071acb05-66a3-471b-af3c-8bbf1e4180be",
		State:          models.StateSucceeded,
		AgentAddress:   "10.244.10.160",
		StartedAt:      time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
	}
	data, _ := json.Marshal(doc)
	objects.objects["root/restore/ccdb.json"] = data

	found, err := store.RestoreInfo(context.Background(), "ccdb")
	if err != nil {
		t.Fatalf("RestoreInfo() error = %v", err)
	}
	if found.BackupGUID != doc.BackupGUID || found.State != models.StateSucceeded {
		t.Errorf("RestoreInfo() = %+v, want %+v", found, doc)
	}
}

func TestPutDocumentWritesAndConfirms(t *testing.T) {
	objects := newMemObjectStore()
	store := newTestStore(objects)

	doc := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), models.StateProcessing)
	if err := store.PutDocument(context.Background(), doc); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	keys := objects.keys()
	if len(keys) != 1 {
		t.Fatalf("object count = %d, want 1", len(keys))
	}
	want := "root/backup/ccdb.071acb05-66a3-471b-af3c-8bbf1e4180be.2026-03-14T09-26-53Z.json"
	if keys[0] != want {
		t.Errorf("written key = %q, want %q", keys[0], want)
	}

	var stored models.StateDocument
	if err := json.Unmarshal(objects.objects[keys[0]], &stored); err != nil {
		t.Fatalf("stored document not JSON: %v", err)
	}
	if stored.State != models.StateProcessing || stored.AgentAddress != "10.244.10.160" {
		t.Errorf("stored document = %+v", stored)
	}
}

func TestPutDocumentFailsWhenWriteNotVisible(t *testing.T) {
	objects := newMemObjectStore()
	objects.headMissing = true
	store := newTestStore(objects)

	doc := backupDoc("ccdb", "071acb05-66a3-471b-af3c-8bbf1e4180be", time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), models.StateProcessing)
	err := store.PutDocument(context.Background(), doc)
	var collab *CollaboratorError
	if !errors.As(err, &collab) || collab.Collaborator != "storage" {
		t.Fatalf("PutDocument() error = %v, want storage CollaboratorError", err)
	}
}
