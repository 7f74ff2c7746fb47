package backup

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/MacJediWizard/bosun/internal/agent"
	"github.com/MacJediWizard/bosun/internal/director"
	"github.com/MacJediWizard/bosun/internal/jobs"
	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/MacJediWizard/bosun/internal/storage"
)

// memObjectStore is an in-memory storage.ObjectStore.
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	listErr     error
	uploadErr   error
	headMissing bool
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (m *memObjectStore) List(ctx context.Context, container, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memObjectStore) Download(ctx context.Context, container, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memObjectStore) Upload(ctx context.Context, container, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if m.headMissing {
		// Simulate a backend that acknowledged the write but has not made it
		// visible yet.
		return nil
	}
	m.objects[key] = data
	return nil
}

func (m *memObjectStore) Head(ctx context.Context, container, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memObjectStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// fakeRegistry resolves every deployment to a fixed instance list.
type fakeRegistry struct {
	instances map[string][]director.Instance
	err       error
	lastName  string
}

func (f *fakeRegistry) Resolve(ctx context.Context, selector, deployment string) ([]director.Instance, error) {
	f.lastName = selector
	if f.err != nil {
		return nil, f.err
	}
	instances, ok := f.instances[deployment]
	if !ok {
		return nil, director.ErrDeploymentNotFound
	}
	return instances, nil
}

// fakeAgent records dispatched operations and serves canned status.
type fakeAgent struct {
	infoErr    error
	backupErr  error
	restoreErr error

	backupStarts  []agent.StartBackupRequest
	restoreStarts []agent.StartRestoreRequest
	backupStatus  models.OperationStatus
	restoreStatus models.OperationStatus
	statusErr     error
}

func (f *fakeAgent) GetInfo(ctx context.Context) (*agent.Info, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &agent.Info{Version: "1.9.0", SupportedOperations: []string{"backup", "restore"}}, nil
}

func (f *fakeAgent) StartBackup(ctx context.Context, req agent.StartBackupRequest) error {
	if f.backupErr != nil {
		return f.backupErr
	}
	f.backupStarts = append(f.backupStarts, req)
	return nil
}

func (f *fakeAgent) StartRestore(ctx context.Context, req agent.StartRestoreRequest) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.restoreStarts = append(f.restoreStarts, req)
	return nil
}

func (f *fakeAgent) LastBackupStatus(ctx context.Context) (*models.OperationStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	status := f.backupStatus
	return &status, nil
}

func (f *fakeAgent) LastRestoreStatus(ctx context.Context) (*models.OperationStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	status := f.restoreStatus
	return &status, nil
}

// fakeFactory hands out one shared agent and records the addresses asked for.
type fakeFactory struct {
	agent     *fakeAgent
	addresses []string
	props     []agent.Properties
}

func (f *fakeFactory) Client(address string, props agent.Properties) AgentClient {
	f.addresses = append(f.addresses, address)
	f.props = append(f.props, props)
	return f.agent
}

func agentProps() agent.Properties {
	return agent.Properties{
		Username: "agent",
		Password: "secret",
		Provider: &agent.Provider{Name: "amazon", Container: testContainer},
	}
}

// fakeScheduler records submitted follow-ups.
type fakeScheduler struct {
	submitted []jobs.FollowUp
	err       error
}

func (f *fakeScheduler) Submit(ctx context.Context, job jobs.FollowUp) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, job)
	return nil
}
