package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/bosun/internal/agent"
	"github.com/MacJediWizard/bosun/internal/director"
	"github.com/MacJediWizard/bosun/internal/jobs"
	"github.com/MacJediWizard/bosun/internal/metrics"
	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DirectorRegistry resolves deployment topology through a selected director
// backend.
type DirectorRegistry interface {
	Resolve(ctx context.Context, selector, deployment string) ([]director.Instance, error)
}

// AgentClient is the per-address agent API the orchestrator drives.
type AgentClient interface {
	GetInfo(ctx context.Context) (*agent.Info, error)
	StartBackup(ctx context.Context, req agent.StartBackupRequest) error
	StartRestore(ctx context.Context, req agent.StartRestoreRequest) error
	LastBackupStatus(ctx context.Context) (*models.OperationStatus, error)
	LastRestoreStatus(ctx context.Context) (*models.OperationStatus, error)
}

// AgentFactory builds agent clients bound to resolved addresses.
type AgentFactory interface {
	Client(address string, props agent.Properties) AgentClient
}

// AgentFactoryFunc adapts a function to the AgentFactory interface.
type AgentFactoryFunc func(address string, props agent.Properties) AgentClient

func (f AgentFactoryFunc) Client(address string, props agent.Properties) AgentClient {
	return f(address, props)
}

// StartBackupRequest carries a validated-at-the-edge backup start request.
type StartBackupRequest struct {
	DeploymentName  string
	DirectorName    string
	Trigger         models.Trigger
	Username        string
	AgentProperties agent.Properties
}

// StartRestoreRequest carries a restore start request. Exactly one of
// BackupGUID and TimeStamp selects the backup to restore from.
type StartRestoreRequest struct {
	DeploymentName  string
	DirectorName    string
	BackupGUID      string
	TimeStamp       string
	Username        string
	AgentProperties agent.Properties
}

// StartResult is returned when an operation has been accepted.
type StartResult struct {
	BackupGUID string               `json:"backup_guid"`
	Operation  models.OperationKind `json:"operation"`
	Token      string               `json:"token"`
}

// OrchestratorConfig holds injectable dependencies for deterministic tests.
type OrchestratorConfig struct {
	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
	// NewGUID supplies operation guids. Defaults to uuid.NewString.
	NewGUID func() string
}

// Orchestrator is the operation state machine. It keeps no state of its own:
// topology is resolved on demand, status is re-derived from tokens, and
// object storage content is the sole durable record.
type Orchestrator struct {
	store     *Store
	directors DirectorRegistry
	agents    AgentFactory
	scheduler jobs.Scheduler
	metrics   *metrics.Set
	logger    zerolog.Logger
	now       func() time.Time
	newGUID   func() string
}

// NewOrchestrator creates an Orchestrator. scheduler and metricSet may be nil.
func NewOrchestrator(
	store *Store,
	directors DirectorRegistry,
	agents AgentFactory,
	scheduler jobs.Scheduler,
	metricSet *metrics.Set,
	cfg OrchestratorConfig,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewGUID == nil {
		cfg.NewGUID = uuid.NewString
	}
	return &Orchestrator{
		store:     store,
		directors: directors,
		agents:    agents,
		scheduler: scheduler,
		metrics:   metricSet,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		now:       cfg.Now,
		newGUID:   cfg.NewGUID,
	}
}

// StartBackup runs the backup start sequence: conflict check, topology
// resolution, agent probe, state document write with confirmation, agent
// dispatch, token mint. The steps are strictly sequential; each step's
// success is a precondition for the next.
func (o *Orchestrator) StartBackup(ctx context.Context, req StartBackupRequest) (*StartResult, error) {
	if req.DeploymentName == "" {
		return nil, &ValidationError{Message: "deployment name is required"}
	}
	if req.Trigger == "" {
		req.Trigger = models.TriggerOnDemand
	}

	processing, err := o.store.HasProcessingBackup(ctx, req.DeploymentName)
	if err != nil {
		return nil, o.fail(models.OperationBackup, err)
	}
	if processing {
		o.countConflict(models.OperationBackup)
		return nil, &ConflictError{DeploymentName: req.DeploymentName, Operation: "backup"}
	}

	address, client, err := o.resolveAgent(ctx, req.DirectorName, req.DeploymentName, req.AgentProperties)
	if err != nil {
		return nil, o.fail(models.OperationBackup, err)
	}

	info, err := client.GetInfo(ctx)
	if err != nil {
		return nil, o.fail(models.OperationBackup, &CollaboratorError{Collaborator: "agent", Err: err})
	}

	guid := o.newGUID()
	startedAt := o.now().UTC()
	doc := models.StateDocument{
		Operation:      models.OperationBackup,
		DeploymentName: req.DeploymentName,
		BackupGUID:     guid,
		Type:           models.BackupTypeOnline,
		State:          models.StateProcessing,
		Trigger:        req.Trigger,
		Username:       req.Username,
		AgentAddress:   address,
		StartedAt:      startedAt,
	}
	if err := o.store.PutDocument(ctx, doc); err != nil {
		return nil, o.fail(models.OperationBackup, err)
	}

	if err := client.StartBackup(ctx, agent.StartBackupRequest{
		BackupGUID: guid,
		Type:       models.BackupTypeOnline,
		Trigger:    req.Trigger,
	}); err != nil {
		// The processing document stays behind: future conflict checks will
		// see it as a stuck operation. Known limitation, no rollback.
		o.logger.Warn().
			Str("deployment", req.DeploymentName).
			Str("backup_guid", guid).
			Msg("agent dispatch failed after state document write; document left processing")
		return nil, o.fail(models.OperationBackup, &CollaboratorError{Collaborator: "agent", Err: err})
	}

	o.submitFollowUp(ctx, models.OperationBackup, req.DeploymentName, guid)
	o.countStarted(models.OperationBackup, req.Trigger)
	o.logger.Info().
		Str("deployment", req.DeploymentName).
		Str("backup_guid", guid).
		Str("agent", address).
		Str("agent_version", info.Version).
		Str("trigger", string(req.Trigger)).
		Msg("backup started")

	return &StartResult{
		BackupGUID: guid,
		Operation:  models.OperationBackup,
		Token: Token{
			Operation:    models.OperationBackup,
			BackupGUID:   guid,
			AgentAddress: address,
		}.Encode(),
	}, nil
}

// StartRestore validates the backup selector, locates the source backup,
// refuses if it is still processing, and then runs the same start sequence
// as StartBackup with the restore-kind document and dispatch.
func (o *Orchestrator) StartRestore(ctx context.Context, req StartRestoreRequest) (*StartResult, error) {
	if req.DeploymentName == "" {
		return nil, &ValidationError{Message: "deployment name is required"}
	}
	source, err := o.selectBackup(ctx, req)
	if err != nil {
		return nil, err
	}
	if source.State == models.StateProcessing {
		o.countConflict(models.OperationRestore)
		return nil, &ConflictError{DeploymentName: req.DeploymentName, Operation: "backup"}
	}

	if existing, err := o.store.RestoreInfo(ctx, req.DeploymentName); err == nil && existing.State == models.StateProcessing {
		o.countConflict(models.OperationRestore)
		return nil, &ConflictError{DeploymentName: req.DeploymentName, Operation: "restore"}
	} else if err != nil {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return nil, o.fail(models.OperationRestore, err)
		}
	}

	address, client, err := o.resolveAgent(ctx, req.DirectorName, req.DeploymentName, req.AgentProperties)
	if err != nil {
		return nil, o.fail(models.OperationRestore, err)
	}

	if _, err := client.GetInfo(ctx); err != nil {
		return nil, o.fail(models.OperationRestore, &CollaboratorError{Collaborator: "agent", Err: err})
	}

	doc := models.StateDocument{
		Operation:      models.OperationRestore,
		DeploymentName: req.DeploymentName,
		BackupGUID:     source.BackupGUID,
		State:          models.StateProcessing,
		Username:       req.Username,
		AgentAddress:   address,
		StartedAt:      o.now().UTC(),
	}
	if err := o.store.PutDocument(ctx, doc); err != nil {
		return nil, o.fail(models.OperationRestore, err)
	}

	if err := client.StartRestore(ctx, agent.StartRestoreRequest{BackupGUID: source.BackupGUID}); err != nil {
		o.logger.Warn().
			Str("deployment", req.DeploymentName).
			Str("backup_guid", source.BackupGUID).
			Msg("agent dispatch failed after state document write; document left processing")
		return nil, o.fail(models.OperationRestore, &CollaboratorError{Collaborator: "agent", Err: err})
	}

	o.submitFollowUp(ctx, models.OperationRestore, req.DeploymentName, source.BackupGUID)
	o.countStarted(models.OperationRestore, "")
	o.logger.Info().
		Str("deployment", req.DeploymentName).
		Str("backup_guid", source.BackupGUID).
		Str("agent", address).
		Msg("restore started")

	return &StartResult{
		BackupGUID: source.BackupGUID,
		Operation:  models.OperationRestore,
		Token: Token{
			Operation:    models.OperationRestore,
			BackupGUID:   source.BackupGUID,
			AgentAddress: address,
		}.Encode(),
	}, nil
}

// ListBackups returns the deployment's backup history in creation order,
// optionally narrowed to one guid.
func (o *Orchestrator) ListBackups(ctx context.Context, deployment, guidFilter string) ([]models.StateDocument, error) {
	if deployment == "" {
		return nil, &ValidationError{Message: "deployment name is required"}
	}
	if guidFilter != "" {
		if _, err := uuid.Parse(guidFilter); err != nil {
			return nil, &ValidationError{Message: "backup_guid must be a UUID"}
		}
	}
	return o.store.ListBackups(ctx, deployment, guidFilter)
}

// RestoreInfo returns the deployment's last restore record with internal
// fields stripped.
func (o *Orchestrator) RestoreInfo(ctx context.Context, deployment string) (*models.StateDocument, error) {
	if deployment == "" {
		return nil, &ValidationError{Message: "deployment name is required"}
	}
	doc, err := o.store.RestoreInfo(ctx, deployment)
	if err != nil {
		return nil, err
	}
	sanitized := doc.Sanitized()
	return &sanitized, nil
}

// OperationStatus decodes the token and fetches live status from the agent it
// names. No storage access happens on this path.
func (o *Orchestrator) OperationStatus(ctx context.Context, token string, props agent.Properties) (*models.OperationStatus, error) {
	tok, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	client := o.agents.Client(tok.AgentAddress, props)
	var status *models.OperationStatus
	switch tok.Operation {
	case models.OperationBackup:
		status, err = client.LastBackupStatus(ctx)
	case models.OperationRestore:
		status, err = client.LastRestoreStatus(ctx)
	}
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "agent", Err: err}
	}

	if o.metrics != nil {
		o.metrics.StatusPolls.WithLabelValues(string(tok.Operation)).Inc()
	}
	return status, nil
}

// selectBackup validates the restore selector and locates the source backup.
func (o *Orchestrator) selectBackup(ctx context.Context, req StartRestoreRequest) (*models.StateDocument, error) {
	switch {
	case req.BackupGUID != "" && req.TimeStamp != "":
		return nil, &ValidationError{Message: "backup_guid and time_stamp are mutually exclusive"}
	case req.BackupGUID != "":
		if _, err := uuid.Parse(req.BackupGUID); err != nil {
			return nil, &ValidationError{Message: "backup_guid must be a UUID"}
		}
		return o.store.FindBackupByGUID(ctx, req.DeploymentName, req.BackupGUID)
	case req.TimeStamp != "":
		at, err := time.Parse(time.RFC3339, req.TimeStamp)
		if err != nil {
			return nil, &ValidationError{Message: "time_stamp must be an ISO-8601 instant"}
		}
		return o.store.FindBackupByTime(ctx, req.DeploymentName, at)
	default:
		return nil, &ValidationError{Message: "one of backup_guid or time_stamp is required"}
	}
}

// resolveAgent resolves topology via the selected director and returns the
// operational agent: by convention the first instance of the ordered list.
func (o *Orchestrator) resolveAgent(ctx context.Context, selector, deployment string, props agent.Properties) (string, AgentClient, error) {
	instances, err := o.directors.Resolve(ctx, selector, deployment)
	if err != nil {
		switch {
		case errors.Is(err, director.ErrUnknownDirector):
			return "", nil, &ValidationError{Message: err.Error()}
		case errors.Is(err, director.ErrDeploymentNotFound):
			return "", nil, &NotFoundError{Resource: "deployment " + deployment}
		default:
			return "", nil, &CollaboratorError{Collaborator: "director", Err: err}
		}
	}
	if len(instances) == 0 {
		return "", nil, &CollaboratorError{Collaborator: "director", Err: fmt.Errorf("deployment %s has no instances", deployment)}
	}
	address := instances[0].Address
	return address, o.agents.Client(address, props), nil
}

// submitFollowUp hands the started operation to the job scheduler. Fire and
// forget: a scheduling failure never fails the start response.
func (o *Orchestrator) submitFollowUp(ctx context.Context, kind models.OperationKind, deployment, guid string) {
	if o.scheduler == nil {
		return
	}
	err := o.scheduler.Submit(ctx, jobs.FollowUp{
		DeploymentName: deployment,
		BackupGUID:     guid,
		Operation:      kind,
	})
	if err != nil {
		o.logger.Warn().Err(err).
			Str("deployment", deployment).
			Str("backup_guid", guid).
			Msg("follow-up job submission failed")
	}
}

func (o *Orchestrator) fail(kind models.OperationKind, err error) error {
	var collab *CollaboratorError
	if o.metrics != nil && errors.As(err, &collab) {
		o.metrics.OperationFailures.WithLabelValues(string(kind), collab.Collaborator).Inc()
	}
	return err
}

func (o *Orchestrator) countStarted(kind models.OperationKind, trigger models.Trigger) {
	if o.metrics != nil {
		o.metrics.OperationsStarted.WithLabelValues(string(kind), string(trigger)).Inc()
	}
}

func (o *Orchestrator) countConflict(kind models.OperationKind) {
	if o.metrics != nil {
		o.metrics.OperationConflicts.WithLabelValues(string(kind)).Inc()
	}
}
