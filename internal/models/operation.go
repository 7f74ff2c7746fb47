// Package models defines the shared data types for bosun.
package models

import "time"

// OperationKind identifies the type of a deployment operation.
type OperationKind string

const (
	// OperationBackup is a deployment backup.
	OperationBackup OperationKind = "backup"
	// OperationRestore is a deployment restore.
	OperationRestore OperationKind = "restore"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	return k == OperationBackup || k == OperationRestore
}

// OperationState is the lifecycle state of an operation.
type OperationState string

const (
	StateProcessing OperationState = "processing"
	StateSucceeded  OperationState = "succeeded"
	StateFailed     OperationState = "failed"
)

// Trigger classifies how a backup was initiated.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerOnDemand  Trigger = "on_demand"
)

// BackupTypeOnline is the only backup type the agents currently support.
const BackupTypeOnline = "online"

// StateDocument is the durable JSON record of one backup or restore attempt,
// stored in object storage at the key derived from its descriptor. The
// document starts in StateProcessing and is moved to a terminal state by the
// agent completion path, not by the orchestrator.
type StateDocument struct {
	Operation      OperationKind  `json:"operation"`
	DeploymentName string         `json:"deployment_name"`
	BackupGUID     string         `json:"backup_guid"`
	Type           string         `json:"type,omitempty"`
	State          OperationState `json:"state"`
	Trigger        Trigger        `json:"trigger,omitempty"`
	Username       string         `json:"username,omitempty"`
	AgentAddress   string         `json:"agent_ip,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

// Sanitized returns a copy of the document with internal-only fields removed.
// Used for the caller-facing restore info view.
func (d StateDocument) Sanitized() StateDocument {
	d.AgentAddress = ""
	return d
}

// OperationStatus is an agent's live view of its most recent operation.
// It is fetched fresh from the agent at poll time and never persisted.
type OperationStatus struct {
	State     OperationState `json:"state"`
	Stage     string         `json:"stage,omitempty"`
	UpdatedAt string         `json:"updated_at"`
}
