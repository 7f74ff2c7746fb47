// Package handlers implements the admin API HTTP endpoints.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/MacJediWizard/bosun/internal/agent"
	"github.com/MacJediWizard/bosun/internal/api/middleware"
	"github.com/MacJediWizard/bosun/internal/backup"
	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Orchestrator is the operation engine behind the deployment endpoints.
type Orchestrator interface {
	StartBackup(ctx context.Context, req backup.StartBackupRequest) (*backup.StartResult, error)
	StartRestore(ctx context.Context, req backup.StartRestoreRequest) (*backup.StartResult, error)
	ListBackups(ctx context.Context, deployment, guidFilter string) ([]models.StateDocument, error)
	RestoreInfo(ctx context.Context, deployment string) (*models.StateDocument, error)
	OperationStatus(ctx context.Context, token string, props agent.Properties) (*models.OperationStatus, error)
}

// DeploymentsHandler handles backup and restore endpoints for managed
// deployments.
type DeploymentsHandler struct {
	orchestrator Orchestrator
	logger       zerolog.Logger
}

// NewDeploymentsHandler creates a new DeploymentsHandler.
func NewDeploymentsHandler(orchestrator Orchestrator, logger zerolog.Logger) *DeploymentsHandler {
	return &DeploymentsHandler{
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "deployments_handler").Logger(),
	}
}

// RegisterRoutes registers deployment routes on the given router group.
func (h *DeploymentsHandler) RegisterRoutes(r *gin.RouterGroup) {
	deployments := r.Group("/deployments")
	{
		deployments.POST("/:name/backup", h.StartBackup)
		deployments.GET("/:name/backup", h.ListBackups)
		deployments.GET("/:name/backup/status", h.OperationStatus)
		deployments.POST("/:name/restore", h.StartRestore)
		deployments.GET("/:name/restore", h.RestoreInfo)
		deployments.GET("/:name/restore/status", h.OperationStatus)
	}
}

type startBackupBody struct {
	Trigger         models.Trigger   `json:"trigger,omitempty"`
	Director        string           `json:"director,omitempty"`
	AgentProperties agent.Properties `json:"agent_properties"`
}

type startRestoreBody struct {
	BackupGUID      string           `json:"backup_guid,omitempty"`
	TimeStamp       string           `json:"time_stamp,omitempty"`
	Director        string           `json:"director,omitempty"`
	AgentProperties agent.Properties `json:"agent_properties"`
}

type agentPropertiesBody struct {
	AgentProperties agent.Properties `json:"agent_properties"`
}

// StartBackup triggers a backup of the deployment and returns the operation
// token for status polling.
func (h *DeploymentsHandler) StartBackup(c *gin.Context) {
	var body startBackupBody
	if !h.bindOptionalBody(c, &body) {
		return
	}
	if body.Trigger != "" && body.Trigger != models.TriggerOnDemand && body.Trigger != models.TriggerScheduled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trigger"})
		return
	}

	result, err := h.orchestrator.StartBackup(c.Request.Context(), backup.StartBackupRequest{
		DeploymentName:  c.Param("name"),
		DirectorName:    firstNonEmpty(body.Director, c.Query("director")),
		Trigger:         body.Trigger,
		Username:        middleware.Username(c),
		AgentProperties: body.AgentProperties,
	})
	if err != nil {
		h.writeError(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// StartRestore triggers a restore of the deployment from a completed backup
// selected by backup_guid or time_stamp.
func (h *DeploymentsHandler) StartRestore(c *gin.Context) {
	var body startRestoreBody
	if !h.bindOptionalBody(c, &body) {
		return
	}

	result, err := h.orchestrator.StartRestore(c.Request.Context(), backup.StartRestoreRequest{
		DeploymentName:  c.Param("name"),
		DirectorName:    firstNonEmpty(body.Director, c.Query("director")),
		BackupGUID:      body.BackupGUID,
		TimeStamp:       body.TimeStamp,
		Username:        middleware.Username(c),
		AgentProperties: body.AgentProperties,
	})
	if err != nil {
		// A backup still processing at the restore target is a legitimate,
		// expected state: unprocessable rather than conflict.
		h.writeError(c, err, http.StatusUnprocessableEntity)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// ListBackups returns the deployment's backup history, optionally filtered by
// backup_guid.
func (h *DeploymentsHandler) ListBackups(c *gin.Context) {
	docs, err := h.orchestrator.ListBackups(c.Request.Context(), c.Param("name"), c.Query("backup_guid"))
	if err != nil {
		h.writeError(c, err, http.StatusConflict)
		return
	}
	if docs == nil {
		docs = []models.StateDocument{}
	}
	c.JSON(http.StatusOK, gin.H{"backups": docs})
}

// RestoreInfo returns the deployment's last restore record.
func (h *DeploymentsHandler) RestoreInfo(c *gin.Context) {
	doc, err := h.orchestrator.RestoreInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restore": doc})
}

// OperationStatus polls the live status of a backup or restore operation
// identified by its token.
func (h *DeploymentsHandler) OperationStatus(c *gin.Context) {
	var body agentPropertiesBody
	if !h.bindOptionalBody(c, &body) {
		return
	}

	status, err := h.orchestrator.OperationStatus(c.Request.Context(), c.Query("token"), body.AgentProperties)
	if err != nil {
		h.writeError(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, status)
}

// bindOptionalBody decodes a JSON body when one is present. Requests without
// a body are fine; a body that fails to parse is a client error.
func (h *DeploymentsHandler) bindOptionalBody(c *gin.Context, out any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return false
	}
	return true
}

// writeError maps orchestrator errors to HTTP statuses. conflictStatus lets
// the start endpoints disagree on what a conflict means (409 for a second
// backup, 422 for restoring a processing backup).
func (h *DeploymentsHandler) writeError(c *gin.Context, err error, conflictStatus int) {
	var (
		validation *backup.ValidationError
		conflict   *backup.ConflictError
		notFound   *backup.NotFoundError
		decode     *backup.DecodeError
		collab     *backup.CollaboratorError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message})
	case errors.As(err, &decode):
		c.JSON(http.StatusBadRequest, gin.H{"error": decode.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(conflictStatus, gin.H{"error": conflict.Error()})
	case errors.As(err, &collab):
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("collaborator failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream failure: " + collab.Collaborator})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("unexpected failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
