package backup

import "fmt"

// ValidationError reports malformed client input. No collaborator call is made
// once one of these is raised.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError reports that an operation is already processing for the
// target, so a new one must not be started.
type ConflictError struct {
	DeploymentName string
	Operation      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in progress for deployment %s", e.Operation, e.DeploymentName)
}

// NotFoundError reports that a requested resource does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// DecodeError reports a malformed token or object key.
type DecodeError struct {
	Subject string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Subject, e.Reason)
}

// CollaboratorError reports a failure talking to the director, an agent, or
// object storage.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
