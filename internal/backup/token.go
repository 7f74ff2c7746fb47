package backup

import (
	"encoding/base64"
	"encoding/json"

	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/google/uuid"
)

// Token lets a caller re-identify a dispatched operation for status polling
// without any server-side session state. It is reversible on purpose: status
// is re-derived by contacting the agent it names. It is not a credential;
// authentication stays with the transport.
type Token struct {
	Operation    models.OperationKind `json:"operation"`
	BackupGUID   string               `json:"backup_guid"`
	AgentAddress string               `json:"agent_ip"`
}

// Encode serializes the token into its opaque wire form. Tokens travel in
// query strings, so the encoding is URL-safe.
func (t Token) Encode() string {
	data, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a caller-supplied token string. Any input that did not
// come from Encode yields a DecodeError, never a panic.
func DecodeToken(s string) (Token, error) {
	if s == "" {
		return Token{}, &DecodeError{Subject: "token", Reason: "empty token"}
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Token{}, &DecodeError{Subject: "token", Reason: "not base64"}
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, &DecodeError{Subject: "token", Reason: "not a token payload"}
	}
	if !t.Operation.Valid() {
		return Token{}, &DecodeError{Subject: "token", Reason: "unknown operation kind"}
	}
	if _, err := uuid.Parse(t.BackupGUID); err != nil {
		return Token{}, &DecodeError{Subject: "token", Reason: "backup guid is not a UUID"}
	}
	if t.AgentAddress == "" {
		return Token{}, &DecodeError{Subject: "token", Reason: "missing agent address"}
	}
	return t, nil
}
