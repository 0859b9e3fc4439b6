package handler

import (
	"strings"

	"github.com/Atmajo/credora-server/internal/ledger"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
	"github.com/Atmajo/credora-server/pkg/ethutil"
)

// HTTP Request DTOs - contain JSON tags for API serialization.
// These are converted to service requests before processing.

type IssueCredentialRequest struct {
	Recipient       string `json:"recipient"`
	Type            string `json:"credential_type"`
	InstitutionName string `json:"institution_name"`
	ExpiresAt       int64  `json:"expires_at,omitempty"`
	Metadata        string `json:"metadata,omitempty"`
	TokenURI        string `json:"token_uri,omitempty"`
}

func (r *IssueCredentialRequest) Normalize() {
	if r == nil {
		return
	}
	r.Recipient = strings.TrimSpace(r.Recipient)
	r.Type = strings.TrimSpace(r.Type)
	r.InstitutionName = strings.TrimSpace(r.InstitutionName)
	r.TokenURI = strings.TrimSpace(r.TokenURI)
}

func (r *IssueCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := ethutil.ParseAddress(r.Recipient); err != nil {
		return dErrors.New(dErrors.CodeValidation, "recipient must be a hex address")
	}
	if _, err := ledger.ParseCredentialType(r.Type); err != nil {
		return dErrors.New(dErrors.CodeValidation, "unknown credential_type")
	}
	if r.InstitutionName == "" {
		return dErrors.New(dErrors.CodeValidation, "institution_name is required")
	}
	if r.ExpiresAt < 0 {
		return dErrors.New(dErrors.CodeValidation, "expires_at must not be negative")
	}
	return nil
}

type BatchIssueRequest struct {
	Recipients      []string `json:"recipients"`
	Types           []string `json:"credential_types"`
	InstitutionName string   `json:"institution_name"`
	ExpiresAt       int64    `json:"expires_at,omitempty"`
	Metadata        []string `json:"metadata,omitempty"`
	TokenURIs       []string `json:"token_uris,omitempty"`
}

func (r *BatchIssueRequest) Normalize() {
	if r == nil {
		return
	}
	for i := range r.Recipients {
		r.Recipients[i] = strings.TrimSpace(r.Recipients[i])
	}
	for i := range r.Types {
		r.Types[i] = strings.TrimSpace(r.Types[i])
	}
	r.InstitutionName = strings.TrimSpace(r.InstitutionName)
}

func (r *BatchIssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Recipients) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one recipient is required")
	}
	if r.InstitutionName == "" {
		return dErrors.New(dErrors.CodeValidation, "institution_name is required")
	}
	// Per-element and cross-array validation happens in the service so the
	// batch fails atomically with the same rules as on-chain submission.
	for _, rec := range r.Recipients {
		if _, err := ethutil.ParseAddress(rec); err != nil {
			return dErrors.New(dErrors.CodeValidation, "recipients must be hex addresses")
		}
	}
	for _, t := range r.Types {
		if _, err := ledger.ParseCredentialType(t); err != nil {
			return dErrors.New(dErrors.CodeValidation, "unknown credential_type")
		}
	}
	return nil
}

type TransferRequest struct {
	To string `json:"to"`
}

func (r *TransferRequest) Normalize() {
	if r == nil {
		return
	}
	r.To = strings.TrimSpace(r.To)
}

func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := ethutil.ParseAddress(r.To); err != nil {
		return dErrors.New(dErrors.CodeValidation, "to must be a hex address")
	}
	return nil
}

type BatchVerifyRequest struct {
	TokenIDs []uint64 `json:"token_ids"`
}

func (r *BatchVerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.TokenIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one token_id is required")
	}
	return nil
}
