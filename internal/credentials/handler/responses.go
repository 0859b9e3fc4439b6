package handler

import (
	"time"

	"github.com/Atmajo/credora-server/internal/credentials/models"
)

// HTTP Response DTOs - contain JSON tags for API serialization.

type CredentialResponse struct {
	TokenID           uint64  `json:"token_id"`
	Issuer            string  `json:"issuer"`
	Recipient         string  `json:"recipient"`
	Type              string  `json:"credential_type"`
	InstitutionName   string  `json:"institution_name"`
	IssuedAt          string  `json:"issued_at"`
	ExpiresAt         int64   `json:"expires_at"`
	MetadataRef       string  `json:"metadata_ref,omitempty"`
	TokenURI          string  `json:"token_uri,omitempty"`
	TxHash            string  `json:"tx_hash"`
	BlockNumber       uint64  `json:"block_number"`
	Revoked           bool    `json:"revoked"`
	RevokedAt         *string `json:"revoked_at,omitempty"`
	VerificationCount uint64  `json:"verification_count"`
}

func toCredentialResponse(rec *models.CredentialRecord) *CredentialResponse {
	resp := &CredentialResponse{
		TokenID:           rec.TokenID,
		Issuer:            rec.Issuer.Hex(),
		Recipient:         rec.Recipient.Hex(),
		Type:              string(rec.Type),
		InstitutionName:   rec.InstitutionName,
		IssuedAt:          rec.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:         rec.ExpiresAt,
		MetadataRef:       rec.MetadataRef,
		TokenURI:          rec.TokenURI,
		TxHash:            rec.TxHash.Hex(),
		BlockNumber:       rec.BlockNumber,
		Revoked:           rec.Revoked,
		VerificationCount: rec.VerificationCount,
	}
	if rec.RevokedAt != nil {
		at := rec.RevokedAt.UTC().Format(time.RFC3339)
		resp.RevokedAt = &at
	}
	return resp
}

func toCredentialListResponse(recs []*models.CredentialRecord) []*CredentialResponse {
	out := make([]*CredentialResponse, len(recs))
	for i, rec := range recs {
		out[i] = toCredentialResponse(rec)
	}
	return out
}

type IssueResponse struct {
	TokenID      uint64 `json:"token_id,omitempty"`
	TxHash       string `json:"tx_hash"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	Status       string `json:"status"`
	MetadataRef  string `json:"metadata_ref,omitempty"`
	RevertReason string `json:"revert_reason,omitempty"`
}

func toIssueResponse(receipt *models.IssueReceipt) *IssueResponse {
	return &IssueResponse{
		TokenID:      receipt.TokenID,
		TxHash:       receipt.TxHash.Hex(),
		BlockNumber:  receipt.BlockNumber,
		Status:       receipt.Status,
		MetadataRef:  receipt.MetadataRef,
		RevertReason: receipt.RevertReason,
	}
}

type BatchIssueResponse struct {
	TokenIDs     []uint64 `json:"token_ids,omitempty"`
	TxHash       string   `json:"tx_hash"`
	BlockNumber  uint64   `json:"block_number,omitempty"`
	Status       string   `json:"status"`
	MetadataRefs []string `json:"metadata_refs,omitempty"`
	RevertReason string   `json:"revert_reason,omitempty"`
}

func toBatchIssueResponse(receipt *models.BatchIssueReceipt) *BatchIssueResponse {
	return &BatchIssueResponse{
		TokenIDs:     receipt.TokenIDs,
		TxHash:       receipt.TxHash.Hex(),
		BlockNumber:  receipt.BlockNumber,
		Status:       receipt.Status,
		MetadataRefs: receipt.MetadataRefs,
		RevertReason: receipt.RevertReason,
	}
}

type ShadowResponse struct {
	TxHash            string `json:"tx_hash"`
	BlockNumber       uint64 `json:"block_number"`
	TokenURI          string `json:"token_uri,omitempty"`
	VerificationCount uint64 `json:"verification_count"`
	Stale             bool   `json:"stale"`
}

type VerificationResponse struct {
	TokenID          uint64          `json:"token_id"`
	Exists           bool            `json:"exists"`
	IsValid          bool            `json:"is_valid"`
	Revoked          bool            `json:"revoked"`
	Expired          bool            `json:"expired"`
	IssuerAuthorized bool            `json:"issuer_authorized"`
	Issuer           string          `json:"issuer,omitempty"`
	Recipient        string          `json:"recipient,omitempty"`
	Owner            string          `json:"owner,omitempty"`
	Type             string          `json:"credential_type,omitempty"`
	InstitutionName  string          `json:"institution_name,omitempty"`
	IssuedAt         string          `json:"issued_at,omitempty"`
	ExpiresAt        int64           `json:"expires_at"`
	Message          string          `json:"message"`
	Shadow           *ShadowResponse `json:"shadow,omitempty"`
}

func toVerificationResponse(v *models.Verification) *VerificationResponse {
	resp := &VerificationResponse{
		TokenID:          v.TokenID,
		Exists:           v.Exists,
		IsValid:          v.IsValid,
		Revoked:          v.Revoked,
		Expired:          v.Expired,
		IssuerAuthorized: v.IssuerAuthorized,
		ExpiresAt:        v.ExpiresAt,
		Message:          v.Message,
	}
	if v.Exists {
		resp.Issuer = v.Issuer.Hex()
		resp.Recipient = v.Recipient.Hex()
		resp.Owner = v.Owner.Hex()
		resp.Type = string(v.Type)
		resp.InstitutionName = v.InstitutionName
		resp.IssuedAt = v.IssuedAt.UTC().Format(time.RFC3339)
	}
	if v.Shadow != nil {
		resp.Shadow = &ShadowResponse{
			TxHash:            v.Shadow.TxHash.Hex(),
			BlockNumber:       v.Shadow.BlockNumber,
			TokenURI:          v.Shadow.TokenURI,
			VerificationCount: v.Shadow.VerificationCount,
			Stale:             v.Shadow.Stale,
		}
	}
	return resp
}

func toVerificationListResponse(vs []*models.Verification) []*VerificationResponse {
	out := make([]*VerificationResponse, len(vs))
	for i, v := range vs {
		out[i] = toVerificationResponse(v)
	}
	return out
}
