package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

const recipientHex = "0x0000000000000000000000000000000000000020"

func TestIssueCredentialRequestValidate(t *testing.T) {
	req := &IssueCredentialRequest{
		Recipient:       "  " + recipientHex + "  ",
		Type:            "Degree",
		InstitutionName: " Test University ",
	}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "Test University", req.InstitutionName)
	assert.Equal(t, recipientHex, req.Recipient)
}

func TestIssueCredentialRequestRejectsBadInput(t *testing.T) {
	cases := map[string]*IssueCredentialRequest{
		"bad recipient":   {Recipient: "nope", Type: "Degree", InstitutionName: "U"},
		"bad type":        {Recipient: recipientHex, Type: "Diploma Mill", InstitutionName: "U"},
		"missing name":    {Recipient: recipientHex, Type: "Degree"},
		"negative expiry": {Recipient: recipientHex, Type: "Degree", InstitutionName: "U", ExpiresAt: -1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			req.Normalize()
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestBatchIssueRequestValidate(t *testing.T) {
	req := &BatchIssueRequest{
		Recipients:      []string{recipientHex},
		Types:           []string{"Certificate"},
		InstitutionName: "Test University",
	}
	req.Normalize()
	require.NoError(t, req.Validate())

	empty := &BatchIssueRequest{InstitutionName: "Test University"}
	require.Error(t, empty.Validate())
}

func TestBatchVerifyRequestValidate(t *testing.T) {
	require.Error(t, (&BatchVerifyRequest{}).Validate())
	require.NoError(t, (&BatchVerifyRequest{TokenIDs: []uint64{1}}).Validate())
}
