package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

const institutionHex = "0x0000000000000000000000000000000000000010"

func TestOnboardRequestNormalizeAndValidate(t *testing.T) {
	req := &OnboardInstitutionRequest{
		Address: " " + institutionHex + " ",
		Name:    " Test University ",
		Website: "https://test.edu",
		Email:   "Registrar@Test.EDU",
	}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "registrar@test.edu", req.Email)
	assert.Equal(t, "Test University", req.Name)
}

func TestOnboardRequestRejectsBadInput(t *testing.T) {
	cases := map[string]*OnboardInstitutionRequest{
		"bad address":  {Address: "nope", Name: "U"},
		"missing name": {Address: institutionHex},
		"bad email":    {Address: institutionHex, Name: "U", Email: "not-an-email"},
		"bad website":  {Address: institutionHex, Name: "U", Website: "not a url"},
		"bad document": {Address: institutionHex, Name: "U", DocumentHash: "zzzz"},
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
