package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atmajo/credora-server/internal/chain"
	"github.com/Atmajo/credora-server/internal/events"
)

var (
	owner  = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	admin  = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
	instA  = common.HexToAddress("0xbbbb000000000000000000000000000000000001")
	instB  = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	instC  = common.HexToAddress("0xbbbb000000000000000000000000000000000003")
	nobody = common.HexToAddress("0xcccc000000000000000000000000000000000001")
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(owner)
}

func register(t *testing.T, r *Registry, addr common.Address) {
	t.Helper()
	require.NoError(t, r.RegisterInstitution(owner, addr, "Test University", "https://test.edu", "admin@test.edu", "0xdoc"))
}

func registerAndVerify(t *testing.T, r *Registry, addr common.Address) {
	t.Helper()
	register(t, r, addr)
	require.NoError(t, r.VerifyInstitution(owner, addr))
}

func TestRegisterInstitution(t *testing.T) {
	r := newRegistry(t)

	require.NoError(t, r.RegisterInstitution(owner, instA, "Test University", "https://test.edu", "admin@test.edu", "0xdoc"))

	inst, err := r.GetInstitution(instA)
	require.NoError(t, err)
	assert.Equal(t, "Test University", inst.Name)
	assert.False(t, inst.Verified)
	assert.False(t, r.IsAuthorizedIssuer(instA), "registration alone must not authorize")
}

func TestRegisterInstitution_Duplicate(t *testing.T) {
	r := newRegistry(t)
	register(t, r, instA)

	err := r.RegisterInstitution(owner, instA, "Other Name", "", "", "")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterInstitution_InvalidInput(t *testing.T) {
	r := newRegistry(t)

	assert.ErrorIs(t, r.RegisterInstitution(owner, common.Address{}, "Name", "", "", ""), ErrInvalidInput)
	assert.ErrorIs(t, r.RegisterInstitution(owner, instA, "   ", "", "", ""), ErrInvalidInput)
}

func TestRegisterInstitution_RequiresAdmin(t *testing.T) {
	r := newRegistry(t)

	err := r.RegisterInstitution(nobody, instA, "Name", "", "", "")
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestVerifyInstitution(t *testing.T) {
	r := newRegistry(t)
	register(t, r, instA)

	require.NoError(t, r.VerifyInstitution(owner, instA))

	assert.True(t, r.IsAuthorizedIssuer(instA))
	inst, err := r.GetInstitution(instA)
	require.NoError(t, err)
	assert.True(t, inst.Verified)

	assert.ErrorIs(t, r.VerifyInstitution(owner, instA), ErrAlreadyVerified)
	assert.ErrorIs(t, r.VerifyInstitution(owner, instB), ErrNotRegistered)
}

func TestRevokeInstitution_RecordPersists(t *testing.T) {
	r := newRegistry(t)
	registerAndVerify(t, r, instA)

	require.NoError(t, r.RevokeInstitution(owner, instA))

	assert.False(t, r.IsAuthorizedIssuer(instA))
	inst, err := r.GetInstitution(instA)
	require.NoError(t, err, "record must survive revocation")
	assert.False(t, inst.Verified)

	assert.ErrorIs(t, r.RevokeInstitution(owner, instA), ErrNotAuthorized)
}

func TestRevokeInstitution_NeverAuthorized(t *testing.T) {
	r := newRegistry(t)
	register(t, r, instA)

	assert.ErrorIs(t, r.RevokeInstitution(owner, instA), ErrNotAuthorized)
}

func TestIssuerList_SwapAndPopRemoval(t *testing.T) {
	r := newRegistry(t)
	registerAndVerify(t, r, instA)
	registerAndVerify(t, r, instB)
	registerAndVerify(t, r, instC)

	require.NoError(t, r.RevokeInstitution(owner, instA))

	issuers := r.GetAllIssuers()
	assert.ElementsMatch(t, []common.Address{instB, instC}, issuers)
	assert.Equal(t, 2, r.GetVerifiedInstitutionsCount())

	// Re-verification after revocation restores membership.
	require.NoError(t, r.VerifyInstitution(owner, instA))
	assert.True(t, r.IsAuthorizedIssuer(instA))
	assert.Equal(t, 3, r.GetVerifiedInstitutionsCount())
}

func TestAdmins(t *testing.T) {
	r := newRegistry(t)

	assert.True(t, r.IsAdmin(owner), "owner is always admin")
	assert.False(t, r.IsAdmin(admin))

	assert.ErrorIs(t, r.AddAdmin(admin, admin), ErrNotOwner)
	require.NoError(t, r.AddAdmin(owner, admin))
	assert.True(t, r.IsAdmin(admin))

	// Granted admin can register and verify.
	require.NoError(t, r.RegisterInstitution(admin, instA, "Name", "", "", ""))
	require.NoError(t, r.VerifyInstitution(admin, instA))

	require.NoError(t, r.RemoveAdmin(owner, admin))
	assert.False(t, r.IsAdmin(admin))
	assert.ErrorIs(t, r.RegisterInstitution(admin, instB, "Name", "", "", ""), ErrNotAdmin)
}

func TestIncrementCredentialCount(t *testing.T) {
	r := newRegistry(t)
	registerAndVerify(t, r, instA)

	require.NoError(t, r.IncrementCredentialCount(instA))
	require.NoError(t, r.IncrementCredentialCount(instA))

	inst, err := r.GetInstitution(instA)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), inst.CredentialsIssued)

	assert.ErrorIs(t, r.IncrementCredentialCount(instB), ErrNotAuthorizedIssuer)

	// Counter increments are refused once the issuer is revoked.
	require.NoError(t, r.RevokeInstitution(owner, instA))
	assert.ErrorIs(t, r.IncrementCredentialCount(instA), ErrNotAuthorizedIssuer)
}

func TestUpdateInstitutionInfo(t *testing.T) {
	r := newRegistry(t)
	registerAndVerify(t, r, instA)

	require.NoError(t, r.UpdateInstitutionInfo(owner, instA, "Renamed", "https://renamed.edu", "new@renamed.edu"))
	assert.ErrorIs(t, r.UpdateInstitutionInfo(owner, instA, "", "", ""), ErrInvalidInput)
	assert.ErrorIs(t, r.UpdateInstitutionInfo(owner, instB, "Name", "", ""), ErrNotRegistered)

	inst, err := r.GetInstitution(instA)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", inst.Name)
	assert.True(t, inst.Verified, "info update must not touch authorization")
	assert.True(t, r.IsAuthorizedIssuer(instA))
}

func TestUpdateInstitutionDocuments(t *testing.T) {
	r := newRegistry(t)
	register(t, r, instA)

	require.NoError(t, r.UpdateInstitutionDocuments(owner, instA, "0xnewdoc"))
	inst, err := r.GetInstitution(instA)
	require.NoError(t, err)
	assert.Equal(t, "0xnewdoc", inst.DocumentHash)

	assert.ErrorIs(t, r.UpdateInstitutionDocuments(nobody, instA, "0x"), ErrNotAdmin)
}

func TestGetInstitutionStats(t *testing.T) {
	r := newRegistry(t)
	registerAndVerify(t, r, instA)
	registerAndVerify(t, r, instB)
	register(t, r, instC)
	require.NoError(t, r.IncrementCredentialCount(instA))
	require.NoError(t, r.IncrementCredentialCount(instB))
	require.NoError(t, r.IncrementCredentialCount(instB))

	stats := r.GetInstitutionStats()
	assert.Equal(t, 3, stats.TotalRegistered)
	assert.Equal(t, 2, stats.TotalVerified)
	assert.Equal(t, uint64(3), stats.TotalCredentialsIssued)
}

func TestRegisterEmitsThroughChainBackedLog(t *testing.T) {
	// The production wiring stamps events with the live chain height: the
	// contract emits from inside SubmitTransaction while the event log reads
	// the height of that same backend.
	backend := chain.NewSimulated()
	log := events.NewLog(events.WithBlockFn(backend.Height))
	r := New(owner, WithEmitter(log))

	hash, err := backend.SubmitTransaction(context.Background(), owner, chain.Call{
		Contract: ContractName,
		Method:   "registerInstitution",
		Execute: func() error {
			return r.RegisterInstitution(owner, instA, "Test University", "https://test.edu", "admin@test.edu", "0xdoc")
		},
	})
	require.NoError(t, err)

	receipt, err := backend.TransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.False(t, receipt.Reverted())

	evs := log.Query(ContractName, 0, backend.Height())
	require.Len(t, evs, 1)
	assert.Equal(t, "InstitutionRegistered", evs[0].Name)
	assert.Equal(t, receipt.BlockNumber, evs[0].Block)
}
