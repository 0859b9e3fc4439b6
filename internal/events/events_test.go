package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Publish(_ context.Context, ev Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func TestEmit_StampsCurrentBlock(t *testing.T) {
	block := uint64(7)
	log := NewLog(WithBlockFn(func() uint64 { return block }))

	log.Emit("CredentialLedger", "CredentialIssued", map[string]string{"token_id": "0"})
	block = 9
	log.Emit("CredentialLedger", "CredentialRevoked", map[string]string{"token_id": "0"})

	all := log.Query("CredentialLedger", 0, 0)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(7), all[0].Block)
	assert.Equal(t, uint64(9), all[1].Block)
}

func TestQuery_FiltersByContractAndRange(t *testing.T) {
	block := uint64(0)
	log := NewLog(WithBlockFn(func() uint64 { return block }))

	for i := uint64(1); i <= 5; i++ {
		block = i
		log.Emit("InstitutionRegistry", "InstitutionRegistered", nil)
		log.Emit("CredentialLedger", "CredentialIssued", nil)
	}

	registry := log.Query("InstitutionRegistry", 2, 4)
	require.Len(t, registry, 3)
	for _, ev := range registry {
		assert.Equal(t, "InstitutionRegistry", ev.Contract)
		assert.GreaterOrEqual(t, ev.Block, uint64(2))
		assert.LessOrEqual(t, ev.Block, uint64(4))
	}

	assert.Len(t, log.Query("", 0, 0), 10)
}

func TestEmit_ForwardsToSinks(t *testing.T) {
	sink := &captureSink{}
	log := NewLog(WithSink(sink))

	log.Emit("VerificationAggregator", "CredentialVerified", map[string]string{"token_id": "3"})

	require.Len(t, sink.events, 1)
	assert.Equal(t, "CredentialVerified", sink.events[0].Name)
	assert.Equal(t, "3", sink.events[0].Attributes["token_id"])
}

func TestEmit_SinkFailureDoesNotDropLogEntry(t *testing.T) {
	sink := &captureSink{err: errors.New("broker down")}
	log := NewLog(WithSink(sink))

	log.Emit("CredentialLedger", "CredentialIssued", nil)

	assert.Equal(t, 1, log.Len())
}
