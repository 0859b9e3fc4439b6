package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Atmajo/credora-server/internal/chain"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/lifecycle/mocks"
	"github.com/Atmajo/credora-server/pkg/platform/circuit"
)

type ManagerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockBackend *mocks.MockBackend
	mockStore   *mocks.MockStore
	manager     *lifecycle.Manager
}

func (s *ManagerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockBackend = mocks.NewMockBackend(s.ctrl)
	s.mockStore = mocks.NewMockStore(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.manager = lifecycle.New(s.mockBackend, s.mockStore,
		lifecycle.WithLogger(logger),
		lifecycle.WithPollInterval(5*time.Millisecond),
		lifecycle.WithConfirmTimeout(250*time.Millisecond),
		lifecycle.WithMinConfirmations(2),
	)
}

func (s *ManagerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

var (
	testSender = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testHash   = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

func noopCall() chain.Call {
	return chain.Call{
		Contract: "InstitutionRegistry",
		Method:   "registerInstitution",
		Execute:  func() error { return nil },
	}
}

func (s *ManagerSuite) expectSubmit() {
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(53000), nil)
	s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).Return(testHash, nil)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *ManagerSuite) TestSubmitRecordsPendingTransaction() {
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(53000), nil)
	s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).Return(testHash, nil)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *lifecycle.PendingTransaction) error {
			s.Equal(testHash, tx.Hash)
			s.Equal(lifecycle.KindRegister, tx.Kind)
			s.Equal(lifecycle.StatusSubmitted, tx.Status)
			s.Equal(uint64(53000), tx.GasEstimate)
			s.True(tx.Deadline.After(tx.SubmittedAt))
			return nil
		})

	tx, err := s.manager.Submit(context.Background(), lifecycle.KindRegister, testSender, noopCall())
	s.Require().NoError(err)
	s.Equal(testHash, tx.Hash)
}

func (s *ManagerSuite) TestSubmitGasEstimateFailure() {
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), errors.New("node down"))

	_, err := s.manager.Submit(context.Background(), lifecycle.KindIssue, testSender, noopCall())
	s.Require().Error(err)
}

func (s *ManagerSuite) TestSubmitFailsFastWhileCircuitOpen() {
	manager := lifecycle.New(s.mockBackend, s.mockStore,
		lifecycle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		lifecycle.WithBreaker(circuit.New("chain-node", circuit.WithFailureThreshold(1))),
	)
	// One estimate failure trips the breaker; the next submit must not touch
	// the backend at all.
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), errors.New("node down"))

	_, err := manager.Submit(context.Background(), lifecycle.KindIssue, testSender, noopCall())
	s.Require().Error(err)

	_, err = manager.Submit(context.Background(), lifecycle.KindIssue, testSender, noopCall())
	s.Require().ErrorIs(err, lifecycle.ErrCircuitOpen)
}

func (s *ManagerSuite) TestAwaitCancellationLeavesRecordUntouched() {
	// An aborted caller is not a timeout: the record stays submitted so a
	// later status check can still resolve it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.manager.AwaitConfirmation(ctx, testHash)
	s.Require().ErrorIs(err, context.Canceled)
}

func (s *ManagerSuite) TestRunConfirmsAtRequiredDepth() {
	s.expectSubmit()
	receipt := &chain.Receipt{TxHash: testHash, Status: 1, BlockNumber: 5}
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).Return(receipt, nil).AnyTimes()
	s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(7), nil).AnyTimes()
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusConfirmed, uint64(5), "").Return(nil)

	outcome, err := s.manager.Run(context.Background(), lifecycle.KindIssue, testSender, noopCall())
	s.Require().NoError(err)
	s.True(outcome.Confirmed())
	s.Equal(uint64(5), outcome.Tx.BlockNumber)
}

func (s *ManagerSuite) TestRunWaitsForDepthBeforeConfirming() {
	s.expectSubmit()
	receipt := &chain.Receipt{TxHash: testHash, Status: 1, BlockNumber: 5}
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).Return(receipt, nil).AnyTimes()
	// A receipt at head is not confirmation; the wait continues until the
	// chain advances two blocks past it.
	gomock.InOrder(
		s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(5), nil),
		s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(6), nil),
		s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(7), nil).AnyTimes(),
	)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusConfirmed, uint64(5), "").Return(nil)

	outcome, err := s.manager.Run(context.Background(), lifecycle.KindIssue, testSender, noopCall())
	s.Require().NoError(err)
	s.True(outcome.Confirmed())
}

func (s *ManagerSuite) TestRunRevertedTransaction() {
	s.expectSubmit()
	receipt := &chain.Receipt{TxHash: testHash, Status: 0, BlockNumber: 5, Reason: "InstitutionAlreadyRegistered"}
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).Return(receipt, nil)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusFailed, uint64(5), "InstitutionAlreadyRegistered").Return(nil)

	outcome, err := s.manager.Run(context.Background(), lifecycle.KindRegister, testSender, noopCall())
	s.Require().NoError(err)
	s.Equal(lifecycle.StatusFailed, outcome.Status)
	s.Equal("InstitutionAlreadyRegistered", outcome.RevertReason)
	s.False(outcome.Confirmed())
}

func (s *ManagerSuite) TestRunTimesOutWhenReceiptNeverAppears() {
	s.expectSubmit()
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).
		Return(nil, chain.ErrReceiptNotFound).AnyTimes()
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusTimedOut, uint64(0), "").Return(nil)

	outcome, err := s.manager.Run(context.Background(), lifecycle.KindRevoke, testSender, noopCall())
	s.Require().NoError(err)
	s.Equal(lifecycle.StatusTimedOut, outcome.Status)
	s.Nil(outcome.Receipt)
}

func (s *ManagerSuite) TestAwaitDeadlineWinsOverPollTimer() {
	// Deadline shorter than one poll interval: the loop must exit on the
	// deadline without ever probing for a receipt.
	manager := lifecycle.New(s.mockBackend, s.mockStore,
		lifecycle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		lifecycle.WithPollInterval(time.Hour),
		lifecycle.WithConfirmTimeout(10*time.Millisecond),
	)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusTimedOut, uint64(0), "").Return(nil)

	_, err := manager.AwaitConfirmation(context.Background(), testHash)
	s.Require().ErrorIs(err, lifecycle.ErrAwaitTimeout)
}

func (s *ManagerSuite) TestAwaitToleratesTransientNodeErrors() {
	gomock.InOrder(
		s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).Return(nil, errors.New("connection refused")),
		s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).
			Return(&chain.Receipt{TxHash: testHash, Status: 1, BlockNumber: 3}, nil).AnyTimes(),
	)
	s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(9), nil).AnyTimes()
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusConfirmed, uint64(3), "").Return(nil)

	receipt, err := s.manager.AwaitConfirmation(context.Background(), testHash)
	s.Require().NoError(err)
	s.Equal(uint64(3), receipt.BlockNumber)
}

func (s *ManagerSuite) TestCheckStatusLeavesTerminalRecordAlone() {
	tx := &lifecycle.PendingTransaction{Hash: testHash, Status: lifecycle.StatusConfirmed, BlockNumber: 4}
	s.mockStore.EXPECT().Find(gomock.Any(), testHash).Return(tx, nil)

	got, err := s.manager.CheckStatus(context.Background(), testHash)
	s.Require().NoError(err)
	s.Equal(lifecycle.StatusConfirmed, got.Status)
}

func (s *ManagerSuite) TestCheckStatusUpgradesTimedOutRecord() {
	// A transaction abandoned at the deadline can still land later. The
	// out-of-band probe upgrades the record once the receipt is decisive.
	stale := &lifecycle.PendingTransaction{Hash: testHash, Status: lifecycle.StatusTimedOut}
	upgraded := &lifecycle.PendingTransaction{Hash: testHash, Status: lifecycle.StatusConfirmed, BlockNumber: 8}
	s.mockStore.EXPECT().Find(gomock.Any(), testHash).Return(stale, nil)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).
		Return(&chain.Receipt{TxHash: testHash, Status: 1, BlockNumber: 8}, nil)
	s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(11), nil)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusConfirmed, uint64(8), "").Return(nil)
	s.mockStore.EXPECT().Find(gomock.Any(), testHash).Return(upgraded, nil)

	got, err := s.manager.CheckStatus(context.Background(), testHash)
	s.Require().NoError(err)
	s.Equal(lifecycle.StatusConfirmed, got.Status)
	s.Equal(uint64(8), got.BlockNumber)
}

func (s *ManagerSuite) TestCheckStatusKeepsRecordWhenDepthInsufficient() {
	stale := &lifecycle.PendingTransaction{Hash: testHash, Status: lifecycle.StatusTimedOut}
	s.mockStore.EXPECT().Find(gomock.Any(), testHash).Return(stale, nil)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).
		Return(&chain.Receipt{TxHash: testHash, Status: 1, BlockNumber: 8}, nil)
	s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(9), nil)

	got, err := s.manager.CheckStatus(context.Background(), testHash)
	s.Require().NoError(err)
	s.Equal(lifecycle.StatusTimedOut, got.Status)
}

func (s *ManagerSuite) TestCheckStatusRecordsRevert() {
	stale := &lifecycle.PendingTransaction{Hash: testHash, Status: lifecycle.StatusSubmitted}
	failed := &lifecycle.PendingTransaction{Hash: testHash, Status: lifecycle.StatusFailed, BlockNumber: 8, Reason: "NotAuthorizedIssuer"}
	s.mockStore.EXPECT().Find(gomock.Any(), testHash).Return(stale, nil)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), testHash).
		Return(&chain.Receipt{TxHash: testHash, Status: 0, BlockNumber: 8, Reason: "NotAuthorizedIssuer"}, nil)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), testHash, lifecycle.StatusFailed, uint64(8), "NotAuthorizedIssuer").Return(nil)
	s.mockStore.EXPECT().Find(gomock.Any(), testHash).Return(failed, nil)

	got, err := s.manager.CheckStatus(context.Background(), testHash)
	s.Require().NoError(err)
	s.Equal(lifecycle.StatusFailed, got.Status)
}

type stepRecorder struct {
	order []string
}

func (s *ManagerSuite) TestWorkflowRunsStepsInOrder() {
	var recorder stepRecorder
	hashA := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	hashB := common.HexToHash("0x3333333333333333333333333333333333333333333333333333333333333333")

	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(53000), nil).Times(2)
	gomock.InOrder(
		s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ common.Address, call chain.Call) (common.Hash, error) {
				s.Require().NoError(call.Execute())
				return hashA, nil
			}),
		s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ common.Address, call chain.Call) (common.Hash, error) {
				// The second step submits only after the first confirmed.
				s.Equal([]string{"register"}, recorder.order)
				s.Require().NoError(call.Execute())
				return hashB, nil
			}),
	)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), hashA).
		Return(&chain.Receipt{TxHash: hashA, Status: 1, BlockNumber: 2}, nil).AnyTimes()
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), hashB).
		Return(&chain.Receipt{TxHash: hashB, Status: 1, BlockNumber: 3}, nil).AnyTimes()
	s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(10), nil).AnyTimes()
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), hashA, lifecycle.StatusConfirmed, uint64(2), "").Return(nil)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), hashB, lifecycle.StatusConfirmed, uint64(3), "").Return(nil)

	steps := []lifecycle.Step{
		{
			Name: "register",
			Kind: lifecycle.KindRegister,
			From: testSender,
			Call: chain.Call{Contract: "InstitutionRegistry", Method: "registerInstitution", Execute: func() error {
				recorder.order = append(recorder.order, "register")
				return nil
			}},
		},
		{
			Name: "verify",
			Kind: lifecycle.KindVerify,
			From: testSender,
			Call: chain.Call{Contract: "InstitutionRegistry", Method: "verifyInstitution", Execute: func() error {
				recorder.order = append(recorder.order, "verify")
				return nil
			}},
		},
	}

	result, err := s.manager.RunWorkflow(context.Background(), "onboard", steps)
	s.Require().NoError(err)
	s.Equal(lifecycle.WorkflowCompleted, result.Status)
	s.Equal([]string{"register", "verify"}, recorder.order)
	s.Len(result.Steps, 2)
}

func (s *ManagerSuite) TestWorkflowSkipsStepWhenEndStateHolds() {
	hashB := common.HexToHash("0x3333333333333333333333333333333333333333333333333333333333333333")
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(53000), nil)
	s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).Return(hashB, nil)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), hashB).
		Return(&chain.Receipt{TxHash: hashB, Status: 1, BlockNumber: 2}, nil).AnyTimes()
	s.mockBackend.EXPECT().BlockNumber(gomock.Any()).Return(uint64(10), nil).AnyTimes()
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), hashB, lifecycle.StatusConfirmed, uint64(2), "").Return(nil)

	steps := []lifecycle.Step{
		{
			Name: "register",
			Kind: lifecycle.KindRegister,
			From: testSender,
			Skip: func(context.Context) (bool, error) { return true, nil },
			Call: noopCall(),
		},
		{
			Name: "verify",
			Kind: lifecycle.KindVerify,
			From: testSender,
			Call: noopCall(),
		},
	}

	result, err := s.manager.RunWorkflow(context.Background(), "onboard", steps)
	s.Require().NoError(err)
	s.Equal(lifecycle.WorkflowCompleted, result.Status)
	s.True(result.Steps[0].Skipped)
	s.False(result.Steps[1].Skipped)
}

func (s *ManagerSuite) TestWorkflowPendingOnTimeout() {
	hashA := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(53000), nil)
	s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).Return(hashA, nil)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), hashA).
		Return(nil, chain.ErrReceiptNotFound).AnyTimes()
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), hashA, lifecycle.StatusTimedOut, uint64(0), "").Return(nil)

	verifyRan := false
	steps := []lifecycle.Step{
		{Name: "register", Kind: lifecycle.KindRegister, From: testSender, Call: noopCall()},
		{Name: "verify", Kind: lifecycle.KindVerify, From: testSender, Call: chain.Call{
			Contract: "InstitutionRegistry",
			Method:   "verifyInstitution",
			Execute:  func() error { verifyRan = true; return nil },
		}},
	}

	result, err := s.manager.RunWorkflow(context.Background(), "onboard", steps)
	s.Require().NoError(err)
	s.Equal(lifecycle.WorkflowPending, result.Status)
	s.Require().NotNil(result.PendingTx)
	s.Equal(hashA, result.PendingTx.Hash)
	s.False(verifyRan, "a later step must not run past an unconfirmed one")
	s.Len(result.Steps, 1)
}

func (s *ManagerSuite) TestWorkflowFailedOnRevert() {
	hashA := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	s.mockBackend.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(53000), nil)
	s.mockBackend.EXPECT().SubmitTransaction(gomock.Any(), testSender, gomock.Any()).Return(hashA, nil)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mockBackend.EXPECT().TransactionReceipt(gomock.Any(), hashA).
		Return(&chain.Receipt{TxHash: hashA, Status: 0, BlockNumber: 2, Reason: "NotAdmin"}, nil)
	s.mockStore.EXPECT().UpdateStatus(gomock.Any(), hashA, lifecycle.StatusFailed, uint64(2), "NotAdmin").Return(nil)

	steps := []lifecycle.Step{
		{Name: "verify", Kind: lifecycle.KindVerify, From: testSender, Call: noopCall()},
	}

	result, err := s.manager.RunWorkflow(context.Background(), "onboard", steps)
	s.Require().NoError(err)
	s.Equal(lifecycle.WorkflowFailed, result.Status)
	s.Equal("verify", result.FailedStep)
	s.Equal("NotAdmin", result.RevertReason)
}
