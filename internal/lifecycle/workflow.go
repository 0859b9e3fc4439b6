package lifecycle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Atmajo/credora-server/internal/chain"
)

// WorkflowStatus is the overall outcome of a compound workflow.
type WorkflowStatus string

const (
	// WorkflowCompleted means every step confirmed at the required depth.
	WorkflowCompleted WorkflowStatus = "completed"
	// WorkflowPending means a step timed out awaiting confirmation. The
	// workflow is not failed: the caller polls the returned hash later.
	WorkflowPending WorkflowStatus = "pending"
	// WorkflowFailed means a step reverted on-chain.
	WorkflowFailed WorkflowStatus = "failed"
)

// Step is one ordered unit of a compound workflow. Skip is the idempotency
// guard: when it reports true the target end-state already holds on-chain and
// the step's mutation is skipped entirely.
type Step struct {
	Name string
	Kind Kind
	From common.Address
	Call chain.Call
	Skip func(ctx context.Context) (bool, error)
}

// StepResult records one step's resolution.
type StepResult struct {
	Name    string
	Skipped bool
	Tx      *PendingTransaction
	Receipt *chain.Receipt
}

// WorkflowResult is the aggregate outcome of RunWorkflow.
type WorkflowResult struct {
	ID     uuid.UUID
	Status WorkflowStatus
	Steps  []StepResult
	// PendingTx is set when Status is WorkflowPending: the transaction whose
	// confirmation is still unknown.
	PendingTx *PendingTransaction
	// FailedStep and RevertReason are set when Status is WorkflowFailed.
	FailedStep   string
	RevertReason string
}

// RunWorkflow executes steps strictly in order: step N+1 is never submitted
// before step N confirms at the required depth. A timed-out step stops the
// workflow with WorkflowPending rather than an error; a reverted step stops
// it with WorkflowFailed.
func (m *Manager) RunWorkflow(ctx context.Context, name string, steps []Step) (*WorkflowResult, error) {
	result := &WorkflowResult{
		ID:     uuid.New(),
		Status: WorkflowCompleted,
	}

	ctx, span := otel.Tracer("lifecycle").Start(ctx, "workflow."+name,
		trace.WithAttributes(
			attribute.String("workflow.id", result.ID.String()),
			attribute.Int("workflow.steps", len(steps)),
		))
	defer span.End()

	for _, step := range steps {
		stepResult, err := m.runStep(ctx, span, step)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("workflow %s step %s: %w", name, step.Name, err)
		}
		result.Steps = append(result.Steps, *stepResult)

		if stepResult.Skipped {
			continue
		}
		switch stepResult.Tx.Status {
		case StatusTimedOut:
			result.Status = WorkflowPending
			result.PendingTx = stepResult.Tx
			span.SetAttributes(attribute.String("workflow.pending_tx", stepResult.Tx.Hash.Hex()))
			m.logger.Warn("workflow left pending",
				"workflow", name,
				"step", step.Name,
				"tx_hash", stepResult.Tx.Hash.Hex(),
			)
			return result, nil
		case StatusFailed:
			result.Status = WorkflowFailed
			result.FailedStep = step.Name
			if stepResult.Receipt != nil {
				result.RevertReason = stepResult.Receipt.Reason
			}
			span.SetStatus(codes.Error, "step reverted")
			return result, nil
		}
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (m *Manager) runStep(ctx context.Context, span trace.Span, step Step) (*StepResult, error) {
	if step.Skip != nil {
		skip, err := step.Skip(ctx)
		if err != nil {
			return nil, fmt.Errorf("idempotency check: %w", err)
		}
		if skip {
			span.AddEvent("step skipped", trace.WithAttributes(attribute.String("step", step.Name)))
			m.logger.Info("workflow step skipped, end-state already holds", "step", step.Name)
			return &StepResult{Name: step.Name, Skipped: true}, nil
		}
	}

	outcome, err := m.Run(ctx, step.Kind, step.From, step.Call)
	if err != nil {
		return nil, err
	}
	span.AddEvent("step resolved", trace.WithAttributes(
		attribute.String("step", step.Name),
		attribute.String("status", string(outcome.Status)),
	))
	return &StepResult{Name: step.Name, Tx: outcome.Tx, Receipt: outcome.Receipt}, nil
}
