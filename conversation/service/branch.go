package service

import (
	"context"
	"errors"
	"strings"
	"time"

	catalogmodels "llm-arena/backend/catalog/models"
	"llm-arena/backend/conversation/models"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/provider"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// finalWriteTimeout bounds terminal writes, which run detached from the
// request so a timed out branch can still be recorded.
const finalWriteTimeout = 10 * time.Second

type branchPlan struct {
	sessionID string
	message   models.Message
	model     *catalogmodels.Model
	history   []provider.Message
}

// branchRun is the state of one participant's generation
type branchRun struct {
	o       *Orchestrator
	plan    branchPlan
	out     chan<- models.StreamEvent
	log     *logger.Logger
	content strings.Builder
	seq     int
	dirty   int
	usage   *provider.Usage
}

// runBranch relays one backend stream. Chunks are emitted as they arrive and
// persisted in batches. Every outcome other than client cancellation ends
// with exactly one terminal event and one terminal write.
func (o *Orchestrator) runBranch(ctx context.Context, plan branchPlan, out chan<- models.StreamEvent) {
	bctx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()

	bctx, span := tracer.Start(bctx, "conversation.branch", trace.WithAttributes(
		attribute.String("session_id", plan.sessionID),
		attribute.String("message_id", plan.message.ID),
		attribute.String("participant", string(plan.message.Participant)),
		attribute.String("model", plan.model.Code),
	))
	defer span.End()

	b := &branchRun{
		o:    o,
		plan: plan,
		out:  out,
		log: o.log.WithSession(plan.sessionID).With(
			"message_id", plan.message.ID,
			"participant", plan.message.Participant,
		),
	}

	status, err := b.stream(ctx, bctx)
	o.metrics.branches.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("status", status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (b *branchRun) stream(ctx, bctx context.Context) (string, error) {
	o := b.o
	fragments, err := o.adapter.StreamCompletion(bctx, b.plan.model, b.plan.history, provider.Options{})
	if err != nil {
		return b.interrupted(ctx, bctx, err)
	}

	ticker := time.NewTicker(o.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case frag, ok := <-fragments:
			if !ok {
				if bctx.Err() != nil {
					return b.interrupted(ctx, bctx, bctx.Err())
				}
				return b.succeed(ctx)
			}
			if frag.Err != nil {
				return b.interrupted(ctx, bctx, frag.Err)
			}
			if frag.Usage != nil {
				b.usage = frag.Usage
			}
			if frag.Text == "" {
				continue
			}
			if !b.chunk(ctx, bctx, frag.Text) {
				return b.interrupted(ctx, bctx, ctx.Err())
			}

		case <-ticker.C:
			b.flush(bctx)

		case <-bctx.Done():
			return b.interrupted(ctx, bctx, bctx.Err())
		}
	}
}

func (b *branchRun) chunk(ctx, bctx context.Context, text string) bool {
	b.content.WriteString(text)
	b.seq++
	b.dirty++
	b.o.metrics.chunks.Add(bctx, 1, metric.WithAttributes(attribute.String("participant", string(b.plan.message.Participant))))

	if !b.emit(ctx, models.EventChunk, models.EventPayload{Content: text, ModelID: b.plan.model.ID}) {
		return false
	}
	if b.dirty >= b.o.cfg.FlushEveryChunks {
		b.flush(bctx)
	}
	return true
}

// flush persists partial content. A failed flush is not fatal: the terminal
// write stores the full content anyway.
func (b *branchRun) flush(ctx context.Context) {
	if b.dirty == 0 {
		return
	}
	if err := b.o.store.UpdateContent(ctx, b.plan.message.ID, b.content.String()); err != nil {
		b.log.Warn("Failed to persist partial content", "error", err)
		return
	}
	b.dirty = 0
}

func (b *branchRun) succeed(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return b.cancelled()
	}
	content := b.content.String()
	usage := models.Usage{
		PromptTokens:     estimateTokens(b.plan.history),
		CompletionTokens: len(strings.Fields(content)),
	}
	if b.usage != nil {
		if b.usage.PromptTokens > 0 {
			usage.PromptTokens = b.usage.PromptTokens
		}
		if b.usage.CompletionTokens > 0 {
			usage.CompletionTokens = b.usage.CompletionTokens
		}
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err := b.o.store.Complete(wctx, b.plan.message.ID, content, usage); err != nil {
		b.log.LogError(err, "Failed to complete message")
		b.emit(ctx, models.EventError, models.EventPayload{ModelID: b.plan.model.ID, FinishReason: "error", Error: "failed to store response"})
		return string(models.StatusFailed), err
	}

	b.log.Info("Branch completed", "chunks", b.seq, "completion_tokens", usage.CompletionTokens)
	b.emit(ctx, models.EventComplete, models.EventPayload{
		Content:      content,
		ModelID:      b.plan.model.ID,
		Usage:        &usage,
		FinishReason: "stop",
	})
	return string(models.StatusSuccess), nil
}

// interrupted settles a branch whose stream ended without success. Client
// cancellation leaves the message as it is; a timeout or backend failure
// fails it with whatever content arrived.
func (b *branchRun) interrupted(ctx, bctx context.Context, cause error) (string, error) {
	if ctx.Err() != nil {
		return b.cancelled()
	}

	var failure *apperrors.AdapterError
	switch {
	case errors.As(cause, &failure):
	case errors.Is(cause, context.DeadlineExceeded) || errors.Is(bctx.Err(), context.DeadlineExceeded):
		failure = apperrors.NewAdapterError(string(b.plan.model.Provider), b.plan.model.Code, context.DeadlineExceeded)
		failure.Timeout = true
		failure.Reason = "no response within " + b.o.cfg.BranchTimeout.String()
	default:
		failure = apperrors.NewAdapterError(string(b.plan.model.Provider), b.plan.model.Code, cause)
	}

	content := b.content.String()
	reason := failure.Error()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err := b.o.store.Fail(wctx, b.plan.message.ID, content, reason); err != nil {
		b.log.LogError(err, "Failed to record branch failure")
	}

	b.log.Warn("Branch failed", "reason", reason, "timeout", failure.Timeout, "chunks", b.seq)
	b.emit(ctx, models.EventError, models.EventPayload{
		Content:      content,
		ModelID:      b.plan.model.ID,
		FinishReason: "error",
		Error:        reason,
	})
	return string(models.StatusFailed), failure
}

func (b *branchRun) cancelled() (string, error) {
	b.log.Info("Branch cancelled by client", "chunks", b.seq)
	return "cancelled", nil
}

// emit publishes to the sink and the turn's channel. It reports false once
// the consumer has gone away.
func (b *branchRun) emit(ctx context.Context, kind models.EventKind, payload models.EventPayload) bool {
	ev := models.StreamEvent{
		SessionID:   b.plan.sessionID,
		MessageID:   b.plan.message.ID,
		Participant: b.plan.message.Participant,
		Kind:        kind,
		Seq:         b.seq,
		Payload:     payload,
	}
	if err := b.o.sink.Publish(context.WithoutCancel(ctx), Topic(ev.SessionID), ev); err != nil {
		b.log.Debug("Sink publish failed", "error", err)
	}

	select {
	case b.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
