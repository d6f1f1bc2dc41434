package service

import (
	"context"
	"fmt"
	"time"

	catalogmodels "llm-arena/backend/catalog/models"
	"llm-arena/backend/conversation/models"
	"llm-arena/backend/conversation/repository"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/provider"
	sessionmodels "llm-arena/backend/session/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Adapter streams a completion from whichever backend serves model
type Adapter interface {
	StreamCompletion(ctx context.Context, model *catalogmodels.Model, history []provider.Message, opts provider.Options) (<-chan provider.Fragment, error)
}

// SessionGateway supplies sessions and the models answering them
type SessionGateway interface {
	Get(ctx context.Context, id string) (*sessionmodels.Session, error)
	ResolveParticipantModels(ctx context.Context, session *sessionmodels.Session) (*catalogmodels.Model, *catalogmodels.Model, error)
}

// ModelResolver looks up an active model by id
type ModelResolver interface {
	GetActive(ctx context.Context, id string) (*catalogmodels.Model, error)
}

type Config struct {
	// FlushEveryChunks persists partial content after this many chunks
	FlushEveryChunks int
	// FlushInterval persists pending partial content at least this often
	FlushInterval time.Duration
	// BranchTimeout bounds each backend call
	BranchTimeout time.Duration
	EventBuffer   int
}

func DefaultConfig() Config {
	return Config{
		FlushEveryChunks: 10,
		FlushInterval:    2 * time.Second,
		BranchTimeout:    2 * time.Minute,
		EventBuffer:      64,
	}
}

type Orchestrator struct {
	store    repository.TreeStore
	adapter  Adapter
	sessions SessionGateway
	models   ModelResolver
	sink     Sink
	cfg      Config
	log      *logger.Logger
	metrics  streamMetrics
}

func NewOrchestrator(store repository.TreeStore, adapter Adapter, sessions SessionGateway, models ModelResolver, sink Sink, cfg Config, log *logger.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.FlushEveryChunks <= 0 {
		cfg.FlushEveryChunks = def.FlushEveryChunks
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = def.BranchTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &Orchestrator{
		store:    store,
		adapter:  adapter,
		sessions: sessions,
		models:   models,
		sink:     sink,
		cfg:      cfg,
		log:      log.WithComponent("orchestrator"),
		metrics:  newStreamMetrics(),
	}
}

// Turn is a generation in flight. Events is closed once every participant
// has emitted its terminal event or the caller's context is cancelled.
type Turn struct {
	UserMessage *models.Message           `json:"user_message,omitempty"`
	Responses   []models.Message          `json:"responses"`
	Events      <-chan models.StreamEvent `json:"-"`
}

type target struct {
	participant models.Participant
	model       *catalogmodels.Model
	parentIDs   []string
	metadata    map[string]any
}

func targetsFor(modelA, modelB *catalogmodels.Model, parentIDs []string) []target {
	if modelB == nil {
		return []target{{participant: models.ParticipantNone, model: modelA, parentIDs: parentIDs}}
	}
	return []target{
		{participant: models.ParticipantA, model: modelA, parentIDs: parentIDs},
		{participant: models.ParticipantB, model: modelB, parentIDs: parentIDs},
	}
}

// StreamTurn stores the user message, then streams one response per
// session participant. Errors before fan-out are returned directly; backend
// failures arrive as error events for the affected participant only.
func (o *Orchestrator) StreamTurn(ctx context.Context, sessionID, content string, parentIDs []string) (*Turn, error) {
	ctx, span := tracer.Start(ctx, "conversation.StreamTurn", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("parents", len(parentIDs)),
	))
	defer span.End()

	turn, err := o.streamTurn(ctx, sessionID, content, parentIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return turn, err
}

func (o *Orchestrator) streamTurn(ctx context.Context, sessionID, content string, parentIDs []string) (*Turn, error) {
	if content == "" {
		return nil, fmt.Errorf("empty message: %w", apperrors.ErrInvalidArgument)
	}
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	modelA, modelB, err := o.sessions.ResolveParticipantModels(ctx, session)
	if err != nil {
		return nil, err
	}

	user := &models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   content,
		Status:    models.StatusSuccess,
		ParentIDs: parentIDs,
	}
	if _, err := o.store.AppendMessage(ctx, user); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	responses, events, err := o.launch(ctx, session.ID, targetsFor(modelA, modelB, []string{user.ID}), user.Position-1, user)
	if err != nil {
		return nil, err
	}
	return &Turn{UserMessage: user, Responses: responses, Events: events}, nil
}

// RegenerateTurn asks for a fresh answer next to an existing assistant
// message. The original is kept; the new message shares its parents.
// overrideModelID optionally swaps the model.
func (o *Orchestrator) RegenerateTurn(ctx context.Context, messageID, overrideModelID string) (*Turn, error) {
	original, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if original.Role != models.RoleAssistant {
		return nil, fmt.Errorf("only assistant messages can be regenerated: %w", apperrors.ErrInvalidArgument)
	}
	session, err := o.sessions.Get(ctx, original.SessionID)
	if err != nil {
		return nil, err
	}

	modelID := original.ModelID
	if overrideModelID != "" {
		modelID = overrideModelID
	}
	model, err := o.models.GetActive(ctx, modelID)
	if err != nil {
		return nil, err
	}

	cutoff, err := o.lastParentPosition(ctx, original.ParentIDs)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"regenerated_from": original.ID}
	if overrideModelID != "" && overrideModelID != original.ModelID {
		meta["model_override"] = overrideModelID
	}
	responses, events, err := o.launch(ctx, session.ID, []target{{
		participant: original.Participant,
		model:       model,
		parentIDs:   original.ParentIDs,
		metadata:    meta,
	}}, cutoff, nil)
	if err != nil {
		return nil, err
	}
	return &Turn{Responses: responses, Events: events}, nil
}

// BranchTurn adds an alternative user prompt beside an existing one and
// streams answers to it like a normal turn.
func (o *Orchestrator) BranchTurn(ctx context.Context, messageID, content string) (*Turn, error) {
	if content == "" {
		return nil, fmt.Errorf("empty message: %w", apperrors.ErrInvalidArgument)
	}
	original, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if original.Role != models.RoleUser {
		return nil, fmt.Errorf("only user messages can be branched: %w", apperrors.ErrInvalidArgument)
	}
	session, err := o.sessions.Get(ctx, original.SessionID)
	if err != nil {
		return nil, err
	}
	modelA, modelB, err := o.sessions.ResolveParticipantModels(ctx, session)
	if err != nil {
		return nil, err
	}
	cutoff, err := o.lastParentPosition(ctx, original.ParentIDs)
	if err != nil {
		return nil, err
	}

	user := &models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   content,
		Status:    models.StatusSuccess,
		ParentIDs: original.ParentIDs,
		Metadata: map[string]any{
			"branch_type":   "user_branch",
			"branched_from": original.ID,
		},
	}
	if _, err := o.store.AppendMessage(ctx, user); err != nil {
		return nil, fmt.Errorf("store branch message: %w", err)
	}
	if err := o.store.AddRelation(ctx, original.ID, user.ID, models.RelationBranch); err != nil {
		return nil, fmt.Errorf("record branch relation: %w", err)
	}

	responses, events, err := o.launch(ctx, session.ID, targetsFor(modelA, modelB, []string{user.ID}), cutoff, user)
	if err != nil {
		return nil, err
	}
	return &Turn{UserMessage: user, Responses: responses, Events: events}, nil
}

func (o *Orchestrator) lastParentPosition(ctx context.Context, parentIDs []string) (int64, error) {
	var last int64
	for _, id := range parentIDs {
		parent, err := o.store.GetMessage(ctx, id)
		if err != nil {
			return 0, err
		}
		last = max(last, parent.Position)
	}
	return last, nil
}

// launch creates a streaming placeholder per target and starts the branch
// workers. If any placeholder cannot start, all of them are failed.
func (o *Orchestrator) launch(ctx context.Context, sessionID string, targets []target, cutoff int64, tail *models.Message) ([]models.Message, <-chan models.StreamEvent, error) {
	stored, err := o.store.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}

	plans := make([]branchPlan, 0, len(targets))
	abort := func(cause error) error {
		for _, p := range plans {
			if err := o.store.Fail(context.WithoutCancel(ctx), p.message.ID, "", cause.Error()); err != nil {
				o.log.LogError(err, "Failed to abort placeholder", "message_id", p.message.ID)
			}
		}
		return cause
	}

	for _, t := range targets {
		msg := &models.Message{
			SessionID:   sessionID,
			Role:        models.RoleAssistant,
			Participant: t.participant,
			ModelID:     t.model.ID,
			Status:      models.StatusPending,
			ParentIDs:   t.parentIDs,
			Metadata:    t.metadata,
		}
		if _, err := o.store.AppendMessage(ctx, msg); err != nil {
			return nil, nil, abort(fmt.Errorf("store placeholder: %w", err))
		}
		plans = append(plans, branchPlan{
			sessionID: sessionID,
			message:   *msg,
			model:     t.model,
			history:   buildHistory(stored, t.participant, cutoff, tail),
		})
		if err := o.store.MarkStreaming(ctx, msg.ID); err != nil {
			return nil, nil, abort(err)
		}
	}

	out := make(chan models.StreamEvent, o.cfg.EventBuffer)
	responses := make([]models.Message, 0, len(plans))
	done := make(chan struct{}, len(plans))
	for _, p := range plans {
		p.message.Status = models.StatusStreaming
		responses = append(responses, p.message)
		go func() {
			defer func() { done <- struct{}{} }()
			o.runBranch(ctx, p, out)
		}()
	}
	go func() {
		for range plans {
			<-done
		}
		close(out)
	}()

	return responses, out, nil
}

func (o *Orchestrator) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return o.store.GetMessage(ctx, id)
}

func (o *Orchestrator) GetHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	if _, err := o.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.store.GetHistory(ctx, sessionID)
}

func (o *Orchestrator) GetChildren(ctx context.Context, id string) ([]models.Message, error) {
	return o.store.GetChildren(ctx, id)
}

func (o *Orchestrator) GetTree(ctx context.Context, rootID string) (*models.TreeNode, error) {
	return repository.GetTree(ctx, o.store, rootID, o.log)
}
