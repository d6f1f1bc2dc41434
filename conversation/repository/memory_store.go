package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"llm-arena/backend/conversation/models"
	apperrors "llm-arena/backend/pkg/errors"

	"github.com/google/uuid"
)

// MemoryTreeStore is an in-process TreeStore. One mutex covers the whole
// store, which gives the same atomicity as the transactional store.
type MemoryTreeStore struct {
	mu        sync.Mutex
	messages  map[string]*models.Message
	positions map[string]int64
	relations []models.Relation
}

func NewMemoryTreeStore() *MemoryTreeStore {
	return &MemoryTreeStore{
		messages:  make(map[string]*models.Message),
		positions: make(map[string]int64),
	}
}

func (s *MemoryTreeStore) AppendMessage(_ context.Context, msg *models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.StatusPending
	}
	for _, p := range msg.ParentIDs {
		parent, ok := s.messages[p]
		if !ok || parent.SessionID != msg.SessionID {
			return "", fmt.Errorf("parent %s: %w", p, apperrors.ErrMessageNotFound)
		}
	}

	s.positions[msg.SessionID]++
	msg.Position = s.positions[msg.SessionID]
	now := time.Now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	msg.ParentIDs = slices.Clone(msg.ParentIDs)
	msg.ChildIDs = []string{}

	stored := *msg
	s.messages[msg.ID] = &stored
	for _, p := range msg.ParentIDs {
		parent := s.messages[p]
		parent.ChildIDs = append(slices.Clone(parent.ChildIDs), msg.ID)
	}
	for _, rel := range relationsFor(msg) {
		rel.CreatedAt = now
		s.relations = append(s.relations, rel)
	}
	return msg.ID, nil
}

func (s *MemoryTreeStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrMessageNotFound)
	}
	out := copyMessage(m)
	return &out, nil
}

func (s *MemoryTreeStore) GetHistory(_ context.Context, sessionID string) ([]models.Message, error) {
	return s.collect(func(m *models.Message) bool {
		return m.SessionID == sessionID && m.Status == models.StatusSuccess
	}), nil
}

func (s *MemoryTreeStore) GetChildren(_ context.Context, id string) ([]models.Message, error) {
	s.mu.Lock()
	parent, ok := s.messages[id]
	var children []string
	if ok {
		children = slices.Clone(parent.ChildIDs)
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrMessageNotFound)
	}
	return s.collect(func(m *models.Message) bool { return slices.Contains(children, m.ID) }), nil
}

// SessionMessages returns every message of a session regardless of status
func (s *MemoryTreeStore) SessionMessages(sessionID string) []models.Message {
	return s.collect(func(m *models.Message) bool { return m.SessionID == sessionID })
}

// Relations returns a copy of every recorded edge
func (s *MemoryTreeStore) Relations() []models.Relation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.relations)
}

// Remove deletes a message without touching its neighbours' links, leaving
// dangling references the way an external cleanup job would.
func (s *MemoryTreeStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
}

func (s *MemoryTreeStore) collect(keep func(*models.Message) bool) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Message{}
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func (s *MemoryTreeStore) AddRelation(_ context.Context, fromID, toID string, relType models.RelationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = append(s.relations, models.Relation{FromID: fromID, ToID: toID, Type: relType, CreatedAt: time.Now()})
	return nil
}

func (s *MemoryTreeStore) MarkStreaming(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.lookup(id, models.StatusPending)
	if err != nil {
		return err
	}
	for _, other := range s.messages {
		if other.ID != id && other.SessionID == m.SessionID &&
			other.Participant == m.Participant && other.Status == models.StatusStreaming {
			return fmt.Errorf("message %s: %w", id, apperrors.ErrBranchBusy)
		}
	}
	m.Status = models.StatusStreaming
	m.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryTreeStore) UpdateContent(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.lookup(id, models.StatusStreaming)
	if err != nil {
		return err
	}
	m.Content = content
	m.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryTreeStore) Complete(_ context.Context, id, content string, usage models.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.lookup(id, models.StatusPending, models.StatusStreaming)
	if err != nil {
		return err
	}
	m.Status = models.StatusSuccess
	m.Content = content
	m.PromptTokens = usage.PromptTokens
	m.CompletionTokens = usage.CompletionTokens
	m.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryTreeStore) Fail(_ context.Context, id, content, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.lookup(id, models.StatusPending, models.StatusStreaming)
	if err != nil {
		return err
	}
	m.Status = models.StatusFailed
	m.Content = content
	m.FailureReason = reason
	m.UpdatedAt = time.Now()
	return nil
}

// lookup must be called with mu held
func (s *MemoryTreeStore) lookup(id string, from ...models.Status) (*models.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrMessageNotFound)
	}
	if !slices.Contains(from, m.Status) {
		return nil, fmt.Errorf("message %s is %s: %w", id, m.Status, apperrors.ErrInvalidArgument)
	}
	return m, nil
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	out.ParentIDs = slices.Clone(m.ParentIDs)
	out.ChildIDs = slices.Clone(m.ChildIDs)
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
