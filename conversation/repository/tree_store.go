package repository

import (
	"context"

	"llm-arena/backend/conversation/models"
)

// TreeStore persists the conversation DAG
type TreeStore interface {
	// AppendMessage assigns the next position in the session, inserts msg
	// and appends its id to every parent's child list, all in one
	// transaction. A missing id is generated.
	AppendMessage(ctx context.Context, msg *models.Message) (string, error)

	GetMessage(ctx context.Context, id string) (*models.Message, error)

	// GetHistory returns the session's successful messages by position
	GetHistory(ctx context.Context, sessionID string) ([]models.Message, error)

	// GetChildren returns the existing children of id by position
	GetChildren(ctx context.Context, id string) ([]models.Message, error)

	AddRelation(ctx context.Context, fromID, toID string, relType models.RelationType) error

	// MarkStreaming moves a pending message to streaming. ErrBranchBusy if
	// the session already streams a message for the same participant.
	MarkStreaming(ctx context.Context, id string) error

	// UpdateContent replaces the content of a streaming message
	UpdateContent(ctx context.Context, id, content string) error

	// Complete finalises a message as successful
	Complete(ctx context.Context, id, content string, usage models.Usage) error

	// Fail finalises a message as failed, keeping the partial content
	Fail(ctx context.Context, id, content, reason string) error
}

// relationsFor derives the edges written alongside a new message
func relationsFor(msg *models.Message) []models.Relation {
	relType := models.RelationReply
	if msg.Role == models.RoleUser && len(msg.ParentIDs) > 1 {
		relType = models.RelationMerge
	}
	out := make([]models.Relation, 0, len(msg.ParentIDs))
	for _, p := range msg.ParentIDs {
		out = append(out, models.Relation{FromID: p, ToID: msg.ID, Type: relType})
	}
	return out
}
