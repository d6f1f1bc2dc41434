package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"llm-arena/backend/conversation/models"
	apperrors "llm-arena/backend/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StreamingIndexSQL enforces one streaming message per session participant.
// GORM tags cannot express partial indexes, so migrations run it directly.
const StreamingIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_one_streaming_per_participant
	ON chat_messages (session_id, participant) WHERE status = 'streaming'`

type GormTreeStore struct {
	db *gorm.DB
}

func NewGormTreeStore(db *gorm.DB) *GormTreeStore {
	return &GormTreeStore{db: db}
}

func (s *GormTreeStore) AppendMessage(ctx context.Context, msg *models.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.StatusPending
	}
	if msg.ParentIDs == nil {
		msg.ParentIDs = []string{}
	}
	msg.ChildIDs = []string{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialises appends within a session; other sessions are unaffected
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", msg.SessionID).Error; err != nil {
			return err
		}

		if len(msg.ParentIDs) > 0 {
			var found int64
			err := tx.Model(&models.Message{}).
				Where("id IN ? AND session_id = ?", []string(msg.ParentIDs), msg.SessionID).
				Count(&found).Error
			if err != nil {
				return err
			}
			if int(found) != len(msg.ParentIDs) {
				return fmt.Errorf("parent of %s: %w", msg.ID, apperrors.ErrMessageNotFound)
			}
		}

		var last int64
		err := tx.Model(&models.Message{}).
			Where("session_id = ?", msg.SessionID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		msg.Position = last + 1

		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		child, _ := json.Marshal([]string{msg.ID})
		for _, parentID := range msg.ParentIDs {
			err := tx.Model(&models.Message{}).
				Where("id = ?", parentID).
				Update("child_ids", gorm.Expr("COALESCE(child_ids, '[]'::jsonb) || ?::jsonb", string(child))).Error
			if err != nil {
				return fmt.Errorf("link parent %s: %w", parentID, err)
			}
		}

		if rels := relationsFor(msg); len(rels) > 0 {
			if err := tx.Create(&rels).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *GormTreeStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrMessageNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *GormTreeStore) GetHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	var list []models.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, models.StatusSuccess).
		Order("position").
		Find(&list).Error
	return list, err
}

func (s *GormTreeStore) GetChildren(ctx context.Context, id string) ([]models.Message, error) {
	parent, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(parent.ChildIDs) == 0 {
		return []models.Message{}, nil
	}
	var list []models.Message
	err = s.db.WithContext(ctx).
		Where("id IN ?", []string(parent.ChildIDs)).
		Order("position").
		Find(&list).Error
	return list, err
}

func (s *GormTreeStore) AddRelation(ctx context.Context, fromID, toID string, relType models.RelationType) error {
	return s.db.WithContext(ctx).Create(&models.Relation{FromID: fromID, ToID: toID, Type: relType}).Error
}

func (s *GormTreeStore) MarkStreaming(ctx context.Context, id string) error {
	err := s.transition(ctx, id, []models.Status{models.StatusPending}, map[string]any{
		"status": models.StatusStreaming,
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("message %s: %w", id, apperrors.ErrBranchBusy)
	}
	return err
}

func (s *GormTreeStore) UpdateContent(ctx context.Context, id, content string) error {
	return s.transition(ctx, id, []models.Status{models.StatusStreaming}, map[string]any{
		"content": content,
	})
}

func (s *GormTreeStore) Complete(ctx context.Context, id, content string, usage models.Usage) error {
	return s.transition(ctx, id, []models.Status{models.StatusPending, models.StatusStreaming}, map[string]any{
		"status":            models.StatusSuccess,
		"content":           content,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
	})
}

func (s *GormTreeStore) Fail(ctx context.Context, id, content, reason string) error {
	return s.transition(ctx, id, []models.Status{models.StatusPending, models.StatusStreaming}, map[string]any{
		"status":         models.StatusFailed,
		"content":        content,
		"failure_reason": reason,
	})
}

// transition updates id only while it is in one of the from states
func (s *GormTreeStore) transition(ctx context.Context, id string, from []models.Status, values map[string]any) error {
	values["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMessage(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("message %s is not %v: %w", id, from, apperrors.ErrInvalidArgument)
	}
	return nil
}
