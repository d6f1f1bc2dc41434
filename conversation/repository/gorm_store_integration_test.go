//go:build integration

package repository

import (
	"context"
	"sort"
	"sync"
	"testing"

	"llm-arena/backend/conversation/models"
	"llm-arena/backend/pkg/dbtest"
	apperrors "llm-arena/backend/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGormTreeStore(t *testing.T) *GormTreeStore {
	t.Helper()
	db := dbtest.Open(t, &models.Message{}, &models.Relation{})
	require.NoError(t, db.Exec(StreamingIndexSQL).Error)
	return NewGormTreeStore(db)
}

func TestGormAppendAssignsDistinctPositions(t *testing.T) {
	s := newGormTreeStore(t)
	session := uuid.NewString()

	const writers = 10
	positions := make([]int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := &models.Message{SessionID: session, Role: models.RoleUser, Status: models.StatusSuccess}
			_, err := s.AppendMessage(context.Background(), msg)
			assert.NoError(t, err)
			positions[i] = msg.Position
		}()
	}
	wg.Wait()

	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	for i, p := range positions {
		assert.Equal(t, int64(i+1), p)
	}
}

func TestGormAppendLinksChildrenAndRelations(t *testing.T) {
	s := newGormTreeStore(t)
	ctx := context.Background()
	session := uuid.NewString()

	root := appendMsg(t, s, session, models.RoleUser, models.StatusSuccess)
	a := appendMsg(t, s, session, models.RoleAssistant, models.StatusSuccess, root)
	b := appendMsg(t, s, session, models.RoleAssistant, models.StatusSuccess, root)
	merged := appendMsg(t, s, session, models.RoleUser, models.StatusSuccess, a, b)

	children, err := s.GetChildren(ctx, root)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, a, children[0].ID)
	assert.Equal(t, b, children[1].ID)

	msgB, err := s.GetMessage(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{merged}, []string(msgB.ChildIDs))

	var merges int64
	require.NoError(t, s.db.Model(&models.Relation{}).
		Where("to_id = ? AND type = ?", merged, models.RelationMerge).
		Count(&merges).Error)
	assert.Equal(t, int64(2), merges)

	_, err = s.AppendMessage(ctx, &models.Message{SessionID: uuid.NewString(), Role: models.RoleUser, ParentIDs: []string{root}})
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound, "parents must be in the same session")
}

func TestGormOneStreamingMessagePerParticipant(t *testing.T) {
	s := newGormTreeStore(t)
	ctx := context.Background()
	session := uuid.NewString()

	root := appendMsg(t, s, session, models.RoleUser, models.StatusSuccess)
	first, err := s.AppendMessage(ctx, &models.Message{SessionID: session, Role: models.RoleAssistant, Participant: models.ParticipantA, ParentIDs: []string{root}})
	require.NoError(t, err)
	second, err := s.AppendMessage(ctx, &models.Message{SessionID: session, Role: models.RoleAssistant, Participant: models.ParticipantA, ParentIDs: []string{root}})
	require.NoError(t, err)
	other, err := s.AppendMessage(ctx, &models.Message{SessionID: session, Role: models.RoleAssistant, Participant: models.ParticipantB, ParentIDs: []string{root}})
	require.NoError(t, err)

	require.NoError(t, s.MarkStreaming(ctx, first))
	assert.ErrorIs(t, s.MarkStreaming(ctx, second), apperrors.ErrBranchBusy)
	require.NoError(t, s.MarkStreaming(ctx, other), "the other participant streams independently")

	require.NoError(t, s.Complete(ctx, first, "done", models.Usage{}))
	require.NoError(t, s.MarkStreaming(ctx, second))
}
