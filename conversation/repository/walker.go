package repository

import (
	"context"
	"errors"

	"llm-arena/backend/conversation/models"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
)

// MessageLoader is the read side a Walker needs
type MessageLoader interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
}

type frame struct {
	id       string
	parentID string
	depth    int
}

// Step is one node yielded by a Walker
type Step struct {
	Message  models.Message
	ParentID string
	Depth    int
}

// Walker is a lazy depth-first traversal of the DAG below a root. Each node
// is loaded only when reached and visited once even if several parents
// point at it. Ids that no longer resolve are logged and skipped.
type Walker struct {
	loader  MessageLoader
	log     *logger.Logger
	rootID  string
	stack   []frame
	visited map[string]bool
	skipped []string
}

func NewWalker(loader MessageLoader, rootID string, log *logger.Logger) *Walker {
	w := &Walker{loader: loader, log: log, rootID: rootID}
	w.Reset()
	return w
}

// Reset restarts the walk from the root
func (w *Walker) Reset() {
	w.stack = []frame{{id: w.rootID}}
	w.visited = make(map[string]bool)
	w.skipped = nil
}

// Skipped lists the ids found missing so far
func (w *Walker) Skipped() []string {
	return w.skipped
}

// Next returns the next node. ok is false once the walk is exhausted.
// A missing root yields ErrMessageNotFound; missing descendants do not.
func (w *Walker) Next(ctx context.Context) (step Step, ok bool, err error) {
	for len(w.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Step{}, false, err
		}

		f := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if w.visited[f.id] {
			continue
		}

		msg, err := w.loader.GetMessage(ctx, f.id)
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			if f.id == w.rootID {
				return Step{}, false, err
			}
			w.visited[f.id] = true
			w.skipped = append(w.skipped, f.id)
			w.log.Warn("Skipping orphaned message reference",
				"message_id", f.parentID,
				"missing_id", f.id,
				"error", apperrors.ErrOrphanedReference.Error(),
			)
			continue
		}
		if err != nil {
			// Leave the frame in place so a later Next retries it
			w.stack = append(w.stack, f)
			return Step{}, false, err
		}
		w.visited[f.id] = true

		// Push in reverse so children come out in stored order
		for i := len(msg.ChildIDs) - 1; i >= 0; i-- {
			w.stack = append(w.stack, frame{id: msg.ChildIDs[i], parentID: msg.ID, depth: f.depth + 1})
		}
		return Step{Message: *msg, ParentID: f.parentID, Depth: f.depth}, true, nil
	}
	return Step{}, false, nil
}

// GetTree materialises the walk below rootID into nested nodes
func GetTree(ctx context.Context, loader MessageLoader, rootID string, log *logger.Logger) (*models.TreeNode, error) {
	w := NewWalker(loader, rootID, log)
	nodes := make(map[string]*models.TreeNode)
	var root *models.TreeNode

	for {
		step, ok, err := w.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		node := &models.TreeNode{Message: step.Message, Children: []*models.TreeNode{}}
		nodes[step.Message.ID] = node
		if step.ParentID == "" {
			root = node
			continue
		}
		if parent, ok := nodes[step.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	return root, nil
}
