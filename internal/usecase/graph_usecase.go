package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/graph"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/util"
)

type CreateNodeParams struct {
	ChatID     models.ObjectID  `json:"-"`
	ParentID   *models.ObjectID `json:"parent_id,omitempty"`
	Role       models.Role      `json:"role" validate:"required,oneof=user assistant"`
	Content    string           `json:"content" validate:"required"`
	Model      *string          `json:"model,omitempty"`
	BranchName *string          `json:"branch_name,omitempty"`
	NodeType   models.NodeType  `json:"node_type,omitempty"`
	Position   *models.Position `json:"position,omitempty"`
}

type AccessChecker interface {
	CanEdit(ctx context.Context, chatID models.ObjectID, user models.User) error
}

type graphUsecase struct {
	messages    MessageStore
	access      AccessChecker
	broadcaster Broadcaster
	events      GraphEventPublisher
}

func NewGraphUsecase(
	messages MessageStore,
	access CollaborationUsecase,
	broadcaster Broadcaster,
	events GraphEventPublisher,
) GraphUsecase {
	return &graphUsecase{
		messages:    messages,
		access:      access,
		broadcaster: broadcaster,
		events:      events,
	}
}

func (uc *graphUsecase) Forest(ctx context.Context, chatID models.ObjectID) (*graph.Forest, error) {
	msgs, err := uc.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return graph.BuildForest(msgs), nil
}

func (uc *graphUsecase) ConversationContext(ctx context.Context, chatID, nodeID models.ObjectID) ([]*models.Message, error) {
	forest, err := uc.Forest(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return forest.ConversationContext(nodeID)
}

func (uc *graphUsecase) CreateNode(ctx context.Context, user models.User, params CreateNodeParams) (*models.Message, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, fmt.Errorf("content required: %w", models.ErrValidation)
	}
	if params.Role != models.RoleUser && params.Role != models.RoleAssistant {
		return nil, fmt.Errorf("role %q: %w", params.Role, models.ErrValidation)
	}
	if params.NodeType == "" {
		params.NodeType = models.NodeTypeConversation
	}
	if !params.NodeType.Valid() {
		return nil, fmt.Errorf("node type %q: %w", params.NodeType, models.ErrValidation)
	}
	if err := uc.access.CanEdit(ctx, params.ChatID, user); err != nil {
		return nil, err
	}

	created, err := uc.insert(ctx, params)
	if err != nil {
		return nil, err
	}

	announceCreate(ctx, uc.broadcaster, uc.events, user, created)
	return created, nil
}

// insert checks the parent and stores the node, placing it next to its
// parent unless params carries a position.
func (uc *graphUsecase) insert(ctx context.Context, params CreateNodeParams) (*models.Message, error) {
	unlock := placements.lock(params.ChatID)
	defer unlock()

	msgs, err := uc.messages.ListByChat(ctx, params.ChatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	forest := graph.BuildForest(msgs)
	parentID := util.Val(params.ParentID)
	if err := forest.CheckParent("", parentID); err != nil {
		return nil, err
	}

	pos := util.Val(params.Position)
	if params.Position == nil {
		var parentPos *models.Position
		if parent, ok := forest.Node(parentID); ok {
			parentPos = util.Ptr(parent.Position())
		}
		pos = graph.LayoutFromMessages(msgs).AssignPosition(parentPos)
	}

	msg := &models.Message{
		ChatID:     params.ChatID,
		Role:       params.Role,
		Content:    params.Content,
		Model:      params.Model,
		BranchName: params.BranchName,
		XPosition:  pos.X,
		YPosition:  pos.Y,
		NodeType:   params.NodeType,
	}
	if parentID != "" {
		msg.ParentID = &parentID
	}
	created, err := uc.messages.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return created, nil
}

func announceCreate(ctx context.Context, b Broadcaster, events GraphEventPublisher, user models.User, msg *models.Message) {
	pos := msg.Position()
	b.Broadcast(ctx, models.Event{
		Type:     models.EventNodeCreate,
		ChatID:   msg.ChatID.String(),
		UserID:   user.ID,
		UserName: user.Name,
		NodeID:   msg.ID.String(),
		Position: &pos,
		Data: map[string]any{
			"parentId": msg.ParentKey(),
			"role":     msg.Role,
		},
	})
	events.PublishGraphEvent(ctx, models.GraphEvent{
		Type:      models.EventNodeCreate,
		ChatID:    msg.ChatID.String(),
		UserID:    user.ID,
		NodeIDs:   []string{msg.ID.String()},
		Timestamp: time.Now(),
	})
}

// lockedBy returns the first node in ids that user may not edit.
func lockedBy(forest *graph.Forest, ids []models.ObjectID, user models.User) (models.ObjectID, bool) {
	for _, id := range ids {
		if m, ok := forest.Node(id); ok && m.LockedFor(user.ID) {
			return id, true
		}
	}
	return "", false
}

func (uc *graphUsecase) UpdatePositions(ctx context.Context, user models.User, chatID models.ObjectID, updates []models.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := uc.access.CanEdit(ctx, chatID, user); err != nil {
		return err
	}
	forest, err := uc.Forest(ctx, chatID)
	if err != nil {
		return err
	}
	ids := util.ConvertList(updates, func(u models.PositionUpdate) models.ObjectID { return u.ID })
	if id, locked := lockedBy(forest, ids, user); locked {
		return fmt.Errorf("node %s is locked: %w", id, models.ErrForbidden)
	}

	if err := uc.messages.UpdatePositionsBatch(ctx, chatID, updates, user.ID); err != nil {
		return fmt.Errorf("update positions: %w", err)
	}

	for _, u := range updates {
		uc.broadcaster.Broadcast(ctx, models.Event{
			Type:     models.EventNodeMove,
			ChatID:   chatID.String(),
			UserID:   user.ID,
			UserName: user.Name,
			NodeID:   u.ID.String(),
			Position: &models.Position{X: u.X, Y: u.Y},
		})
	}
	uc.events.PublishGraphEvent(ctx, models.GraphEvent{
		Type:      models.EventNodeMove,
		ChatID:    chatID.String(),
		UserID:    user.ID,
		NodeIDs:   util.ConvertList(ids, models.ObjectID.String),
		Timestamp: time.Now(),
	})
	return nil
}

func (uc *graphUsecase) UpdateFlags(ctx context.Context, user models.User, chatID, nodeID models.ObjectID, flags models.FlagsUpdate) (*models.Message, error) {
	if flags.IsCollapsed == nil && flags.IsLocked == nil {
		return nil, fmt.Errorf("no flags to update: %w", models.ErrValidation)
	}
	if err := uc.access.CanEdit(ctx, chatID, user); err != nil {
		return nil, err
	}
	msg, err := uc.messages.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, models.ErrNotFound
	}
	if msg.LockedFor(user.ID) {
		return nil, fmt.Errorf("node %s is locked: %w", nodeID, models.ErrForbidden)
	}

	updated, err := uc.messages.UpdateFlags(ctx, nodeID, flags, user.ID)
	if err != nil {
		return nil, fmt.Errorf("update flags: %w", err)
	}

	pos := updated.Position()
	uc.broadcaster.Broadcast(ctx, models.Event{
		Type:     models.EventNodeMove,
		ChatID:   chatID.String(),
		UserID:   user.ID,
		UserName: user.Name,
		NodeID:   nodeID.String(),
		Position: &pos,
		Data: map[string]any{
			"isCollapsed": updated.IsCollapsed,
			"isLocked":    updated.IsLocked,
		},
	})
	return updated, nil
}

func (uc *graphUsecase) DeleteSubtree(ctx context.Context, user models.User, chatID, nodeID models.ObjectID) ([]models.ObjectID, error) {
	if err := uc.access.CanEdit(ctx, chatID, user); err != nil {
		return nil, err
	}
	forest, err := uc.Forest(ctx, chatID)
	if err != nil {
		return nil, err
	}
	ids := forest.SubtreeIDs(nodeID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("node %s: %w", nodeID, models.ErrNotFound)
	}
	if id, locked := lockedBy(forest, ids, user); locked {
		return nil, fmt.Errorf("node %s is locked: %w", id, models.ErrForbidden)
	}

	deleted, err := uc.messages.DeleteSubtree(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("delete subtree: %w", err)
	}

	deletedIDs := util.ConvertList(deleted, models.ObjectID.String)
	uc.broadcaster.Broadcast(ctx, models.Event{
		Type:     models.EventNodeDelete,
		ChatID:   chatID.String(),
		UserID:   user.ID,
		UserName: user.Name,
		NodeID:   nodeID.String(),
		Data:     map[string]any{"nodeIds": deletedIDs},
	})
	uc.events.PublishGraphEvent(ctx, models.GraphEvent{
		Type:      models.EventNodeDelete,
		ChatID:    chatID.String(),
		UserID:    user.ID,
		NodeIDs:   deletedIDs,
		Timestamp: time.Now(),
	})
	return deleted, nil
}
