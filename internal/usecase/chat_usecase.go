package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type chatUsecase struct {
	chats         ChatStore
	activities    ActivityStore
	activityLimit int
}

func NewChatUsecase(conf *config.Config, chats ChatStore, activities ActivityStore) ChatUsecase {
	return &chatUsecase{
		chats:         chats,
		activities:    activities,
		activityLimit: conf.Collab.ActivityPageLimit,
	}
}

func (uc *chatUsecase) CreateChat(ctx context.Context, user models.User, title string) (*models.Chat, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("owner required: %w", models.ErrValidation)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	return uc.chats.Create(ctx, &models.Chat{OwnerID: user.ID, Title: title})
}

func (uc *chatUsecase) GetChat(ctx context.Context, chatID models.ObjectID) (*models.Chat, error) {
	return uc.chats.GetByID(ctx, chatID)
}

func (uc *chatUsecase) CanView(ctx context.Context, chatID models.ObjectID, user models.User) (*models.Chat, error) {
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsOwner(user.ID) && !chat.IsCollaborative {
		return nil, models.ErrAccessDenied
	}
	return chat, nil
}

func (uc *chatUsecase) SetCollaborative(ctx context.Context, chatID models.ObjectID, user models.User, collaborative bool) error {
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if !chat.IsOwner(user.ID) {
		return fmt.Errorf("only the owner can change sharing: %w", models.ErrForbidden)
	}
	return uc.chats.SetCollaborative(ctx, chatID, collaborative)
}

func (uc *chatUsecase) ListActivities(ctx context.Context, chatID models.ObjectID, limit int) ([]*models.Activity, error) {
	if limit <= 0 || limit > uc.activityLimit {
		limit = uc.activityLimit
	}
	return uc.activities.ListByChat(ctx, chatID, limit)
}
