package models

import (
	"strings"
	"time"
)

const (
	MaxPromptLength = 4000
	MinBranchModels = 2
	MaxBranchModels = 4
)

type BranchMode string

const (
	BranchModeResume BranchMode = "resume"
	BranchModeSingle BranchMode = "single"
	BranchModeMulti  BranchMode = "multi"
)

type ModelStatus string

const (
	ModelStatusPending   ModelStatus = "pending"
	ModelStatusLoading   ModelStatus = "loading"
	ModelStatusSuccess   ModelStatus = "success"
	ModelStatusError     ModelStatus = "error"
	ModelStatusCancelled ModelStatus = "cancelled"
)

func (s ModelStatus) Terminal() bool {
	return s == ModelStatusSuccess || s == ModelStatusError || s == ModelStatusCancelled
}

// BranchRequest asks for one or more continuations of ParentID.
//
// Resume continues the thread with one model. Single opens one named branch.
// Multi fans out one branch per model. Without an explicit Mode the request
// is multi when it carries several models or per-model branch names, single
// when it carries a BranchName and resume otherwise.
type BranchRequest struct {
	ChatID      ObjectID          `json:"-"`
	ParentID    ObjectID          `json:"parent_id" validate:"required"`
	Mode        BranchMode        `json:"mode,omitempty" validate:"omitempty,oneof=resume single multi"`
	Prompt      string            `json:"prompt" validate:"required"`
	Models      []string          `json:"models" validate:"required,min=1,max=4,dive,required"`
	BranchName  *string           `json:"branch_name,omitempty"`
	BranchNames map[string]string `json:"branch_names,omitempty"`
}

func (r *BranchRequest) EffectiveMode() BranchMode {
	switch {
	case r.Mode != "":
		return r.Mode
	case len(r.Models) > 1 || len(r.BranchNames) > 0:
		return BranchModeMulti
	case r.BranchName != nil:
		return BranchModeSingle
	default:
		return BranchModeResume
	}
}

type ModelResult struct {
	Model         string      `json:"model"`
	BranchName    *string     `json:"branch_name,omitempty"`
	Status        ModelStatus `json:"status"`
	UserMessageID ObjectID    `json:"user_message_id,omitempty"`
	ReplyID       ObjectID    `json:"reply_id,omitempty"`
	Error         string      `json:"error,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type BranchRun struct {
	ID        string         `json:"id"`
	ChatID    ObjectID       `json:"chat_id"`
	ParentID  ObjectID       `json:"parent_id"`
	UserID    string         `json:"user_id"`
	Mode      BranchMode     `json:"mode"`
	Results   []*ModelResult `json:"results"`
	Done      bool           `json:"done"`
	CreatedAt time.Time      `json:"created_at"`
}

var providerDisplayNames = map[string]string{
	"openai":     "OpenAI",
	"anthropic":  "Anthropic",
	"google":     "Google",
	"googleai":   "Google",
	"meta-llama": "Meta",
	"mistralai":  "Mistral",
	"deepseek":   "DeepSeek",
	"x-ai":       "xAI",
}

// ProviderDisplayName maps a model id like "openai/gpt-4o" to its vendor label.
func ProviderDisplayName(model string) string {
	provider, _, _ := strings.Cut(model, "/")
	provider = strings.ToLower(strings.TrimSpace(provider))
	if name, ok := providerDisplayNames[provider]; ok {
		return name
	}
	if provider == "" {
		return "Model"
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

func DefaultBranchName(model string) string {
	return ProviderDisplayName(model) + " Response"
}
