package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/graph"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/util"
)

// finished runs stay queryable for this long
const runRetention = 15 * time.Minute

type branchUsecase struct {
	messages    MessageStore
	generator   Generator
	access      AccessChecker
	broadcaster Broadcaster
	events      GraphEventPublisher
	outcomes    *prometheus.CounterVec

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	mu      sync.Mutex
	run     models.BranchRun
	cancels map[string]context.CancelFunc
	done    chan struct{}
}

func NewBranchUsecase(
	messages MessageStore,
	generator Generator,
	access CollaborationUsecase,
	broadcaster Broadcaster,
	events GraphEventPublisher,
) (BranchUsecase, error) {
	outcomes, err := util.GetCounterVec("branch_model_outcomes_total", "provider", "status")
	if err != nil {
		return nil, fmt.Errorf("get counter vec: %w", err)
	}
	return &branchUsecase{
		messages:    messages,
		generator:   generator,
		access:      access,
		broadcaster: broadcaster,
		events:      events,
		outcomes:    outcomes,
		runs:        make(map[string]*runState),
	}, nil
}

func validateBranchRequest(req *models.BranchRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("prompt required: %w", models.ErrValidation)
	}
	if utf8.RuneCountInString(req.Prompt) > models.MaxPromptLength {
		return fmt.Errorf("prompt longer than %d characters: %w", models.MaxPromptLength, models.ErrValidation)
	}
	if len(req.Models) == 0 {
		return fmt.Errorf("model required: %w", models.ErrValidation)
	}
	for _, m := range req.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("empty model id: %w", models.ErrValidation)
		}
	}
	switch req.EffectiveMode() {
	case models.BranchModeMulti:
		if len(req.Models) < models.MinBranchModels || len(req.Models) > models.MaxBranchModels {
			return fmt.Errorf("multi-model branch takes %d to %d models: %w", models.MinBranchModels, models.MaxBranchModels, models.ErrValidation)
		}
		if util.HasDuplicates(req.Models) {
			return fmt.Errorf("duplicate model ids: %w", models.ErrValidation)
		}
	case models.BranchModeSingle, models.BranchModeResume:
		if len(req.Models) != 1 {
			return fmt.Errorf("%s mode takes exactly one model: %w", req.EffectiveMode(), models.ErrValidation)
		}
		if len(req.BranchNames) > 0 {
			return fmt.Errorf("branch_names needs multi mode: %w", models.ErrValidation)
		}
	default:
		return fmt.Errorf("mode %q: %w", req.Mode, models.ErrValidation)
	}
	return nil
}

func branchNameFor(req *models.BranchRequest, model string) *string {
	switch req.EffectiveMode() {
	case models.BranchModeSingle:
		return util.Ptr(util.Val(req.BranchName))
	case models.BranchModeMulti:
		if name := strings.TrimSpace(req.BranchNames[model]); name != "" {
			return &name
		}
		return util.Ptr(models.DefaultBranchName(model))
	default:
		return nil
	}
}

// Start validates req, records one user message per model and launches the
// generations. It returns once every user message is stored.
func (uc *branchUsecase) Start(ctx context.Context, user models.User, req models.BranchRequest) (*models.BranchRun, error) {
	if err := validateBranchRequest(&req); err != nil {
		return nil, err
	}
	if err := uc.access.CanEdit(ctx, req.ChatID, user); err != nil {
		return nil, err
	}

	unlock := placements.lock(req.ChatID)
	defer unlock()
	msgs, err := uc.messages.ListByChat(ctx, req.ChatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	forest := graph.BuildForest(msgs)
	parent, ok := forest.Node(req.ParentID)
	if !ok {
		return nil, fmt.Errorf("parent %s: %w", req.ParentID, models.ErrNotFound)
	}
	history, err := forest.ConversationContext(parent.ID)
	if err != nil {
		return nil, err
	}
	layout := graph.LayoutFromMessages(msgs)
	parentPos := parent.Position()

	state := &runState{
		run: models.BranchRun{
			ID:        uuid.NewString(),
			ChatID:    req.ChatID,
			ParentID:  req.ParentID,
			UserID:    user.ID,
			Mode:      req.EffectiveMode(),
			CreatedAt: time.Now(),
		},
		cancels: make(map[string]context.CancelFunc, len(req.Models)),
		done:    make(chan struct{}),
	}

	// generation outlives the request that started it
	runCtx := context.WithoutCancel(ctx)

	type task struct {
		idx     int
		model   string
		userMsg *models.Message
		ctx     context.Context
	}
	tasks := make([]task, 0, len(req.Models))
	for i, model := range req.Models {
		result := &models.ModelResult{
			Model:      model,
			BranchName: branchNameFor(&req, model),
			Status:     models.ModelStatusPending,
			UpdatedAt:  time.Now(),
		}
		state.run.Results = append(state.run.Results, result)

		pos := layout.AssignPosition(&parentPos)
		userMsg, err := uc.messages.Create(ctx, &models.Message{
			ChatID:     req.ChatID,
			ParentID:   &parent.ID,
			Role:       models.RoleUser,
			Content:    req.Prompt,
			BranchName: result.BranchName,
			XPosition:  pos.X,
			YPosition:  pos.Y,
			NodeType:   models.NodeTypeConversation,
		})
		if err != nil {
			result.Status = models.ModelStatusError
			result.Error = fmt.Sprintf("store prompt: %v", err)
			log.Errorw(ctx, "failed to store branch prompt", "run_id", state.run.ID, "model", model, "error", err)
			continue
		}
		result.UserMessageID = userMsg.ID
		announceCreate(ctx, uc.broadcaster, uc.events, user, userMsg)

		taskCtx, cancel := context.WithCancel(runCtx)
		state.cancels[model] = cancel
		tasks = append(tasks, task{idx: i, model: model, userMsg: userMsg, ctx: taskCtx})
	}

	uc.mu.Lock()
	uc.runs[state.run.ID] = state
	uc.mu.Unlock()

	// models fail independently, so no shared cancellation
	var group errgroup.Group
	for _, t := range tasks {
		group.Go(func() error {
			uc.runModel(t.ctx, state, t.idx, t.model, user, history, t.userMsg)
			return nil
		})
	}
	go func() {
		_ = group.Wait()
		uc.finish(runCtx, state)
	}()

	log.Infow(ctx, "branch run started", "run_id", state.run.ID, "mode", state.run.Mode, "models", req.Models, "parent_id", req.ParentID)
	return state.snapshot(), nil
}

// runModel generates one model's reply. Only the generation observes ctx:
// status updates and the reply are written after a stop too.
func (uc *branchUsecase) runModel(
	ctx context.Context,
	state *runState,
	idx int,
	model string,
	user models.User,
	history []*models.Message,
	userMsg *models.Message,
) {
	bg := context.WithoutCancel(ctx)
	uc.setStatus(bg, state, idx, user, func(r *models.ModelResult) {
		r.Status = models.ModelStatusLoading
	})

	prompt := make([]*models.Message, 0, len(history)+1)
	prompt = append(prompt, history...)
	prompt = append(prompt, userMsg)

	text, err := uc.generator.Generate(ctx, prompt, model, nil)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		uc.setStatus(bg, state, idx, user, func(r *models.ModelResult) {
			r.Status = models.ModelStatusCancelled
		})
		return
	}
	if err != nil {
		uc.setStatus(bg, state, idx, user, func(r *models.ModelResult) {
			r.Status = models.ModelStatusError
			r.Error = err.Error()
		})
		return
	}

	reply, err := uc.storeReply(bg, userMsg, model, text)
	if err != nil {
		uc.setStatus(bg, state, idx, user, func(r *models.ModelResult) {
			r.Status = models.ModelStatusError
			r.Error = fmt.Sprintf("store reply: %v", err)
		})
		return
	}
	announceCreate(bg, uc.broadcaster, uc.events, user, reply)
	uc.setStatus(bg, state, idx, user, func(r *models.ModelResult) {
		r.Status = models.ModelStatusSuccess
		r.ReplyID = reply.ID
	})
}

// storeReply places the reply against the chat as it is now, so replies of
// concurrent runs never share a slot.
func (uc *branchUsecase) storeReply(ctx context.Context, userMsg *models.Message, model, text string) (*models.Message, error) {
	unlock := placements.lock(userMsg.ChatID)
	defer unlock()

	msgs, err := uc.messages.ListByChat(ctx, userMsg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	pos := graph.LayoutFromMessages(msgs).AssignPosition(util.Ptr(userMsg.Position()))
	return uc.messages.Create(ctx, &models.Message{
		ChatID:    userMsg.ChatID,
		ParentID:  &userMsg.ID,
		Role:      models.RoleAssistant,
		Content:   text,
		Model:     util.Ptr(model),
		XPosition: pos.X,
		YPosition: pos.Y,
		NodeType:  models.NodeTypeConversation,
	})
}

func (uc *branchUsecase) setStatus(ctx context.Context, state *runState, idx int, user models.User, update func(*models.ModelResult)) {
	state.mu.Lock()
	result := state.run.Results[idx]
	update(result)
	result.UpdatedAt = time.Now()
	snapshot := *result
	state.mu.Unlock()

	if snapshot.Status.Terminal() {
		provider := models.ProviderDisplayName(snapshot.Model)
		uc.outcomes.WithLabelValues(provider, string(snapshot.Status)).Inc()
		log.Infow(ctx, "branch model finished",
			"run_id", state.run.ID, "model", snapshot.Model, "status", snapshot.Status, "error", snapshot.Error)
	}

	uc.broadcaster.Broadcast(ctx, models.Event{
		Type:     models.EventBranchStatus,
		ChatID:   state.run.ChatID.String(),
		UserID:   user.ID,
		UserName: user.Name,
		NodeID:   snapshot.UserMessageID.String(),
		Data: map[string]any{
			"runId":  state.run.ID,
			"result": snapshot,
		},
	})
}

func (uc *branchUsecase) finish(ctx context.Context, state *runState) {
	state.mu.Lock()
	state.run.Done = true
	for model, cancel := range state.cancels {
		cancel()
		delete(state.cancels, model)
	}
	state.mu.Unlock()
	close(state.done)

	time.AfterFunc(runRetention, func() {
		uc.mu.Lock()
		delete(uc.runs, state.run.ID)
		uc.mu.Unlock()
	})
	log.Debugw(ctx, "branch run done", "run_id", state.run.ID)
}

func (s *runState) snapshot() *models.BranchRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.run
	run.Results = make([]*models.ModelResult, len(s.run.Results))
	for i, r := range s.run.Results {
		c := *r
		run.Results[i] = &c
	}
	return &run
}

func (uc *branchUsecase) get(runID string) (*runState, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	state, ok := uc.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	return state, nil
}

func (uc *branchUsecase) GetRun(runID string) (*models.BranchRun, error) {
	state, err := uc.get(runID)
	if err != nil {
		return nil, err
	}
	return state.snapshot(), nil
}

// Wait blocks until every model of the run is terminal or ctx ends.
func (uc *branchUsecase) Wait(ctx context.Context, runID string) (*models.BranchRun, error) {
	state, err := uc.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-state.done:
		return state.snapshot(), nil
	case <-ctx.Done():
		return state.snapshot(), ctx.Err()
	}
}

// CancelRun stops one model of the run, or all of them when model is empty.
func (uc *branchUsecase) CancelRun(runID string, model string) error {
	state, err := uc.get(runID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if model == "" {
		for _, cancel := range state.cancels {
			cancel()
		}
		return nil
	}
	cancel, ok := state.cancels[model]
	if !ok {
		for _, r := range state.run.Results {
			if r.Model == model {
				// already finished
				return nil
			}
		}
		return fmt.Errorf("model %s in run %s: %w", model, runID, models.ErrNotFound)
	}
	cancel()
	return nil
}
