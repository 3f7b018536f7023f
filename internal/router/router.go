package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hackpilot/hackpilot/internal/config"
	"github.com/hackpilot/hackpilot/internal/conversation"
	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/executor"
	"github.com/hackpilot/hackpilot/internal/intent"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/models"
	"github.com/hackpilot/hackpilot/internal/secrets"
	"github.com/hackpilot/hackpilot/internal/usage"
)

// Router turns each incoming user message into one of three paths: an
// explicit /command, a classified intent, or a model conversation turn.
// All message mutation goes through the conversation manager; tool runs and
// model streams execute as independent goroutines that each own exactly one
// target message.
type Router struct {
	cfg     *config.Config
	db      *database.DB
	manager *conversation.Manager
	client  *llm.Client
	exec    *executor.Executor
	meter   *usage.Meter
	secrets *secrets.Store

	// threadCancels maps thread id -> *generation for its in-flight model
	// stream, if any. At most one generation runs per thread.
	threadCancels sync.Map

	mu      sync.RWMutex
	backend string
	model   string
}

func New(cfg *config.Config, db *database.DB, manager *conversation.Manager, client *llm.Client, exec *executor.Executor, meter *usage.Meter, secretStore *secrets.Store) *Router {
	return &Router{
		cfg:     cfg,
		db:      db,
		manager: manager,
		client:  client,
		exec:    exec,
		meter:   meter,
		secrets: secretStore,
		backend: cfg.Backend,
		model:   cfg.SelectedModel,
	}
}

// SelectedModel returns the active model name.
func (r *Router) SelectedModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}

// SelectedBackend returns the configured backend selection (may be "auto").
func (r *Router) SelectedBackend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backend
}

// SetModel switches the active model. No network call is made; the choice
// takes effect on the next request.
func (r *Router) SetModel(model string) {
	r.mu.Lock()
	r.model = model
	r.mu.Unlock()
	logger.Info("Model switched to %s", model)
}

// Handle processes one user message against the active thread. The user
// message is appended first on every path; async work (tool runs, model
// streams) is started before Handle returns and reports through the
// conversation manager.
func (r *Router) Handle(ctx context.Context, userText string) error {
	text := strings.TrimSpace(userText)
	if text == "" {
		return fmt.Errorf("empty message")
	}

	threadID := r.manager.ActiveID()
	if threadID == "" {
		t, err := r.manager.NewThread()
		if err != nil {
			return fmt.Errorf("no active session: %w", err)
		}
		threadID = t.ID
	}

	if _, err := r.manager.Append(threadID, models.RoleUser, text, ""); err != nil {
		return err
	}

	if strings.HasPrefix(text, "/") {
		return r.handleCommand(ctx, threadID, text)
	}

	match := intent.Classify(text)
	if match.Action != intent.ActionNone {
		return r.handleIntent(ctx, threadID, match)
	}

	r.startConversation(threadID, text)
	return nil
}

func (r *Router) handleIntent(ctx context.Context, threadID string, match intent.Match) error {
	switch {
	case match.Action.IsToolBacked():
		return r.startToolAction(threadID, match.Action, match.Target)
	case match.Action == intent.ActionClear:
		_, err := r.manager.NewThread()
		return err
	case match.Action == intent.ActionModelSwitch:
		return r.switchModel(threadID, match.Target)
	default:
		return r.respondInfo(ctx, threadID, match.Action)
	}
}

// generation is one in-flight model stream. done is closed after its target
// message has been finalized and the registry entry released.
type generation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the in-flight generation for a thread, if any. Cancellation
// is observed at the next stream chunk boundary.
func (r *Router) Stop(threadID string) bool {
	if prev, ok := r.threadCancels.LoadAndDelete(threadID); ok {
		prev.(*generation).cancel()
		return true
	}
	return false
}

// preempt cancels a thread's in-flight generation and waits for it to
// finalize its message, so a thread never streams two messages at once.
func (r *Router) preempt(threadID string) {
	if prev, ok := r.threadCancels.LoadAndDelete(threadID); ok {
		g := prev.(*generation)
		g.cancel()
		<-g.done
	}
}

// StopActive cancels generation on the active thread.
func (r *Router) StopActive() bool {
	return r.Stop(r.manager.ActiveID())
}

func (r *Router) switchModel(threadID, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		_, err := r.manager.Append(threadID, models.RoleAssistant,
			"Which model? Use /model <name> or \"switch model to <name>\".", "")
		return err
	}
	r.SetModel(model)
	r.db.LogAudit("model_switch", "config", model, "")
	_, err := r.manager.Append(threadID, models.RoleAssistant,
		fmt.Sprintf("Model switched to %s. It takes effect on the next request.", model), "")
	return err
}

// startConversation streams a generic model turn into a fresh assistant
// message on the thread. Any stream already running on the thread is
// preempted first.
func (r *Router) startConversation(threadID, _ string) {
	r.preempt(threadID)

	msg, err := r.manager.BeginStreaming(threadID)
	if err != nil {
		logger.Error("Failed to start assistant message: %v", err)
		return
	}

	window, err := r.manager.ContextWindow(threadID)
	if err != nil {
		r.finishWithError(msg.ID, err)
		return
	}

	r.startGeneration(threadID, msg.ID, window)
}

// startGeneration registers a generation for the thread before its goroutine
// starts, so a racing Stop or preempt always finds it.
func (r *Router) startGeneration(threadID, messageID string, window []llm.ChatMessage) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &generation{cancel: cancel, done: make(chan struct{})}
	if prev, ok := r.threadCancels.Swap(threadID, gen); ok {
		g := prev.(*generation)
		g.cancel()
		<-g.done
	}
	go r.streamInto(ctx, gen, threadID, messageID, window)
}

// streamInto runs one model stream against a designated message. It owns
// that message exclusively until finalization.
func (r *Router) streamInto(ctx context.Context, gen *generation, threadID, messageID string, window []llm.ChatMessage) {
	defer func() {
		// Release only our own entry; a newer generation may have
		// replaced it already.
		r.threadCancels.CompareAndDelete(threadID, gen)
		gen.cancel()
		close(gen.done)
	}()

	backend, err := r.client.ResolveBackend(ctx, r.SelectedBackend())
	if err != nil {
		r.finishWithError(messageID, err)
		return
	}

	content, _, err := r.client.Stream(ctx, backend, r.SelectedModel(), window, func(delta string) {
		r.manager.AppendDelta(messageID, delta)
	})
	switch {
	case err == nil:
		if ferr := r.manager.FinishStreaming(messageID, content, "I don't have a response for that."); ferr != nil {
			logger.Error("Failed to finalize message: %v", ferr)
		}
	case llm.IsCanceled(err):
		if ferr := r.manager.FinishStreaming(messageID, "", "Stopped."); ferr != nil {
			logger.Error("Failed to finalize message: %v", ferr)
		}
	default:
		r.finishWithError(messageID, err)
	}
}

// finishWithError finalizes a streaming message with an actionable
// explanation, keeping any partial content that already arrived.
func (r *Router) finishWithError(messageID string, err error) {
	logger.Error("Generation failed: %v", err)
	remedy := llm.Remediation(err)
	if partial := r.manager.StreamedContent(messageID); partial != "" {
		remedy = partial + "\n\n[" + remedy + "]"
	}
	if ferr := r.manager.FinishStreaming(messageID, remedy, remedy); ferr != nil {
		logger.Error("Failed to finalize message: %v", ferr)
	}
}
