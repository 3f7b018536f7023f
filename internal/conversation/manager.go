package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/models"
)

const (
	// ContextWindowSize bounds how many recent messages are sent with each
	// model request. Cost and latency control, not storage truncation.
	ContextWindowSize = 30

	maxTitleLength = 50

	welcomeMessage = "New session started. Describe a target or task, type a /command, or just ask a question."

	systemInstruction = "You are HackPilot, an assistant for authorized penetration testing and security research. " +
		"Help the operator run reconnaissance, interpret tool output, and plan next steps. " +
		"Assume all targets are in scope of a written engagement. Be concise and practical; " +
		"prefer concrete commands and findings over generalities."
)

// Notifier receives conversation events for fan-out to connected observers.
type Notifier interface {
	Broadcast(event string, payload any)
}

// Manager owns the active-thread pointer and all message mutation. Streaming
// deltas accumulate in memory and hit the database once, at finalization;
// each in-flight stream writes only to the one message it created.
type Manager struct {
	store    *Store
	notifier Notifier

	mu       sync.Mutex
	activeID string
	buffers  map[string]*strings.Builder // message id -> streaming content
}

func NewManager(store *Store, notifier Notifier) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		buffers:  make(map[string]*strings.Builder),
	}
}

func (m *Manager) broadcast(event string, payload any) {
	if m.notifier != nil {
		m.notifier.Broadcast(event, payload)
	}
}

// Notify exposes the manager's notifier to collaborators that emit events
// outside the message lifecycle, such as tool start/finish.
func (m *Manager) Notify(event string, payload any) {
	m.broadcast(event, payload)
}

// Resume activates the most recently updated thread, or creates a fresh one
// when the store is empty. Called once at startup.
func (m *Manager) Resume() (*models.Thread, error) {
	t, err := m.store.MostRecentThread()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return m.NewThread()
	}
	m.mu.Lock()
	m.activeID = t.ID
	m.mu.Unlock()
	return t, nil
}

// NewThread creates and activates a fresh thread seeded with a welcome
// message.
func (m *Manager) NewThread() (*models.Thread, error) {
	t, err := m.store.CreateThread("New Session")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.activeID = t.ID
	m.mu.Unlock()

	if _, err := m.Append(t.ID, models.RoleAssistant, welcomeMessage, ""); err != nil {
		logger.Warn("Failed to seed welcome message: %v", err)
	}
	m.broadcast(models.WSThreadCreated, t)
	m.broadcast(models.WSThreadActivated, map[string]string{"thread_id": t.ID})
	return t, nil
}

// ActiveID returns the currently active thread id.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// SwitchTo activates a thread. No-op when already active.
func (m *Manager) SwitchTo(threadID string) error {
	m.mu.Lock()
	if m.activeID == threadID {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if _, err := m.store.GetThread(threadID); err != nil {
		return err
	}

	m.mu.Lock()
	m.activeID = threadID
	m.mu.Unlock()

	m.broadcast(models.WSThreadActivated, map[string]string{"thread_id": threadID})
	return nil
}

// Delete removes a thread. Deleting the active thread activates the most
// recently updated survivor, or creates a fresh thread when none remain.
func (m *Manager) Delete(threadID string) error {
	if err := m.store.DeleteThread(threadID); err != nil {
		return err
	}
	m.broadcast(models.WSThreadDeleted, map[string]string{"thread_id": threadID})

	m.mu.Lock()
	wasActive := m.activeID == threadID
	m.mu.Unlock()
	if !wasActive {
		return nil
	}

	next, err := m.store.MostRecentThread()
	if err != nil {
		return err
	}
	if next == nil {
		_, err := m.NewThread()
		return err
	}
	return m.SwitchTo(next.ID)
}

// Append persists a message at the end of a thread and notifies observers.
// The first user message of a thread also becomes its title.
func (m *Manager) Append(threadID, role, content, toolName string) (*models.Message, error) {
	msg := &models.Message{
		ThreadID: threadID,
		Role:     role,
		Content:  content,
		ToolName: toolName,
	}
	if err := m.store.AppendMessage(msg); err != nil {
		return nil, err
	}

	if role == models.RoleUser {
		if n, err := m.store.CountUserMessages(threadID); err == nil && n == 1 {
			title := TitleFor(content)
			if err := m.store.UpdateThreadTitle(threadID, title); err == nil {
				m.broadcast(models.WSThreadUpdated, map[string]string{"thread_id": threadID, "title": title})
			}
		}
	}

	m.broadcast(models.WSMessageAppended, msg)
	return msg, nil
}

// BeginStreaming appends an empty assistant message that a single stream
// will grow via AppendDelta until FinishStreaming.
func (m *Manager) BeginStreaming(threadID string) (*models.Message, error) {
	msg := &models.Message{
		ThreadID:    threadID,
		Role:        models.RoleAssistant,
		IsStreaming: true,
	}
	if err := m.store.AppendMessage(msg); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.buffers[msg.ID] = &strings.Builder{}
	m.mu.Unlock()

	m.broadcast(models.WSMessageAppended, msg)
	return msg, nil
}

// AppendDelta grows a streaming message in memory and notifies observers.
func (m *Manager) AppendDelta(messageID, delta string) {
	m.mu.Lock()
	if buf, ok := m.buffers[messageID]; ok {
		buf.WriteString(delta)
	}
	m.mu.Unlock()

	m.broadcast(models.WSMessageDelta, map[string]string{"message_id": messageID, "delta": delta})
}

// StreamedContent returns what a streaming message has accumulated so far.
func (m *Manager) StreamedContent(messageID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok := m.buffers[messageID]; ok {
		return buf.String()
	}
	return ""
}

// FinishStreaming persists the final content of a streaming message and
// clears its streaming state. When finalContent is empty the accumulated
// buffer is used; when both are empty, fallback is substituted so the thread
// never keeps a permanently blank assistant turn.
func (m *Manager) FinishStreaming(messageID, finalContent, fallback string) error {
	m.mu.Lock()
	if finalContent == "" {
		if buf, ok := m.buffers[messageID]; ok {
			finalContent = buf.String()
		}
	}
	delete(m.buffers, messageID)
	m.mu.Unlock()

	if finalContent == "" {
		finalContent = fallback
	}
	if err := m.store.UpdateMessageContent(messageID, finalContent); err != nil {
		return err
	}
	m.broadcast(models.WSMessageFinalized, map[string]string{"message_id": messageID, "content": finalContent})
	return nil
}

// ContextWindow returns the fixed system instruction followed by the last
// ContextWindowSize messages of a thread, mapped to the model wire shape.
// Tool output travels as a user turn so both backends accept it.
func (m *Manager) ContextWindow(threadID string) ([]llm.ChatMessage, error) {
	recent, err := m.store.RecentMessages(threadID, ContextWindowSize)
	if err != nil {
		return nil, err
	}

	out := make([]llm.ChatMessage, 0, len(recent)+1)
	out = append(out, llm.ChatMessage{Role: models.RoleSystem, Content: systemInstruction})
	for _, msg := range recent {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := msg.Role
		content := msg.Content
		if role == models.RoleTool {
			role = models.RoleUser
			content = fmt.Sprintf("Output of %s:\n%s", msg.ToolName, msg.Content)
		}
		out = append(out, llm.ChatMessage{Role: role, Content: content})
	}
	return out, nil
}

// ListThreads returns all threads, most recently updated first.
func (m *Manager) ListThreads() ([]models.Thread, error) {
	return m.store.ListThreads()
}

// Messages returns a thread's messages in append order. Messages still
// streaming are overlaid with their accumulated buffer so readers see the
// partial content instead of the empty persisted row.
func (m *Manager) Messages(threadID string) ([]models.Message, error) {
	msgs, err := m.store.ListMessages(threadID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for i := range msgs {
		if buf, ok := m.buffers[msgs[i].ID]; ok {
			msgs[i].Content = buf.String()
			msgs[i].IsStreaming = true
		}
	}
	m.mu.Unlock()
	return msgs, nil
}

// GetThread looks up one thread.
func (m *Manager) GetThread(threadID string) (*models.Thread, error) {
	return m.store.GetThread(threadID)
}

// TitleFor derives a thread title from its first user message.
func TitleFor(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength-3]) + "..."
	}
	if title == "" {
		title = "New Session"
	}
	return title
}
