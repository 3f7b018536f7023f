package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hackpilot/hackpilot/internal/config"
	"github.com/hackpilot/hackpilot/internal/conversation"
	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/executor"
	"github.com/hackpilot/hackpilot/internal/intent"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/models"
	"github.com/hackpilot/hackpilot/internal/secrets"
	"github.com/hackpilot/hackpilot/internal/usage"
)

// fakeBackend serves the local-endpoint wire contract: /api/tags for the
// reachability probe and /api/chat streaming a fixed reply.
func fakeBackend(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprintln(w, `{"models":[{"name":"llama3"}]}`)
		case "/api/chat":
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", reply)
			fmt.Fprintln(w, `{"message":{"content":""},"done":true,"prompt_eval_count":5,"eval_count":5}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

// blockingBackend streams one delta and then holds each request open until
// release closes or the request is canceled.
func blockingBackend(t *testing.T, firstDelta string, release chan struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprintln(w, `{"models":[{"name":"llama3"}]}`)
		case "/api/chat":
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", firstDelta)
			w.(http.Flusher).Flush()
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			fmt.Fprintln(w, `{"message":{"content":""},"done":true,"prompt_eval_count":1,"eval_count":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

type fixture struct {
	router  *Router
	manager *conversation.Manager
}

func newFixture(t *testing.T, backendURL string, aiDisabled bool) *fixture {
	t.Helper()

	db, err := database.New(t.TempDir())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Backend:               "auto",
		SelectedModel:         "llama3",
		OllamaURL:             backendURL,
		OpenAIBaseURL:         backendURL,
		WorkDir:               t.TempDir(),
		CommandTimeoutSeconds: 10,
		MaxOutputBytes:        64 * 1024,
	}

	meter := usage.NewMeter(t.TempDir(), usage.Limits{}, true, aiDisabled)
	client := llm.NewClient(cfg.OllamaURL, cfg.OpenAIBaseURL, meter)
	manager := conversation.NewManager(conversation.NewStore(db), nil)
	if _, err := manager.NewThread(); err != nil {
		t.Fatal(err)
	}
	exec := executor.New(cfg.WorkDir, 10*time.Second, cfg.MaxOutputBytes)
	secretStore := secrets.NewStore(db, secrets.NewManager("test-key"))

	return &fixture{
		router:  New(cfg, db, manager, client, exec, meter, secretStore),
		manager: manager,
	}
}

// overrideTool swaps a tool-backed action's command for the test's own and
// restores it on cleanup.
func overrideTool(t *testing.T, action intent.Action, build func(quoted string) string) {
	t.Helper()
	orig := toolCommands[action]
	tc := orig
	tc.build = build
	toolCommands[action] = tc
	t.Cleanup(func() { toolCommands[action] = orig })
}

func (f *fixture) waitForMessages(t *testing.T, want int) []models.Message {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := f.manager.Messages(f.manager.ActiveID())
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) >= want {
			streaming := false
			for _, m := range msgs {
				if m.IsStreaming {
					streaming = true
				}
			}
			if !streaming {
				return msgs
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	msgs, _ := f.manager.Messages(f.manager.ActiveID())
	t.Fatalf("timed out waiting for %d finalized messages, have %d: %+v", want, len(msgs), msgs)
	return nil
}

// Free-text tool request: classified intent, starting message, tool output,
// then a model analysis of that output.
func TestHandleClassifiedScanRunsActionThenAnalysis(t *testing.T) {
	srv := fakeBackend(t, "Analysis: port 22 is open.")
	defer srv.Close()
	f := newFixture(t, srv.URL, false)

	overrideTool(t, intent.ActionScan, func(q string) string {
		return "echo PORT 22 open on " + q
	})

	if err := f.router.Handle(context.Background(), "Scan 10.0.0.5 for open ports"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// welcome, user, starting, tool output, analysis
	msgs := f.waitForMessages(t, 5)

	if msgs[1].Role != models.RoleUser || msgs[1].Content != "Scan 10.0.0.5 for open ports" {
		t.Errorf("user message first: %+v", msgs[1])
	}
	if msgs[2].Role != models.RoleAssistant || !strings.Contains(msgs[2].Content, "Running nmap against 10.0.0.5") {
		t.Errorf("starting message = %+v", msgs[2])
	}
	if msgs[3].Role != models.RoleTool || msgs[3].ToolName != "nmap" {
		t.Errorf("tool message = %+v", msgs[3])
	}
	if !strings.Contains(msgs[3].Content, "PORT 22 open on 10.0.0.5") {
		t.Errorf("tool output = %q", msgs[3].Content)
	}
	if msgs[4].Role != models.RoleAssistant || msgs[4].Content != "Analysis: port 22 is open." {
		t.Errorf("analysis message = %+v", msgs[4])
	}
}

// Structured command path: /whois bypasses classification and runs the tool
// with its argument as the target.
func TestHandleSlashCommandWhois(t *testing.T) {
	srv := fakeBackend(t, "Registered domain.")
	defer srv.Close()
	f := newFixture(t, srv.URL, false)

	overrideTool(t, intent.ActionWhois, func(q string) string {
		return "echo registrar data for " + q
	})

	if err := f.router.Handle(context.Background(), "/whois example.com"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	msgs := f.waitForMessages(t, 5)
	if !strings.Contains(msgs[2].Content, "Running whois against example.com") {
		t.Errorf("starting message = %q", msgs[2].Content)
	}
	if msgs[3].ToolName != "whois" || !strings.Contains(msgs[3].Content, "registrar data for example.com") {
		t.Errorf("tool message = %+v", msgs[3])
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", false)

	if err := f.router.Handle(context.Background(), "/frobnicate now"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msgs, _ := f.manager.Messages(f.manager.ActiveID())
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "Unknown command /frobnicate") {
		t.Errorf("expected a visible unknown-command message, got %q", last.Content)
	}
}

func TestHandlePlainConversation(t *testing.T) {
	srv := fakeBackend(t, "TLS is a handshake protocol.")
	defer srv.Close()
	f := newFixture(t, srv.URL, false)

	if err := f.router.Handle(context.Background(), "explain TLS handshakes to me"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// welcome, user, streamed reply
	msgs := f.waitForMessages(t, 3)
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleAssistant || last.Content != "TLS is a handshake protocol." {
		t.Errorf("reply = %+v", last)
	}
}

func TestHandleConversationDeniedByKillSwitch(t *testing.T) {
	srv := fakeBackend(t, "should never be produced")
	defer srv.Close()
	f := newFixture(t, srv.URL, true)

	if err := f.router.Handle(context.Background(), "hello over there"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	msgs := f.waitForMessages(t, 3)
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "disabled") {
		t.Errorf("denial message = %q", last.Content)
	}
	if strings.Contains(last.Content, "should never be produced") {
		t.Error("denied request still reached the backend")
	}
}

func TestHandleModelSwitchIntent(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", false)

	if err := f.router.Handle(context.Background(), "switch model to mistral"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := f.router.SelectedModel(); got != "mistral" {
		t.Errorf("model = %q, want mistral", got)
	}
	msgs, _ := f.manager.Messages(f.manager.ActiveID())
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "mistral") {
		t.Errorf("confirmation = %q", last.Content)
	}
}

func TestHandleClearStartsNewThread(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", false)
	before := f.manager.ActiveID()

	if err := f.router.Handle(context.Background(), "/clear"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if f.manager.ActiveID() == before {
		t.Error("clear should activate a fresh thread")
	}
}

func TestHandleRejectsInvalidTarget(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", false)

	if err := f.router.Handle(context.Background(), "/nmap example.com;id"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msgs, _ := f.manager.Messages(f.manager.ActiveID())
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "doesn't look safe") {
		t.Errorf("expected target rejection, got %q", last.Content)
	}
}

func TestHandleHelpIsSynchronous(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", false)

	if err := f.router.Handle(context.Background(), "/help"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msgs, _ := f.manager.Messages(f.manager.ActiveID())
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "/scan") {
		t.Errorf("help text missing commands: %q", last.Content)
	}
}

func TestStopWithNothingRunning(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", false)
	if f.router.StopActive() {
		t.Error("StopActive with no generation should report false")
	}
}

// waitFor polls the active thread until pred holds.
func (f *fixture) waitFor(t *testing.T, desc string, pred func([]models.Message) bool) []models.Message {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := f.manager.Messages(f.manager.ActiveID())
		if err != nil {
			t.Fatal(err)
		}
		if pred(msgs) {
			return msgs
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
	return nil
}

func noneStreaming(msgs []models.Message) bool {
	for _, m := range msgs {
		if m.IsStreaming {
			return false
		}
	}
	return true
}

// A second message while a stream is in flight must preempt the first stream,
// never run two streams on one thread, and keep the new stream stoppable.
func TestSecondMessagePreemptsInFlightStream(t *testing.T) {
	release := make(chan struct{})
	srv := blockingBackend(t, "thinking", release)
	defer srv.Close()
	defer close(release)
	f := newFixture(t, srv.URL, false)

	if err := f.router.Handle(context.Background(), "explain TLS handshakes to me"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.waitFor(t, "the first stream's delta", func(msgs []models.Message) bool {
		last := msgs[len(msgs)-1]
		return last.IsStreaming && last.Content == "thinking"
	})

	if err := f.router.Handle(context.Background(), "explain SSH ciphers to me"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// Handle preempts synchronously, so the first stream is already final.
	msgs, err := f.manager.Messages(f.manager.ActiveID())
	if err != nil {
		t.Fatal(err)
	}
	// welcome, user, preempted reply, user, live reply
	if len(msgs) != 5 {
		t.Fatalf("message count = %d: %+v", len(msgs), msgs)
	}
	if msgs[2].IsStreaming || msgs[2].Content != "thinking" {
		t.Errorf("preempted message should be finalized with its partial content: %+v", msgs[2])
	}
	streaming := 0
	for _, m := range msgs {
		if m.IsStreaming {
			streaming++
		}
	}
	if streaming != 1 {
		t.Fatalf("streaming messages on the thread = %d, want exactly 1", streaming)
	}

	if !f.router.StopActive() {
		t.Error("the live stream should remain stoppable after preemption")
	}
	f.waitFor(t, "the live stream to finalize", noneStreaming)
	if f.router.StopActive() {
		t.Error("registry entry should be released once the stream finalizes")
	}
}

func TestStopCancelsInFlightStream(t *testing.T) {
	release := make(chan struct{})
	srv := blockingBackend(t, "partial answer", release)
	defer srv.Close()
	defer close(release)
	f := newFixture(t, srv.URL, false)

	if err := f.router.Handle(context.Background(), "explain TLS handshakes to me"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.waitFor(t, "the stream's delta", func(msgs []models.Message) bool {
		return msgs[len(msgs)-1].Content == "partial answer"
	})

	if !f.router.StopActive() {
		t.Fatal("expected an in-flight stream to be stoppable")
	}
	msgs := f.waitFor(t, "finalization after stop", noneStreaming)
	if got := msgs[len(msgs)-1].Content; got != "partial answer" {
		t.Errorf("stopped message = %q, want the partial content kept", got)
	}
}
