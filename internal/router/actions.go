package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hackpilot/hackpilot/internal/executor"
	"github.com/hackpilot/hackpilot/internal/intent"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/models"
)

// knownTools are the external binaries the orchestrator drives. Availability
// is checked live, never assumed.
var knownTools = []string{"nmap", "whois", "dig", "curl", "docker", "sh"}

// KnownTools returns the binaries the orchestrator can drive.
func KnownTools() []string {
	out := make([]string, len(knownTools))
	copy(out, knownTools)
	return out
}

// toolCommand describes how one tool-backed action maps onto a process.
type toolCommand struct {
	tool           string // binary name for availability checks and labels
	needsTarget    bool
	validateTarget bool
	// build returns the shell command line for a cleaned, validated target.
	// The target is shell-quoted by the caller before substitution.
	build func(quoted string) string
}

var toolCommands = map[intent.Action]toolCommand{
	intent.ActionScan: {
		tool: "nmap", needsTarget: true, validateTarget: true,
		build: func(q string) string { return "nmap -F " + q },
	},
	intent.ActionNmap: {
		tool: "nmap", needsTarget: true, validateTarget: true,
		build: func(q string) string { return "nmap -sV " + q },
	},
	intent.ActionRecon: {
		tool: "whois", needsTarget: true, validateTarget: true,
		build: func(q string) string { return fmt.Sprintf("whois %s; dig +short %s", q, q) },
	},
	intent.ActionWhois: {
		tool: "whois", needsTarget: true, validateTarget: true,
		build: func(q string) string { return "whois " + q },
	},
	intent.ActionDig: {
		tool: "dig", needsTarget: true, validateTarget: true,
		build: func(q string) string { return "dig +noall +answer " + q + " ANY" },
	},
	intent.ActionCurl: {
		tool: "curl", needsTarget: true, validateTarget: true,
		build: func(q string) string { return "curl -sSI -m 15 " + q },
	},
	intent.ActionDocker: {
		tool: "docker",
		build: func(string) string { return "docker ps" },
	},
}

// startToolAction runs the action-then-analysis flow: a visible starting
// message, then the tool asynchronously, then a tool-role message with its
// output, then a model follow-up that analyzes that output.
func (r *Router) startToolAction(threadID string, action intent.Action, target string) error {
	switch action {
	case intent.ActionTools:
		return r.respondToolAvailability(threadID)
	case intent.ActionShell:
		return r.startShell(threadID, target)
	}

	tc, ok := toolCommands[action]
	if !ok {
		return fmt.Errorf("no command mapping for action %s", action)
	}

	if tc.needsTarget && target == "" {
		_, err := r.manager.Append(threadID, models.RoleAssistant,
			fmt.Sprintf("I need a target for %s. Try \"%s example.com\" or /%s example.com.", tc.tool, action, action), "")
		return err
	}
	if tc.validateTarget && target != "" {
		if err := executor.ValidateTarget(target); err != nil {
			_, aerr := r.manager.Append(threadID, models.RoleAssistant, "That target doesn't look safe to run: "+err.Error(), "")
			return aerr
		}
	}

	command := tc.build(executor.ShellQuote(target))
	label := tc.tool
	if target != "" {
		label += " against " + target
	}

	if _, err := r.manager.Append(threadID, models.RoleAssistant, "Running "+label+"...", ""); err != nil {
		return err
	}

	go r.runAndAnalyze(threadID, tc.tool, target, command)
	return nil
}

// startShell runs a raw command line (already the full remainder of the
// user's message) through the dangerous-pattern check and the shell.
func (r *Router) startShell(threadID, command string) error {
	if strings.TrimSpace(command) == "" {
		_, err := r.manager.Append(threadID, models.RoleAssistant, "What should I run? Try /shell <command>.", "")
		return err
	}
	if _, err := r.manager.Append(threadID, models.RoleAssistant, "Running command...", ""); err != nil {
		return err
	}
	go r.runAndAnalyze(threadID, "shell", "", command)
	return nil
}

func (r *Router) runAndAnalyze(threadID, tool, target, command string) {
	r.broadcastTool(models.WSToolStarted, tool, target)
	r.db.LogAudit("tool_run", "execution", target, command)

	res := r.exec.RunShell(context.Background(), command)
	logger.Tool(tool, target, res.Duration)
	r.broadcastTool(models.WSToolFinished, tool, target)

	output := res.Output
	if res.TimedOut {
		r.db.LogAudit("tool_timeout", "execution", target, command)
	} else if res.ExitCode != 0 {
		output = fmt.Sprintf("%s\n(exit code %d)", output, res.ExitCode)
	}

	if _, err := r.manager.Append(threadID, models.RoleTool, output, tool); err != nil {
		logger.Error("Failed to append tool output: %v", err)
		return
	}

	r.startAnalysis(threadID, tool, target)
}

// startAnalysis submits the freshly appended tool output to the model with a
// fixed analysis framing. Skipped silently when no backend admits the call;
// the raw tool output already stands on its own.
func (r *Router) startAnalysis(threadID, tool, target string) {
	r.preempt(threadID)

	msg, err := r.manager.BeginStreaming(threadID)
	if err != nil {
		logger.Error("Failed to start analysis message: %v", err)
		return
	}

	window, err := r.manager.ContextWindow(threadID)
	if err != nil {
		r.finishWithError(msg.ID, err)
		return
	}

	subject := tool
	if target != "" {
		subject += " run against " + target
	}
	window = append(window, llm.ChatMessage{
		Role: models.RoleUser,
		Content: fmt.Sprintf("Analyze the %s output above. Provide:\n"+
			"1. Summary of findings\n2. Risk assessment\n3. Recommended next actions", subject),
	})

	r.startGeneration(threadID, msg.ID, window)
}

func (r *Router) respondToolAvailability(threadID string) error {
	found := executor.LookupTools(knownTools)
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Tool availability:\n")
	for _, name := range names {
		mark := "missing"
		if found[name] {
			mark = "ok"
		}
		fmt.Fprintf(&b, "  %-8s %s\n", name, mark)
	}
	_, err := r.manager.Append(threadID, models.RoleAssistant, b.String(), "")
	return err
}

func (r *Router) broadcastTool(event, tool, target string) {
	if r.manager == nil {
		return
	}
	// Tool lifecycle events ride the same notifier as message events.
	type payload struct {
		Tool   string `json:"tool"`
		Target string `json:"target"`
	}
	r.manager.Notify(event, payload{Tool: tool, Target: target})
}
