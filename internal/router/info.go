package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hackpilot/hackpilot/internal/executor"
	"github.com/hackpilot/hackpilot/internal/intent"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/models"
)

const helpText = `Commands:
  /scan <target>    quick port scan (nmap -F)
  /nmap <target>    service/version scan (nmap -sV)
  /recon <target>   whois + DNS reconnaissance
  /whois <target>   domain registration lookup
  /dig <target>     DNS records
  /curl <url>       fetch HTTP response headers
  /docker           list running containers
  /shell <cmd>      run a raw command
  /tools            check which tools are installed
  /status           backend, model, and usage overview
  /config           current configuration
  /models           available models
  /model <name>     switch the active model
  /sessions         list sessions
  /usage            today's request/token/cost counters
  /setkey <key>     store the hosted-backend API key
  /compliance       audit-trail summary
  /mcp              context-protocol integrations
  /clear            start a new session
  /stop             cancel the running generation

Anything else is sent to the model. Plain requests like "scan 10.0.0.5"
are recognized and routed to the right tool automatically.`

// respondInfo composes a synchronous answer from live system state. No
// model call is made on these paths.
func (r *Router) respondInfo(ctx context.Context, threadID string, action intent.Action) error {
	var content string
	switch action {
	case intent.ActionHelp:
		content = helpText
	case intent.ActionStatus:
		content = r.statusText(ctx)
	case intent.ActionConfig:
		content = r.configText()
	case intent.ActionModels:
		content = r.modelsText(ctx)
	case intent.ActionSessions:
		content = r.sessionsText()
	case intent.ActionMCP:
		content = "No MCP servers are configured. External context-protocol integrations are planned; for now tools run directly through the executor."
	case intent.ActionCompliance:
		content = r.complianceText()
	default:
		content = helpText
	}
	_, err := r.manager.Append(threadID, models.RoleAssistant, content, "")
	return err
}

func (r *Router) statusText(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("System status:\n")

	local := r.client.LocalReachable(ctx)
	fmt.Fprintf(&b, "  local backend   %s (%s)\n", onOff(local, "reachable", "unreachable"), r.cfg.OllamaURL)
	fmt.Fprintf(&b, "  hosted backend  %s\n", onOff(r.client.HasKey(), "key configured", "no key"))
	fmt.Fprintf(&b, "  backend select  %s\n", r.SelectedBackend())
	fmt.Fprintf(&b, "  model           %s\n", r.SelectedModel())

	snap := r.meter.Snapshot()
	fmt.Fprintf(&b, "  requests today  %d\n", snap.Requests)
	fmt.Fprintf(&b, "  cost today      $%.4f\n", snap.EstimatedCost)

	found := executor.LookupTools(knownTools)
	missing := []string{}
	for name, ok := range found {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		b.WriteString("  tools           all available\n")
	} else {
		fmt.Fprintf(&b, "  tools missing   %s\n", strings.Join(missing, ", "))
	}
	return b.String()
}

func (r *Router) configText() string {
	var b strings.Builder
	b.WriteString("Configuration:\n")
	fmt.Fprintf(&b, "  backend          %s\n", r.SelectedBackend())
	fmt.Fprintf(&b, "  model            %s\n", r.SelectedModel())
	fmt.Fprintf(&b, "  local endpoint   %s\n", r.cfg.OllamaURL)
	fmt.Fprintf(&b, "  hosted endpoint  %s\n", r.cfg.OpenAIBaseURL)
	fmt.Fprintf(&b, "  work dir         %s\n", r.cfg.WorkDir)
	fmt.Fprintf(&b, "  command timeout  %ds\n", r.cfg.CommandTimeoutSeconds)
	fmt.Fprintf(&b, "  output limit     %d bytes\n", r.cfg.MaxOutputBytes)
	fmt.Fprintf(&b, "  request limit    %d/day\n", r.cfg.DailyRequestLimit)
	fmt.Fprintf(&b, "  token budget     %d/day\n", r.cfg.DailyTokenBudget)
	fmt.Fprintf(&b, "  cost cap         $%.2f/day\n", r.cfg.DailyCostCapUSD)
	return b.String()
}

func (r *Router) modelsText(ctx context.Context) string {
	var b strings.Builder
	names, err := r.client.LocalModels(ctx)
	if err != nil {
		b.WriteString("Local models: unavailable (" + llm.Remediation(err) + ")\n")
	} else if len(names) == 0 {
		b.WriteString("Local models: none pulled yet (try: ollama pull llama3)\n")
	} else {
		b.WriteString("Local models:\n")
		for _, name := range names {
			b.WriteString("  " + name + "\n")
		}
	}
	if r.client.HasKey() {
		b.WriteString("Hosted models: gpt-4o, gpt-4o-mini, gpt-3.5-turbo\n")
	} else {
		b.WriteString("Hosted models: set an API key with /setkey to enable\n")
	}
	fmt.Fprintf(&b, "Active: %s. Switch with /model <name>.", r.SelectedModel())
	return b.String()
}

func (r *Router) sessionsText() string {
	threads, err := r.manager.ListThreads()
	if err != nil {
		return "Failed to list sessions: " + err.Error()
	}
	if len(threads) == 0 {
		return "No sessions yet."
	}
	active := r.manager.ActiveID()
	var b strings.Builder
	b.WriteString("Sessions (most recent first):\n")
	for _, t := range threads {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "  %s %s  %s  (%s)\n", marker, t.ID[:8], t.Title, t.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
	return b.String()
}

// complianceText summarizes the audit trail: what ran, against what, when.
func (r *Router) complianceText() string {
	since := time.Now().UTC().AddDate(0, 0, -7)
	entries, err := r.db.RecentAuditEntries(since, 20)
	if err != nil {
		return "Failed to read the audit trail: " + err.Error()
	}
	if len(entries) == 0 {
		return "Audit trail is empty for the last 7 days."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Audit trail, last 7 days (%d most recent shown):\n", len(entries))
	for _, e := range entries {
		target := e.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(&b, "  %s  %-12s %-10s %s\n", e.CreatedAt.Local().Format("Jan 2 15:04"), e.Action, e.Category, target)
	}
	b.WriteString("Every tool run, secret change, and model switch is recorded.")
	return b.String()
}

func onOff(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
