package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/hackpilot/hackpilot/internal/intent"
	"github.com/hackpilot/hackpilot/internal/models"
	"github.com/hackpilot/hackpilot/internal/secrets"
)

// handleCommand dispatches a /command. The first token names the command,
// the remainder is its single argument.
func (r *Router) handleCommand(ctx context.Context, threadID, text string) error {
	name, arg := splitCommand(text)

	switch name {
	case "help":
		return r.respondInfo(ctx, threadID, intent.ActionHelp)
	case "status":
		return r.respondInfo(ctx, threadID, intent.ActionStatus)
	case "config":
		return r.respondInfo(ctx, threadID, intent.ActionConfig)
	case "models":
		return r.respondInfo(ctx, threadID, intent.ActionModels)
	case "sessions":
		return r.respondInfo(ctx, threadID, intent.ActionSessions)
	case "mcp":
		return r.respondInfo(ctx, threadID, intent.ActionMCP)
	case "compliance":
		return r.respondInfo(ctx, threadID, intent.ActionCompliance)
	case "usage":
		return r.respondUsage(threadID)
	case "tools":
		return r.respondToolAvailability(threadID)
	case "scan", "nmap", "whois", "dig", "curl", "recon", "docker":
		return r.startToolAction(threadID, intent.Action(name), intent.CleanTarget(arg))
	case "shell", "run", "exec":
		return r.startShell(threadID, arg)
	case "model":
		return r.switchModel(threadID, arg)
	case "clear", "new":
		_, err := r.manager.NewThread()
		return err
	case "stop":
		if r.Stop(threadID) {
			return nil
		}
		_, err := r.manager.Append(threadID, models.RoleAssistant, "Nothing is running.", "")
		return err
	case "setkey":
		return r.setAPIKey(threadID, arg)
	default:
		_, err := r.manager.Append(threadID, models.RoleAssistant,
			fmt.Sprintf("Unknown command /%s. Type /help for the command list.", name), "")
		return err
	}
}

func splitCommand(text string) (name, arg string) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	parts := strings.SplitN(text, " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return name, arg
}

// setAPIKey validates, encrypts, and stores the hosted-backend key, then
// hands it to the model client. The key itself never reaches the thread.
func (r *Router) setAPIKey(threadID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		_, err := r.manager.Append(threadID, models.RoleAssistant, "Usage: /setkey sk-...", "")
		return err
	}
	if err := secrets.ValidateFormat(secrets.KindOpenAIKey, key); err != nil {
		_, aerr := r.manager.Append(threadID, models.RoleAssistant, "That key doesn't look right: "+err.Error(), "")
		return aerr
	}
	if err := r.secrets.Set(secrets.KindOpenAIKey, key); err != nil {
		_, aerr := r.manager.Append(threadID, models.RoleAssistant, "Failed to store the key: "+err.Error(), "")
		return aerr
	}
	r.client.UpdateAPIKey(key)
	r.db.LogAudit("secret_set", "secrets", secrets.KindOpenAIKey, "")
	_, err := r.manager.Append(threadID, models.RoleAssistant, "API key stored. The hosted backend is now available.", "")
	return err
}

func (r *Router) respondUsage(threadID string) error {
	snap := r.meter.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Usage for %s:\n", snap.Date)
	fmt.Fprintf(&b, "  requests  %d", snap.Requests)
	if snap.Limits.RequestLimit > 0 {
		fmt.Fprintf(&b, " / %d", snap.Limits.RequestLimit)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  tokens    %d", snap.Tokens)
	if snap.Limits.TokenBudget > 0 {
		fmt.Fprintf(&b, " / %d", snap.Limits.TokenBudget)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  cost      $%.4f", snap.EstimatedCost)
	if snap.Limits.CostCapUSD > 0 {
		fmt.Fprintf(&b, " / $%.2f", snap.Limits.CostCapUSD)
	}
	b.WriteString("\n")
	if !snap.Enabled {
		b.WriteString("  metering is disabled\n")
	}
	if snap.AIDisabled {
		b.WriteString("  AI calls are disabled\n")
	}
	if snap.Degraded {
		b.WriteString("  counters are in-memory only (store unwritable)\n")
	}
	_, err := r.manager.Append(threadID, models.RoleAssistant, b.String(), "")
	return err
}
