package intent

import (
	"regexp"
	"strings"
)

// Action identifies what a classified message asks the orchestrator to do.
type Action string

const (
	ActionScan        Action = "scan"
	ActionRecon       Action = "recon"
	ActionNmap        Action = "nmap"
	ActionWhois       Action = "whois"
	ActionDig         Action = "dig"
	ActionCurl        Action = "curl"
	ActionTools       Action = "tools"
	ActionDocker      Action = "docker"
	ActionStatus      Action = "status"
	ActionConfig      Action = "config"
	ActionCompliance  Action = "compliance"
	ActionSessions    Action = "sessions"
	ActionMCP         Action = "mcp"
	ActionModels      Action = "models"
	ActionModelSwitch Action = "model_switch"
	ActionClear       Action = "clear"
	ActionHelp        Action = "help"
	ActionShell       Action = "shell"
	ActionNone        Action = "none"
)

// Match is the result of classifying one message. Transient; never persisted.
type Match struct {
	Action   Action
	Target   string
	RawInput string
}

type rule struct {
	action  Action
	pattern *regexp.Regexp
}

// host is the target-shaped token the tool rules capture: an IP, hostname,
// or URL. Capturing a token instead of the clause tail keeps "scan X for
// open ports" from swallowing the trailing words.
const host = `([a-z0-9][a-z0-9.\-:/]*)`

// Ordered rule table. The first matching rule wins, so specific phrasings
// (model switching, compliance) sit above the generic tool verbs, and the
// generic shell escape hatch sits last.
var rules = []rule{
	{ActionModelSwitch, regexp.MustCompile(`(?:switch|change|set)\s+(?:the\s+)?model\s+(?:to\s+)?(\S+)|use\s+(?:the\s+)?(\S+)\s+model`)},
	{ActionModels, regexp.MustCompile(`(?:list|show|what|which|available)\b.*\bmodels?\b|^models?$`)},
	{ActionCompliance, regexp.MustCompile(`\bcompliance\b(?:\s+(?:check|report|status))?(?:\s+(?:for|on)\s+` + host + `)?`)},
	{ActionMCP, regexp.MustCompile(`\bmcp\b(?:\s+servers?)?|\bcontext\s+protocol\b`)},
	{ActionSessions, regexp.MustCompile(`(?:list|show|my)\s+(?:sessions?|threads?|conversations?)|^sessions?$`)},
	{ActionStatus, regexp.MustCompile(`(?:system|show|check)?\s*\bstatus\b|\bhealth\s*check\b`)},
	{ActionConfig, regexp.MustCompile(`(?:show|view|current)\s+(?:config|configuration|settings)|^config$`)},
	{ActionClear, regexp.MustCompile(`^(?:clear|reset)(?:\s+(?:the\s+)?(?:chat|session|conversation|screen))?$|^new\s+(?:session|chat|conversation)$`)},
	{ActionHelp, regexp.MustCompile(`^help$|^\?$|what\s+can\s+you\s+do|(?:show|list)\s+(?:commands|help)`)},
	{ActionNmap, regexp.MustCompile(`\bnmap\b(?:\s+(?:scan\s+)?(?:of\s+|on\s+|against\s+)?` + host + `)?`)},
	{ActionWhois, regexp.MustCompile(`\bwhois\b(?:\s+(?:lookup\s+)?(?:for\s+|of\s+|on\s+)?` + host + `)?|who\s+owns\s+` + host)},
	{ActionDig, regexp.MustCompile(`\bdig\b\s+` + host + `|dns\s+(?:lookup|records?|query)\s+(?:for\s+)?` + host + `|resolve\s+` + host)},
	{ActionCurl, regexp.MustCompile(`\bcurl\b\s+` + host + `|(?:fetch|http\s+(?:get|request))\s+` + host + `|check\s+headers?\s+(?:for|on|of)\s+` + host)},
	{ActionScan, regexp.MustCompile(`\b(?:port\s+)?scan\b(?:\s+(?:ports?\s+(?:on|of)\s+)?(?:the\s+)?(?:target\s+)?` + host + `)?`)},
	{ActionRecon, regexp.MustCompile(`\brecon(?:naissance)?\b(?:\s+(?:on\s+|of\s+|against\s+)?` + host + `)?|enumerate\s+` + host + `|footprint\s+` + host)},
	{ActionDocker, regexp.MustCompile(`\bdocker\b(?:\s+(\S+))?|(?:list|show|running)\s+containers?`)},
	{ActionTools, regexp.MustCompile(`(?:list|show|available|what|which)\b.*\btools?\b|^tools?$`)},
	{ActionShell, regexp.MustCompile(`^(?:run|exec(?:ute)?|shell)\s+(.+)`)},
}

// fillerPrefixes are stripped from the front of an extracted target, longest
// match first, repeatedly.
var fillerPrefixes = []string{
	"target ", "on the ", "for the ", "of the ", "on ", "for ", "of ",
	"at ", "the ", "a ", "an ", "host ", "server ", "domain ", "site ",
	"url ", "ip ",
}

// Classify maps free text to an action plus extracted target. Matching runs
// against the lower-cased, trimmed input; the first rule in the table that
// matches wins. The target is the last non-empty capture group of length
// greater than one, scanned from the highest group index downward, then
// re-located in the original-case input so casing survives.
func Classify(text string) Match {
	raw := strings.TrimSpace(text)
	lower := strings.ToLower(raw)
	if lower == "" {
		return Match{Action: ActionNone, RawInput: raw}
	}

	for _, r := range rules {
		groups := r.pattern.FindStringSubmatch(lower)
		if groups == nil {
			continue
		}
		target := ""
		for i := len(groups) - 1; i >= 1; i-- {
			if len(groups[i]) > 1 {
				target = groups[i]
				break
			}
		}
		if target != "" {
			// Relocate in the original input so case is preserved. The
			// lower-cased offsets line up because ToLower on ASCII input
			// is length-preserving for the text we match.
			if idx := strings.Index(lower, target); idx >= 0 && idx+len(target) <= len(raw) {
				target = raw[idx : idx+len(target)]
			}
		}
		return Match{Action: r.action, Target: CleanTarget(target), RawInput: raw}
	}

	return Match{Action: ActionNone, RawInput: raw}
}

// CleanTarget strips leading filler words and trailing punctuation from an
// extracted target so "on the 10.0.0.5." becomes "10.0.0.5".
func CleanTarget(target string) string {
	t := strings.TrimSpace(target)
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(t)
		for _, p := range fillerPrefixes {
			if strings.HasPrefix(lower, p) {
				t = strings.TrimSpace(t[len(p):])
				changed = true
				break
			}
		}
	}
	t = strings.TrimRight(t, ".,;:!?")
	return strings.TrimSpace(t)
}

// IsToolBacked reports whether an action maps to an external tool run rather
// than a synchronous informational response.
func (a Action) IsToolBacked() bool {
	switch a {
	case ActionScan, ActionRecon, ActionNmap, ActionWhois, ActionDig, ActionCurl, ActionTools, ActionDocker, ActionShell:
		return true
	}
	return false
}
