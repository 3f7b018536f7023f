package intent

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		input      string
		wantAction Action
		wantTarget string
	}{
		{"scan with filler", "Scan 10.0.0.5 for open ports", ActionScan, "10.0.0.5"},
		{"plain scan", "scan 10.0.0.5", ActionScan, "10.0.0.5"},
		{"scan ports phrasing", "scan ports on example.com", ActionScan, "example.com"},
		{"nmap direct", "nmap scanme.nmap.org", ActionNmap, "scanme.nmap.org"},
		{"whois", "whois example.com", ActionWhois, "example.com"},
		{"who owns", "who owns example.com", ActionWhois, "example.com"},
		{"dig", "dig example.com", ActionDig, "example.com"},
		{"dns lookup", "dns lookup for example.com", ActionDig, "example.com"},
		{"curl", "curl https://example.com", ActionCurl, "https://example.com"},
		{"check headers", "check headers for example.com", ActionCurl, "example.com"},
		{"recon", "recon on example.com", ActionRecon, "example.com"},
		{"docker", "show running containers", ActionDocker, ""},
		{"tools", "what tools are available", ActionTools, ""},
		{"status", "system status", ActionStatus, ""},
		{"config", "show config", ActionConfig, ""},
		{"sessions", "list sessions", ActionSessions, ""},
		{"mcp", "list mcp servers", ActionMCP, ""},
		{"models", "which models are available", ActionModels, ""},
		{"model switch to", "switch model to mistral", ActionModelSwitch, "mistral"},
		{"use model phrasing", "use the codellama model", ActionModelSwitch, "codellama"},
		{"clear", "clear", ActionClear, ""},
		{"new session", "new session", ActionClear, ""},
		{"help", "help", ActionHelp, ""},
		{"shell", "run whoami", ActionShell, "whoami"},
		{"compliance", "compliance report", ActionCompliance, ""},
		{"no match question", "why is the sky blue?", ActionNone, ""},
		{"no match chat", "tell me about TLS handshakes", ActionNone, ""},
		{"empty", "", ActionNone, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.input)
			if got.Action != tc.wantAction {
				t.Fatalf("Classify(%q).Action = %q, want %q", tc.input, got.Action, tc.wantAction)
			}
			if got.Target != tc.wantTarget {
				t.Errorf("Classify(%q).Target = %q, want %q", tc.input, got.Target, tc.wantTarget)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []string{
		"scan 10.0.0.5",
		"whois example.com",
		"tell me a joke",
		"switch model to mistral",
	}
	for _, input := range inputs {
		first := Classify(input)
		for i := 0; i < 50; i++ {
			got := Classify(input)
			if got.Action != first.Action || got.Target != first.Target {
				t.Fatalf("Classify(%q) unstable: %+v vs %+v", input, first, got)
			}
		}
	}
}

// Multi-clause inputs extract only the first host token; the second clause
// is dropped, not batched. Pinned here so a change is deliberate.
func TestClassifyAdversarialMultiClause(t *testing.T) {
	got := Classify("scan 10.0.0.1 and then 10.0.0.2")
	if got.Action != ActionScan {
		t.Fatalf("action = %q, want scan", got.Action)
	}
	if got.Target != "10.0.0.1" {
		t.Errorf("target = %q, want first host token only", got.Target)
	}
}

func TestClassifyPreservesTargetCase(t *testing.T) {
	got := Classify("whois ExAmPle.COM")
	if got.Target != "ExAmPle.COM" {
		t.Errorf("target = %q, want original casing preserved", got.Target)
	}
}

func TestCleanTarget(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"target 10.0.0.5", "10.0.0.5"},
		{"on the example.com.", "example.com"},
		{"the host example.com", "example.com"},
		{"example.com!", "example.com"},
		{"  example.com  ", "example.com"},
		{"example.com", "example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanTarget(tc.in); got != tc.want {
			t.Errorf("CleanTarget(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRuleOrderPriority(t *testing.T) {
	// "scan" appears in the text, but the model-switch rule sits above the
	// tool verbs, so the explicit model phrasing wins.
	got := Classify("switch model to scan-llama")
	if got.Action != ActionModelSwitch {
		t.Fatalf("action = %q, want model_switch", got.Action)
	}
}

func TestIsToolBacked(t *testing.T) {
	toolBacked := []Action{ActionScan, ActionRecon, ActionNmap, ActionWhois, ActionDig, ActionCurl, ActionTools, ActionDocker, ActionShell}
	for _, a := range toolBacked {
		if !a.IsToolBacked() {
			t.Errorf("%s should be tool-backed", a)
		}
	}
	informational := []Action{ActionStatus, ActionConfig, ActionModels, ActionSessions, ActionMCP, ActionHelp, ActionClear, ActionModelSwitch, ActionNone}
	for _, a := range informational {
		if a.IsToolBacked() {
			t.Errorf("%s should not be tool-backed", a)
		}
	}
}
