package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/hackpilot/hackpilot/internal/logger"
)

const truncationMarker = "\n... (truncated)"

// Result is the outcome of one tool invocation. Output holds stdout with
// stderr concatenated after it when both are non-empty.
type Result struct {
	Output   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Executor runs external tools with a bounded timeout and bounded output.
// Each invocation owns its process handle; an Executor is safe for
// concurrent use.
type Executor struct {
	workDir        string
	defaultTimeout time.Duration
	maxOutputBytes int
}

func New(workDir string, timeout time.Duration, maxOutputBytes int) *Executor {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = 64 * 1024
	}
	return &Executor{
		workDir:        workDir,
		defaultTimeout: timeout,
		maxOutputBytes: maxOutputBytes,
	}
}

// Run executes name with args directly (no shell interpretation). The
// subprocess gets the executor's working directory and a minimal
// environment; on timeout it is killed and the result is marked TimedOut.
func (e *Executor) Run(ctx context.Context, name string, args ...string) Result {
	ctx, cancel := context.WithTimeout(ctx, e.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	return e.execute(ctx, cmd, name)
}

// RunShell executes a shell-interpreted command line. Callers must quote any
// untrusted substrings with ShellQuote before building the line. Commands
// matching the dangerous-pattern denylist are refused without starting a
// process.
func (e *Executor) RunShell(ctx context.Context, command string) Result {
	if pattern, bad := isDangerous(command); bad {
		return Result{
			Output:   fmt.Sprintf("Command blocked: matches dangerous pattern '%s'.", pattern),
			ExitCode: -1,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	return e.execute(ctx, cmd, command)
}

func (e *Executor) execute(ctx context.Context, cmd *exec.Cmd, label string) Result {
	cmd.Dir = e.workDir
	cmd.Env = minimalEnv()
	// Kill the whole process group on timeout so shell children die with
	// their parent; WaitDelay is the last resort if the pipes stay open.
	configureProcess(cmd)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	output := stdout.String()
	if errOut := stderr.String(); errOut != "" {
		if output != "" {
			output += "\n"
		}
		output += errOut
	}
	if len(output) > e.maxOutputBytes {
		output = output[:e.maxOutputBytes] + truncationMarker
	}

	res := Result{Output: output, Duration: dur}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		res.Output = fmt.Sprintf("Command timed out after %s\n%s", e.defaultTimeout, output)
		logger.Warn("Tool timed out: %s", label)
		return res
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if output == "" {
				res.Output = err.Error()
			}
		}
		return res
	}

	if strings.TrimSpace(res.Output) == "" {
		res.Output = "(no output)"
	}
	return res
}

// minimalEnv passes through only what tools need to resolve binaries and
// write temp files, never the full ambient environment.
func minimalEnv() []string {
	env := []string{}
	for _, key := range []string{"PATH", "HOME", "TMPDIR", "LANG", "TERM"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// ShellQuote wraps s in single quotes with embedded single quotes escaped
// as '\'' so the value survives shell interpretation as a single literal.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var targetPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.\-:/]+$`)

// ValidateTarget accepts hostnames, IPs, and URLs-without-scheme shapes and
// rejects anything that could smuggle shell metacharacters.
func ValidateTarget(target string) error {
	t := strings.TrimSpace(target)
	t = strings.TrimPrefix(t, "https://")
	t = strings.TrimPrefix(t, "http://")
	if t == "" {
		return fmt.Errorf("target is empty")
	}
	if len(t) > 253 {
		return fmt.Errorf("target too long")
	}
	if !targetPattern.MatchString(t) {
		return fmt.Errorf("invalid target %q: only letters, digits, dots, dashes, colons and slashes are allowed", target)
	}
	return nil
}

var dangerousPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	"mkfs.",
	"dd if=",
	":(){ :|:& };:",
	"> /dev/sd",
	"> /dev/nvme",
	"shutdown",
	"reboot",
	"halt",
	"poweroff",
	"init 0",
	"init 6",
	"chmod -R 777 /",
}

func isDangerous(cmd string) (string, bool) {
	normalized := strings.TrimSpace(strings.ToLower(cmd))
	for _, pattern := range dangerousPatterns {
		if strings.Contains(normalized, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// LookupTools reports which of the named binaries are resolvable on PATH.
func LookupTools(names []string) map[string]bool {
	found := make(map[string]bool, len(names))
	for _, name := range names {
		_, err := exec.LookPath(name)
		found[name] = err == nil
	}
	return found
}
