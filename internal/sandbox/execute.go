package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kaelvex/fabricd/internal/tools"
	"github.com/kaelvex/fabricd/internal/types"
	"github.com/kaelvex/fabricd/internal/vault"
)

const (
	defaultWallClock = 30 * time.Second
	maxCapturedBytes = 1 << 20 // 1 MiB
	maxRedirects     = 3
)

// ClaudeInvoker abstracts the AI CLI invocation path so the sandbox
// doesn't import internal/workerpool directly (avoiding an import
// cycle); cmd/fabricd supplies internal/llm's Client.Invoke.
type ClaudeInvoker func(ctx context.Context, prompt string) (string, error)

// Sandbox executes validated skill definitions under the resource and
// permission limits of spec §4.4.
type Sandbox struct {
	vault   *vault.Vault
	invoke  ClaudeInvoker
	httpCli *http.Client
}

// New builds a Sandbox. v supplies secrets referenced by name in a
// skill's declared environment; invoke is nil-safe (Claude-kind skills
// return an error if no invoker is wired).
func New(v *vault.Vault, invoke ClaudeInvoker) *Sandbox {
	return &Sandbox{
		vault:  v,
		invoke: invoke,
		httpCli: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Execute validates def, binds params, and runs it, enforcing the
// skill's configured timeout (or defaultWallClock) and a level that
// must include NetworkOp for Shell/Script skills to reach the network
// (enforcement of that specific restriction is left to the sandboxed
// environment's network policy — the sandbox itself only gates on
// permission level for the operation categories it can see).
func (s *Sandbox) Execute(ctx context.Context, def *types.SkillDefinition, params map[string]any, level types.PermissionLevel) (*types.SkillExecutionResult, error) {
	if v := Validate(def); !v.Valid {
		return nil, v.Errors[0]
	}

	bound, err := bindValues(def, params)
	if err != nil {
		return nil, err
	}

	timeout := defaultWallClock
	if def.Execution.TimeoutSec > 0 {
		timeout = time.Duration(def.Execution.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result *types.SkillExecutionResult

	switch def.Execution.Kind {
	case types.ExecHTTP:
		if !level.Allows(types.OpNetwork) {
			return nil, &BindError{Parameter: "permission", Message: "level does not allow NetworkOp"}
		}
		result, err = s.execHTTP(ctx, def, bound)
	case types.ExecShell:
		result, err = s.execShell(ctx, def, bound)
	case types.ExecScript:
		result, err = s.execScript(ctx, def, bound)
	case types.ExecClaude:
		result, err = s.execClaude(ctx, def, bound)
	}
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Sandbox) execHTTP(ctx context.Context, def *types.SkillDefinition, bound map[string]any) (*types.SkillExecutionResult, error) {
	url := substituteURL(def.Execution.Endpoint, bound)
	method := def.Execution.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if def.Execution.Script != "" {
		// The Http kind reuses the Script field to carry an optional JSON
		// body template, JSON-encoding substituted parameters.
		body = bytes.NewBufferString(substituteJSON(def.Execution.Script, bound))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range def.Execution.Headers {
		req.Header.Set(k, substituteURL(v, bound))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxCapturedBytes)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}

	return &types.SkillExecutionResult{
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Output:  string(data),
	}, nil
}

func (s *Sandbox) execShell(ctx context.Context, def *types.SkillDefinition, bound map[string]any) (*types.SkillExecutionResult, error) {
	cmdline := substituteShell(def.Execution.Command, bound)
	env, err := s.sanitizedEnv(def)
	if err != nil {
		return nil, err
	}
	return runCommand(ctx, "bash", []string{"-c", cmdline}, env)
}

func (s *Sandbox) execScript(ctx context.Context, def *types.SkillDefinition, bound map[string]any) (*types.SkillExecutionResult, error) {
	interpreter, ext := interpreterFor(def.Execution.Language)
	f, err := os.CreateTemp("", "fabricd-skill-*"+ext)
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	source := substituteShell(def.Execution.Script, bound) // embeds values safely the same way a shell template would
	if err := tools.WriteFile(path, source); err != nil {
		return nil, err
	}

	env, err := s.sanitizedEnv(def)
	if err != nil {
		return nil, err
	}
	return runCommand(ctx, interpreter, []string{path}, env)
}

func (s *Sandbox) execClaude(ctx context.Context, def *types.SkillDefinition, bound map[string]any) (*types.SkillExecutionResult, error) {
	if s.invoke == nil {
		return nil, &BindError{Parameter: "execution", Message: "no Claude CLI invoker wired into this sandbox"}
	}
	prompt := substituteJSON(def.Execution.Prompt, bound)
	out, err := s.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &types.SkillExecutionResult{Success: out != "", Output: out}, nil
}

func interpreterFor(language string) (interpreter, ext string) {
	switch language {
	case "python":
		return "python3", ".py"
	case "javascript":
		return "node", ".js"
	default:
		return "bash", ".sh"
	}
}

type interpreter = string

// runCommand executes name under the sandbox's existing ctx deadline
// (the skill's configured TimeoutSec, or defaultWallClock), passing the
// time left on it as tools.RunCommand's timeout so RunCommand's own
// default does not cut a longer skill timeout short, and folds the
// result into a SkillExecutionResult.
func runCommand(ctx context.Context, name string, args []string, env []string) (*types.SkillExecutionResult, error) {
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	output, exitCode, err := tools.RunCommand(ctx, name, args, env, timeout)
	if err != nil {
		return nil, err
	}
	if len(output) > maxCapturedBytes {
		output = output[:maxCapturedBytes]
	}
	return &types.SkillExecutionResult{
		Success:  exitCode == 0,
		Output:   output,
		ExitCode: &exitCode,
	}, nil
}

// sanitizedEnv builds the child process environment per spec §4.4: a
// fixed allow-list (PATH, HOME, LANG), any literal variables the skill
// declares, and any vault secrets the skill names, injected as
// same-named environment variables. A named secret that the vault
// doesn't have (or can't be read, e.g. while locked) fails the whole
// build rather than silently running without it.
func (s *Sandbox) sanitizedEnv(def *types.SkillDefinition) ([]string, error) {
	allow := []string{"PATH", "HOME", "LANG"}
	env := make([]string, 0, len(allow)+len(def.Execution.Env)+len(def.Execution.Secrets))
	for _, k := range allow {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	for k, v := range def.Execution.Env {
		env = append(env, k+"="+v)
	}
	for _, name := range def.Execution.Secrets {
		if s.vault == nil {
			return nil, &BindError{Parameter: "secrets", Message: fmt.Sprintf("no vault wired to resolve secret %q", name)}
		}
		value, err := s.vault.GetValue(name)
		if err != nil {
			return nil, &BindError{Parameter: "secrets", Message: fmt.Sprintf("secret %q: %v", name, err)}
		}
		env = append(env, name+"="+value)
	}
	return env, nil
}
