// Package preflight implements the readiness checker of spec §4.7: it
// probes for required CLI tools and credentials before a task is
// admitted, and can scope its tool table to just the tools a specific
// task description is likely to need. Grounded on
// original_source/src/preflight.rs.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/kaelvex/fabricd/internal/vault"
)

// ToolCheck describes one CLI binary the checker looks for on PATH.
type ToolCheck struct {
	Name        string // binary name, e.g. "git"
	Required    bool
	Description string
}

// CredentialKind selects how a CredentialCheck is satisfied.
type CredentialKind int

const (
	CredGithubCLI CredentialKind = iota
	CredEnvVar
	CredSSHKeyFile
	CredVaultEntry
)

// CredentialCheck describes one credential source the checker verifies.
type CredentialCheck struct {
	Name     string
	Kind     CredentialKind
	EnvVar   string   // for CredEnvVar
	Paths    []string // for CredSSHKeyFile: candidate file paths, first hit wins
	Required bool
}

// Result is the outcome of a full preflight run.
type Result struct {
	Ready         bool
	MissingTools  []string
	MissingCreds  []string
	Warnings      []string
}

// FormatError renders a human-readable failure summary, or "" if Ready.
func (r Result) FormatError() string {
	if r.Ready {
		return ""
	}
	var b strings.Builder
	b.WriteString("preflight check failed:\n")
	for _, t := range r.MissingTools {
		fmt.Fprintf(&b, "  missing tool: %s\n", t)
	}
	for _, c := range r.MissingCreds {
		fmt.Fprintf(&b, "  missing credential: %s\n", c)
	}
	return b.String()
}

// FormatWarnings renders non-fatal warnings (missing optional tools or
// credentials), or "" if there are none.
func (r Result) FormatWarnings() string {
	if len(r.Warnings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("preflight warnings:\n")
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  %s\n", w)
	}
	return b.String()
}

// Checker runs tool and credential probes, optionally backed by a vault:
// a CredVaultEntry check passes when the vault has an entry of that name.
type Checker struct {
	tools Tools
	creds []CredentialCheck
	vault *vault.Vault
}

// Tools is the table of tool checks, exported so callers can extend the
// defaults.
type Tools []ToolCheck

// New builds a checker with the default tool and credential tables:
// aiCommand (the AI CLI, "claude" if empty), git, gh, cargo, node, npm
// as tools; GitHub auth (gh CLI or GITHUB_TOKEN env or an SSH key
// file), and ANTHROPIC_API_KEY as credentials. Per spec §4.7, only the
// AI CLI is ever mandatory — every other tool and credential is a
// non-blocking warning if missing. v may be nil if no vault is wired.
func New(v *vault.Vault, aiCommand string) *Checker {
	if aiCommand == "" {
		aiCommand = "claude"
	}
	home, _ := os.UserHomeDir()
	return &Checker{
		vault: v,
		tools: Tools{
			{Name: aiCommand, Required: true, Description: "AI CLI"},
			{Name: "git", Required: false, Description: "version control"},
			{Name: "gh", Required: false, Description: "GitHub CLI"},
			{Name: "cargo", Required: false, Description: "Rust toolchain"},
			{Name: "node", Required: false, Description: "Node.js runtime"},
			{Name: "npm", Required: false, Description: "Node package manager"},
		},
		creds: []CredentialCheck{
			{Name: "github", Kind: CredGithubCLI, Required: false},
			{Name: "github", Kind: CredEnvVar, EnvVar: "GITHUB_TOKEN", Required: false},
			{Name: "github", Kind: CredSSHKeyFile, Paths: []string{
				home + "/.ssh/id_ed25519", home + "/.ssh/id_rsa",
			}, Required: false},
			{Name: "anthropic", Kind: CredEnvVar, EnvVar: "ANTHROPIC_API_KEY", Required: false},
		},
	}
}

// CheckAll runs every tool probe concurrently, then every credential
// check in turn, and aggregates the result. A missing Required tool or
// credential makes Ready false; a missing optional one becomes a Warning.
func (c *Checker) CheckAll(ctx context.Context) Result {
	return c.checkTools(ctx, c.tools)
}

// CheckForCommand scopes the tool table to what detectRequiredTools
// infers from the task description, then runs the same checks as
// CheckAll against that subset plus every Required tool (the AI CLI).
func (c *Checker) CheckForCommand(ctx context.Context, description string) Result {
	needed := detectRequiredTools(description)
	scoped := make(Tools, 0, len(c.tools))
	seen := map[string]bool{}
	for _, t := range c.tools {
		if t.Required || needed[t.Name] {
			scoped = append(scoped, t)
			seen[t.Name] = true
		}
	}
	return c.checkTools(ctx, scoped)
}

func (c *Checker) checkTools(ctx context.Context, tools Tools) Result {
	var (
		mu     sync.Mutex
		result Result
	)
	result.Ready = true

	var wg sync.WaitGroup
	for _, t := range tools {
		wg.Add(1)
		go func(t ToolCheck) {
			defer wg.Done()
			ok := toolExists(ctx, t.Name)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				return
			}
			if t.Required {
				result.Ready = false
				result.MissingTools = append(result.MissingTools, t.Name)
			} else {
				result.Warnings = append(result.Warnings, fmt.Sprintf("optional tool %q not found (%s)", t.Name, t.Description))
			}
		}(t)
	}
	wg.Wait()

	for _, cc := range c.creds {
		ok := c.checkCredential(ctx, cc)
		if ok {
			continue
		}
		if cc.Required {
			result.Ready = false
			result.MissingCreds = append(result.MissingCreds, cc.Name)
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("optional credential %q not satisfied", cc.Name))
		}
	}

	return result
}

// toolExists reports whether name resolves on PATH.
func toolExists(_ context.Context, name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// checkCredential evaluates one CredentialCheck against its kind.
func (c *Checker) checkCredential(ctx context.Context, cc CredentialCheck) bool {
	switch cc.Kind {
	case CredGithubCLI:
		return checkGithubCLIAuth(ctx)
	case CredEnvVar:
		return strings.TrimSpace(os.Getenv(cc.EnvVar)) != ""
	case CredSSHKeyFile:
		for _, p := range cc.Paths {
			if fileExists(p) {
				return true
			}
		}
		return false
	case CredVaultEntry:
		if c.vault == nil {
			return false
		}
		return c.vault.Exists(cc.Name)
	default:
		return false
	}
}

// checkGithubCLIAuth shells out to `gh auth status`, succeeding only on
// a zero exit code.
func checkGithubCLIAuth(ctx context.Context) bool {
	if _, err := exec.LookPath("gh"); err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	return cmd.Run() == nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// detectRequiredTools applies substring heuristics over a task
// description to infer which optional tools it is likely to need,
// mirroring original_source/src/preflight.rs's keyword table.
func detectRequiredTools(description string) map[string]bool {
	d := strings.ToLower(description)
	needed := map[string]bool{}

	keywordTools := map[string][]string{
		"gh":    {"github", "pull request", "pr ", "gh "},
		"git":   {"git", "commit", "branch", "clone"},
		"cargo": {"cargo", "rust crate", ".rs"},
		"node":  {"node", "npm", "javascript", ".js", "typescript", ".ts"},
		"npm":   {"npm install", "npm run"},
	}
	for tool, keywords := range keywordTools {
		for _, kw := range keywords {
			if strings.Contains(d, kw) {
				needed[tool] = true
				break
			}
		}
	}
	return needed
}

// CheckClaudeCLI is a fast, standalone probe for the claude binary and
// its reported version.
func CheckClaudeCLI(ctx context.Context) (installed bool, version string) {
	if _, err := exec.LookPath("claude"); err != nil {
		return false, ""
	}
	out, err := exec.CommandContext(ctx, "claude", "--version").Output()
	if err != nil {
		return true, ""
	}
	return true, strings.TrimSpace(string(out))
}
