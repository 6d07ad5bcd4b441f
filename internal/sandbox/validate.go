// Package sandbox implements the Skill Sandbox of spec §4.4: static
// validation of a skill definition, parameter binding with
// context-appropriate escaping, and bounded execution across the four
// skill kinds (HTTP, Shell, Script, Claude). Grounded on
// original_source/src/skills/types.rs's validate() and
// original_source/src/skills/loader.rs.
package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaelvex/fabricd/internal/types"
)

var skillNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var templateRef = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// shellDenyList matches command-template prefixes that are never safe to
// run regardless of parameter substitution: destructive rm, fork bombs,
// privilege escalation, raw-device writes, filesystem formatting, and
// writes under /etc or /boot.
var shellDenyList = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-\w*r\w*f?\w*|--recursive)\s+/(\s|$)`),
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`), // fork bomb
	regexp.MustCompile(`(?i)\bsudo\b`),
	regexp.MustCompile(`(?i)\bsu\s+-`),
	regexp.MustCompile(`(?i)\bdd\s+.*of=/dev/`),
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)>\s*/etc/`),
	regexp.MustCompile(`(?i)>\s*/boot/`),
}

var httpHostDenyList = []string{"localhost", "127.0.0.1", "0.0.0.0", "::1"}

const maxScriptSourceBytes = 64 * 1024

var allowedScriptLanguages = map[string]bool{"python": true, "javascript": true, "bash": true}

// ValidationError describes one static validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

func (r *ValidationResult) fail(field, msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: msg})
}

// Validate performs the pure static checks of spec §4.4: required
// fields, name/version shape, parameter-reference closure, and
// kind-specific checks (shell deny-list, http host/scheme allow-list,
// script language/size, claude prompt non-empty). It never executes
// anything.
func Validate(def *types.SkillDefinition) ValidationResult {
	r := ValidationResult{Valid: true}

	if def.Skill.Name == "" {
		r.fail("skill.name", "required")
	} else if !skillNamePattern.MatchString(def.Skill.Name) {
		r.fail("skill.name", "must match [A-Za-z0-9_]+")
	}
	if def.Skill.Version == "" {
		r.fail("skill.version", "required")
	} else if !isSemVer(def.Skill.Version) {
		r.fail("skill.version", "must be a semantic version")
	}
	if def.Skill.Description == "" {
		r.fail("skill.description", "required")
	}

	validateParamRefs(def, &r)

	switch def.Execution.Kind {
	case types.ExecHTTP:
		validateHTTP(def, &r)
	case types.ExecShell:
		validateShell(def, &r)
	case types.ExecScript:
		validateScript(def, &r)
	case types.ExecClaude:
		validateClaude(def, &r)
	default:
		r.fail("execution.type", "unknown execution kind")
	}

	return r
}

// validateParamRefs ensures every {{name}} referenced in the execution
// body has a matching entry in the parameter schema.
func validateParamRefs(def *types.SkillDefinition, r *ValidationResult) {
	body := strings.Join([]string{
		def.Execution.Endpoint,
		def.Execution.Command,
		def.Execution.Script,
		def.Execution.Prompt,
	}, "\n")
	for _, m := range templateRef.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if _, ok := def.Parameters[name]; !ok {
			r.fail("parameters", fmt.Sprintf("template references undeclared parameter %q", name))
		}
	}
}

func validateShell(def *types.SkillDefinition, r *ValidationResult) {
	if strings.TrimSpace(def.Execution.Command) == "" {
		r.fail("execution.command", "required for shell skills")
		return
	}
	for _, pat := range shellDenyList {
		if pat.MatchString(def.Execution.Command) {
			r.fail("execution.command", "matches denied command pattern")
			return
		}
	}
}

func validateHTTP(def *types.SkillDefinition, r *ValidationResult) {
	ep := def.Execution.Endpoint
	if ep == "" {
		r.fail("execution.endpoint", "required for http skills")
		return
	}
	if !strings.HasPrefix(ep, "https://") && !strings.HasPrefix(ep, "http://") {
		r.fail("execution.endpoint", "must be an absolute URL")
		return
	}
	if strings.HasPrefix(ep, "http://") {
		r.fail("execution.endpoint", "scheme must be https unless explicitly allowed")
	}
	for _, host := range httpHostDenyList {
		if strings.Contains(ep, host) {
			r.fail("execution.endpoint", fmt.Sprintf("host %q is denied", host))
		}
	}
	if isRFC1918(ep) {
		r.fail("execution.endpoint", "private/link-local host is denied unless explicitly allowed")
	}
}

func validateScript(def *types.SkillDefinition, r *ValidationResult) {
	if !allowedScriptLanguages[strings.ToLower(def.Execution.Language)] {
		r.fail("execution.language", "must be one of python, javascript, bash")
	}
	if len(def.Execution.Script) > maxScriptSourceBytes {
		r.fail("execution.script", "exceeds maximum source size")
	}
	if strings.TrimSpace(def.Execution.Script) == "" {
		r.fail("execution.script", "required for script skills")
	}
}

func validateClaude(def *types.SkillDefinition, r *ValidationResult) {
	if strings.TrimSpace(def.Execution.Prompt) == "" {
		r.fail("execution.prompt", "required for claude skills")
	}
}

func isSemVer(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, ch := range p {
			if ch < '0' || ch > '9' {
				return false
			}
		}
	}
	return true
}

// isRFC1918 does a cheap substring check for common private ranges in a
// URL's host portion; a full implementation would parse and resolve the
// host, but the deny-list is advisory-strict rather than exhaustive.
func isRFC1918(url string) bool {
	for _, prefix := range []string{"://10.", "://192.168.", "://169.254."} {
		if strings.Contains(url, prefix) {
			return true
		}
	}
	if idx := strings.Index(url, "://172."); idx != -1 {
		rest := url[idx+len("://172."):]
		var octet int
		for _, ch := range rest {
			if ch < '0' || ch > '9' {
				break
			}
			octet = octet*10 + int(ch-'0')
		}
		if octet >= 16 && octet <= 31 {
			return true
		}
	}
	return false
}
