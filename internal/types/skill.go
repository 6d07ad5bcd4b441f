package types

import "time"

// ParameterType is the JSON-Schema-ish type tag for a skill parameter.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamInteger ParameterType = "integer"
	ParamBoolean ParameterType = "boolean"
	ParamArray   ParameterType = "array"
	ParamObject  ParameterType = "object"
)

// SkillParameter declares one input to a skill.
type SkillParameter struct {
	Type        ParameterType `toml:"type" json:"type"`
	Description string        `toml:"description" json:"description"`
	Required    bool          `toml:"required" json:"required"`
	Default     any           `toml:"default,omitempty" json:"default,omitempty"`
	Enum        []string      `toml:"enum,omitempty" json:"enum,omitempty"`
	Minimum     *float64      `toml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64      `toml:"maximum,omitempty" json:"maximum,omitempty"`
	Pattern     string        `toml:"pattern,omitempty" json:"pattern,omitempty"`
}

// ExecutionKind tags which of the four execution variants a skill uses.
type ExecutionKind string

const (
	ExecHTTP   ExecutionKind = "http"
	ExecShell  ExecutionKind = "shell"
	ExecScript ExecutionKind = "script"
	ExecClaude ExecutionKind = "claude"
)

// ExecutionConfig carries kind-specific fields for all four execution
// kinds in one flat struct, tagged by Kind. The sandbox switches on Kind
// rather than using dynamic dispatch (see spec Design Notes).
type ExecutionConfig struct {
	Kind       ExecutionKind     `toml:"type" json:"type"`
	Endpoint   string            `toml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Method     string            `toml:"method,omitempty" json:"method,omitempty"`
	Headers    map[string]string `toml:"headers,omitempty" json:"headers,omitempty"`
	Command    string            `toml:"command,omitempty" json:"command,omitempty"`
	Script     string            `toml:"script,omitempty" json:"script,omitempty"`
	Language   string            `toml:"language,omitempty" json:"language,omitempty"`
	Prompt     string            `toml:"prompt,omitempty" json:"prompt,omitempty"`
	TimeoutSec int               `toml:"timeout_secs" json:"timeout_secs"`
	Retries    int               `toml:"retries" json:"retries"`

	// Env declares literal environment variables (beyond the fixed
	// PATH/HOME/LANG allow-list) to pass to a Shell/Script child process.
	Env map[string]string `toml:"env,omitempty" json:"env,omitempty"`
	// Secrets names vault entries to resolve and inject as same-named
	// environment variables at execution time, per spec §4.4.
	Secrets []string `toml:"secrets,omitempty" json:"secrets,omitempty"`
}

// SkillExample is one documented usage sample.
type SkillExample struct {
	Description    string         `toml:"description" json:"description"`
	Input          map[string]any `toml:"input" json:"input"`
	ExpectedOutput string         `toml:"expected_output,omitempty" json:"expected_output,omitempty"`
}

// SkillMetadata is the `[skill]` TOML section.
type SkillMetadata struct {
	Name        string   `toml:"name" json:"name"`
	Version     string   `toml:"version" json:"version"`
	Description string   `toml:"description" json:"description"`
	Author      string   `toml:"author,omitempty" json:"author,omitempty"`
	Tags        []string `toml:"tags,omitempty" json:"tags,omitempty"`
}

// SkillDefinition is the full declarative skill document.
type SkillDefinition struct {
	Skill        SkillMetadata             `toml:"skill" json:"skill"`
	Parameters   map[string]SkillParameter `toml:"parameters" json:"parameters"`
	Execution    ExecutionConfig           `toml:"execution" json:"execution"`
	Examples     []SkillExample            `toml:"examples" json:"examples,omitempty"`
	Dependencies []string                  `toml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// SkillSource records where an installed skill came from.
type SkillSource string

const (
	SourceGenerated SkillSource = "Generated"
	SourceImported  SkillSource = "Imported"
	SourceHub       SkillSource = "Hub"
	SourceBuiltin   SkillSource = "Builtin"
)

// InstalledSkill is a SkillDefinition plus registry bookkeeping.
type InstalledSkill struct {
	Definition   SkillDefinition `json:"definition"`
	Source       SkillSource     `json:"source"`
	SourceDetail string          `json:"source_detail,omitempty"` // path or hub url
	Enabled      bool            `json:"enabled"`
	InstalledAt  time.Time       `json:"installed_at"`
	LastUsed     *time.Time      `json:"last_used,omitempty"`
	UsageCount   uint64          `json:"usage_count"`
	SuccessCount uint64          `json:"success_count"`
}

// SuccessRate is read-only derived: success_count / max(1, usage_count).
func (s *InstalledSkill) SuccessRate() float64 {
	denom := s.UsageCount
	if denom == 0 {
		denom = 1
	}
	return float64(s.SuccessCount) / float64(denom)
}

// SkillExecutionResult is returned by the sandbox's Execute.
type SkillExecutionResult struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	Data     any           `json:"data,omitempty"`
	Duration time.Duration `json:"duration"`
	ExitCode *int          `json:"exit_code,omitempty"`
}
