package sandbox

import (
	"testing"

	"github.com/kaelvex/fabricd/internal/types"
)

func validDef(kind types.ExecutionKind) *types.SkillDefinition {
	return &types.SkillDefinition{
		Skill: types.SkillMetadata{Name: "example_skill", Version: "1.0.0", Description: "does a thing"},
		Parameters: map[string]types.SkillParameter{
			"path": {Type: types.ParamString, Required: true},
		},
		Execution: types.ExecutionConfig{Kind: kind},
	}
}

// A well-formed shell skill with a safe command template validates.
func TestValidate_ShellOK(t *testing.T) {
	def := validDef(types.ExecShell)
	def.Execution.Command = "ls {{path}}"
	r := Validate(def)
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

// Seed example from spec §8: a shell template "rm -rf /{{path}}" fails
// validation regardless of the path parameter's value.
func TestValidate_ShellDenyListRmRootFails(t *testing.T) {
	def := validDef(types.ExecShell)
	def.Execution.Command = "rm -rf /{{path}}"
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for rm -rf / template")
	}
}

// A command template referencing a parameter not in the schema fails
// validation.
func TestValidate_UndeclaredParamReferenceFails(t *testing.T) {
	def := validDef(types.ExecShell)
	def.Execution.Command = "echo {{undeclared}}"
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for undeclared parameter reference")
	}
}

// An http skill with scheme http (not https) fails validation.
func TestValidate_HTTPRequiresHTTPS(t *testing.T) {
	def := validDef(types.ExecHTTP)
	def.Execution.Endpoint = "http://example.com/api"
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for non-https endpoint")
	}
}

// An http skill targeting a private/link-local host fails validation.
func TestValidate_HTTPDeniesPrivateHost(t *testing.T) {
	def := validDef(types.ExecHTTP)
	def.Execution.Endpoint = "https://192.168.1.1/api"
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for a private-network host")
	}
}

// A script skill with an unsupported language fails validation.
func TestValidate_ScriptBadLanguage(t *testing.T) {
	def := validDef(types.ExecScript)
	def.Execution.Language = "ruby"
	def.Execution.Script = "puts 1"
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for an unsupported script language")
	}
}

// A claude skill with an empty prompt template fails validation.
func TestValidate_ClaudeRequiresPrompt(t *testing.T) {
	def := validDef(types.ExecClaude)
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for an empty prompt")
	}
}

// A skill name containing a disallowed character fails validation.
func TestValidate_BadNameFails(t *testing.T) {
	def := validDef(types.ExecShell)
	def.Execution.Command = "ls {{path}}"
	def.Skill.Name = "bad name!"
	r := Validate(def)
	if r.Valid {
		t.Fatal("expected validation to fail for a name with spaces/punctuation")
	}
}
