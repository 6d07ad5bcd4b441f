package sandbox

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/kaelvex/fabricd/internal/types"
)

// BindError reports a parameter that failed type-checking or constraint
// validation during binding.
type BindError struct {
	Parameter string
	Message   string
}

func (e *BindError) Error() string { return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Message) }

// bindValues resolves supplied against the declared schema, applying
// defaults, type checks, enum membership, numeric bounds, and regex
// pattern — but performs no escaping. Escaping is context-specific and
// applied by the caller via shellValue/urlValue/jsonValue below.
func bindValues(def *types.SkillDefinition, supplied map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(def.Parameters))
	for name, schema := range def.Parameters {
		val, ok := supplied[name]
		if !ok {
			if schema.Default != nil {
				val = schema.Default
			} else if schema.Required {
				return nil, &BindError{Parameter: name, Message: "required parameter missing"}
			} else {
				continue
			}
		}
		if err := checkType(name, schema, val); err != nil {
			return nil, err
		}
		bound[name] = val
	}
	return bound, nil
}

func checkType(name string, schema types.SkillParameter, val any) error {
	switch schema.Type {
	case types.ParamString:
		s, ok := val.(string)
		if !ok {
			return &BindError{Parameter: name, Message: "expected string"}
		}
		if len(schema.Enum) > 0 && !containsStr(schema.Enum, s) {
			return &BindError{Parameter: name, Message: "not a permitted enum value"}
		}
		if schema.Pattern != "" {
			re, err := regexp.Compile(schema.Pattern)
			if err != nil {
				return &BindError{Parameter: name, Message: "invalid pattern in schema"}
			}
			if !re.MatchString(s) {
				return &BindError{Parameter: name, Message: "does not match required pattern"}
			}
		}
	case types.ParamNumber, types.ParamInteger:
		f, ok := toFloat(val)
		if !ok {
			return &BindError{Parameter: name, Message: "expected number"}
		}
		if schema.Minimum != nil && f < *schema.Minimum {
			return &BindError{Parameter: name, Message: "below minimum"}
		}
		if schema.Maximum != nil && f > *schema.Maximum {
			return &BindError{Parameter: name, Message: "above maximum"}
		}
	case types.ParamBoolean:
		if _, ok := val.(bool); !ok {
			return &BindError{Parameter: name, Message: "expected boolean"}
		}
	case types.ParamArray:
		if _, ok := val.([]any); !ok {
			return &BindError{Parameter: name, Message: "expected array"}
		}
	case types.ParamObject:
		if _, ok := val.(map[string]any); !ok {
			return &BindError{Parameter: name, Message: "expected object"}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// substituteShell renders a {{name}}-templated shell command, shell-
// escaping every substituted value via single-quoting (POSIX sh rule:
// wrap in single quotes, escaping embedded single quotes as '\''). Raw
// user input is never concatenated unescaped into the command string.
func substituteShell(template string, bound map[string]any) string {
	return templateRef.ReplaceAllStringFunc(template, func(match string) string {
		name := templateRef.FindStringSubmatch(match)[1]
		return shellQuote(stringify(bound[name]))
	})
}

var singleQuote = regexp.MustCompile(`'`)

func shellQuote(s string) string {
	return "'" + singleQuote.ReplaceAllString(s, `'\''`) + "'"
}

// substituteURL renders a {{name}}-templated URL, URL-encoding every
// substituted value via url.QueryEscape.
func substituteURL(template string, bound map[string]any) string {
	return templateRef.ReplaceAllStringFunc(template, func(match string) string {
		name := templateRef.FindStringSubmatch(match)[1]
		return url.QueryEscape(stringify(bound[name]))
	})
}

// substituteJSON renders a {{name}}-templated JSON body, JSON-encoding
// every substituted value (so embedded quotes/control characters cannot
// break out of the surrounding JSON structure).
func substituteJSON(template string, bound map[string]any) string {
	return templateRef.ReplaceAllStringFunc(template, func(match string) string {
		name := templateRef.FindStringSubmatch(match)[1]
		encoded, err := json.Marshal(bound[name])
		if err != nil {
			return `""`
		}
		return string(encoded)
	})
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
