package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Rules is a repository rules pack appended to every role instruction.
type Rules struct {
	Focus    []string        `json:"focus,omitempty" mapstructure:"focus"`
	Ignore   []string        `json:"ignore,omitempty" mapstructure:"ignore"`
	Required []RequiredCheck `json:"required,omitempty" mapstructure:"required"`
}

// RequiredCheck is a policy check every agent should evaluate.
type RequiredCheck struct {
	ID   string `json:"id" mapstructure:"id"`
	Text string `json:"text" mapstructure:"text"`
}

// LoadRules reads a rules file in JSON or YAML. An empty path yields nil
// rules and no error.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := v.Unmarshal(&rules); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	return &rules, nil
}

// PromptSection renders the rules as extra instructions. Nil rules render as
// the empty string.
func (r *Rules) PromptSection() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	if len(r.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize findings in these areas.\n", strings.Join(r.Focus, ", "))
	}
	if len(r.Ignore) > 0 {
		fmt.Fprintf(&b, "\nDo not report findings about: %s.\n", strings.Join(r.Ignore, ", "))
	}
	if len(r.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range r.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}
	return b.String()
}
