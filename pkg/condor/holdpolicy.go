package condor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/kbase/jobwatch/internal/assets/schemas"
)

// ErrInvalidHoldPolicy indicates a hold-rules document or rule is invalid.
var ErrInvalidHoldPolicy = errors.New("invalid hold policy")

// HoldRule matches hold reasons that are expected to clear on their own.
//
// Exactly one of Glob or Regex must be set.
type HoldRule struct {
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Glob  string `yaml:"glob,omitempty" json:"glob,omitempty"`
	Regex string `yaml:"regex,omitempty" json:"regex,omitempty"`

	re *regexp.Regexp
}

// HoldRuleFile is the on-disk form of a hold policy.
type HoldRuleFile struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string     `yaml:"$schema,omitempty" json:"$schema,omitempty"`
	Rules  []HoldRule `yaml:"rules" json:"rules"`
}

// RulePolicy is a HoldPolicy backed by an ordered rule list.
type RulePolicy struct {
	rules []HoldRule
}

// hold reasons are free text, not paths; '/' is folded so '*' spans it.
const globSeparatorFold = "∕"

// NewRulePolicy validates and compiles rules.
func NewRulePolicy(rules []HoldRule) (*RulePolicy, error) {
	compiled := make([]HoldRule, 0, len(rules))
	for i, r := range rules {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("rules[%d]", i)
		}
		hasGlob := strings.TrimSpace(r.Glob) != ""
		hasRegex := strings.TrimSpace(r.Regex) != ""
		switch {
		case hasGlob && hasRegex:
			return nil, fmt.Errorf("%w: hold rule %s: glob and regex are mutually exclusive", ErrInvalidHoldPolicy, label)
		case !hasGlob && !hasRegex:
			return nil, fmt.Errorf("%w: hold rule %s: glob or regex is required", ErrInvalidHoldPolicy, label)
		case hasGlob:
			if !doublestar.ValidatePattern(foldSeparators(r.Glob)) {
				return nil, fmt.Errorf("%w: hold rule %s: invalid glob %q", ErrInvalidHoldPolicy, label, r.Glob)
			}
		default:
			re, err := regexp.Compile(r.Regex)
			if err != nil {
				return nil, fmt.Errorf("%w: hold rule %s: invalid regex: %w", ErrInvalidHoldPolicy, label, err)
			}
			r.re = re
		}
		compiled = append(compiled, r)
	}
	return &RulePolicy{rules: compiled}, nil
}

// Match returns the first rule matching reason.
func (p *RulePolicy) Match(reason string) (HoldRule, bool) {
	if p == nil {
		return HoldRule{}, false
	}
	for _, r := range p.rules {
		if r.re != nil {
			if r.re.MatchString(reason) {
				return r, true
			}
			continue
		}
		ok, err := doublestar.Match(foldSeparators(r.Glob), foldSeparators(reason))
		if err == nil && ok {
			return r, true
		}
	}
	return HoldRule{}, false
}

// Resumes implements HoldPolicy.
func (p *RulePolicy) Resumes(reason string) bool {
	_, ok := p.Match(reason)
	return ok
}

// Len returns the number of rules.
func (p *RulePolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// ParseHoldPolicy builds a policy from YAML (JSON is accepted as well).
// A document without rules yields NeverResumes.
func ParseHoldPolicy(data []byte) (HoldPolicy, error) {
	if err := validateHoldRules(data); err != nil {
		return nil, err
	}
	var file HoldRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHoldPolicy, err)
	}
	if len(file.Rules) == 0 {
		return NeverResumes, nil
	}
	policy, err := NewRulePolicy(file.Rules)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// LoadHoldPolicy reads a hold policy file. An empty path yields NeverResumes.
func LoadHoldPolicy(path string) (HoldPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return NeverResumes, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("hold policy file not found: %s", path)
		}
		return nil, fmt.Errorf("read hold policy: %w", err)
	}
	return ParseHoldPolicy(data)
}

// validateHoldRules checks a YAML or JSON document against the embedded
// schema. An empty document is valid.
func validateHoldRules(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHoldPolicy, err)
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHoldPolicy, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHoldPolicy, err)
	}

	schema, err := getHoldRulesSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHoldPolicy, err)
	}
	return nil
}

// getHoldRulesSchema returns a cached schema compiled from the embedded asset.
func getHoldRulesSchema() (*jsonschema.Schema, error) {
	holdRulesSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		url := schemasassets.HoldRulesSchemaURL
		if err := compiler.AddResource(url, bytes.NewReader(schemasassets.HoldRulesSchema)); err != nil {
			holdRulesSchemaErr = fmt.Errorf("add hold-rules schema: %w", err)
			return
		}
		holdRulesSchema, holdRulesSchemaErr = compiler.Compile(url)
		if holdRulesSchemaErr != nil {
			holdRulesSchemaErr = fmt.Errorf("compile hold-rules schema: %w", holdRulesSchemaErr)
		}
	})
	return holdRulesSchema, holdRulesSchemaErr
}

var (
	holdRulesSchemaOnce sync.Once
	holdRulesSchema     *jsonschema.Schema
	holdRulesSchemaErr  error
)

func foldSeparators(s string) string {
	return strings.ReplaceAll(s, "/", globSeparatorFold)
}
