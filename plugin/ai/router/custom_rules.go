package router

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// RuleSpec is an operator-defined rule. Expr is a CEL boolean expression over
// `query` (the lowercased query) and `words` (its whitespace-separated tokens).
//
//	rules:
//	  - name: standup_lookup
//	    action: search
//	    confidence: 0.8
//	    expr: 'query.startsWith("when") && "standup" in words'
type RuleSpec struct {
	Name       string  `yaml:"name"`
	Action     string  `yaml:"action"`
	Confidence float64 `yaml:"confidence"`
	Expr       string  `yaml:"expr"`
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadRulesFile reads custom rules from a YAML file.
func LoadRulesFile(path string) ([]RuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return f.Rules, nil
}

func newRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("query", cel.StringType),
		cel.Variable("words", cel.ListType(cel.StringType)),
	)
}

// compileRules type-checks every expression. Any failure is a configuration error.
func compileRules(specs []RuleSpec) ([]Rule, error) {
	env, err := newRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}

	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("custom rule with expression %q has no name", spec.Expr)
		}
		action, ok := ParseActionKind(spec.Action)
		if !ok {
			return nil, fmt.Errorf("rule %s: unknown action %q", spec.Name, spec.Action)
		}
		conf := spec.Confidence
		if conf == 0 {
			conf = 0.8
		}
		if conf < 0 || conf > 1 {
			return nil, fmt.Errorf("rule %s: confidence %.2f out of range", spec.Name, conf)
		}

		ast, issues := env.Compile(spec.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: %w", spec.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %s", spec.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", spec.Name, err)
		}

		rules = append(rules, Rule{
			Name:       spec.Name,
			Action:     action,
			Confidence: conf,
			Match:      celPredicate(prg),
		})
	}
	return rules, nil
}

// celPredicate treats evaluation errors as a non-match.
func celPredicate(prg cel.Program) func(string) bool {
	return func(q string) bool {
		out, _, err := prg.Eval(map[string]any{
			"query": q,
			"words": strings.Fields(q),
		})
		if err != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}
}
