package adapter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"lingap/internal/service/encounter/domain"
)

// CelRuleEngine 用 CEL 表达式实现可配置的临床校验规则。
// 表达式里以 `fact` 访问评估上下文，例如:
//
//	fact.weightForHeight != "Severe Acute Malnutrition" || fact.edemaSeverity != ""
type CelRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCelRuleEngine() (*CelRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("fact", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &CelRuleEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

func (e *CelRuleEngine) Evaluate(rule string, fact domain.Fact) (bool, error) {
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}

	// 经 json 转成 map，字段名与规则里的访问路径保持一致
	raw, err := json.Marshal(fact)
	if err != nil {
		return false, fmt.Errorf("marshal fact: %w", err)
	}
	var factMap map[string]interface{}
	if err := json.Unmarshal(raw, &factMap); err != nil {
		return false, fmt.Errorf("unmarshal fact: %w", err)
	}

	out, _, err := prg.Eval(map[string]interface{}{"fact": factMap})
	if err != nil {
		return false, fmt.Errorf("evaluate rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not evaluate to a boolean", rule)
	}
	return result, nil
}

// program 返回编译好的规则程序，同一条规则只编译一次。
func (e *CelRuleEngine) program(rule string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[rule]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.programs[rule]; ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(rule)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile rule %q: %w", rule, iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build rule program: %w", err)
	}
	e.programs[rule] = prg
	return prg, nil
}

var _ domain.RuleEngine = (*CelRuleEngine)(nil)
