package station

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// DefaultInspectionRule 判定检验工站的默认规则：名称中包含 "Inspección"
const DefaultInspectionRule = `station contains "Inspección"`

// InspectionRule 是判定检验工站的规则表达式 (expr 语法)，
// 表达式环境中可用的变量为 station (工站名称)
type InspectionRule struct {
	source  string
	program *vm.Program
}

// CompileInspectionRule 编译规则，表达式必须返回布尔值
func CompileInspectionRule(source string) (*InspectionRule, error) {
	if source == "" {
		source = DefaultInspectionRule
	}
	program, err := expr.Compile(source, expr.Env(ruleEnv("")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("inspection rule compilation failed: %w", err)
	}
	return &InspectionRule{source: source, program: program}, nil
}

// Source 返回规则原文
func (r *InspectionRule) Source() string { return r.source }

// Match 判断工站是否为检验工站
func (r *InspectionRule) Match(station string) (bool, error) {
	out, err := expr.Run(r.program, ruleEnv(station))
	if err != nil {
		return false, fmt.Errorf("inspection rule execution failed for %q: %w", station, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("inspection rule result is not a boolean")
	}
	return matched, nil
}

// IsInspection 与 Match 相同，但在规则出错时视为非检验工站
func (r *InspectionRule) IsInspection(station string) bool {
	ok, err := r.Match(station)
	return err == nil && ok
}

func ruleEnv(station string) map[string]interface{} {
	return map[string]interface{}{"station": station}
}
