package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("coin", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// RecordFilter 是候选记录过滤器，使用 CEL (Common Expression Language) 实现。
// 表达式在创建时编译一次，Match 可以并发调用。
//
// 表达式语法（CEL 标准语法），变量 coin 为候选记录的原始字段：
//   - 数值：coin.uniqueHolders > 10 / double(coin.marketCap) >= 5000.0
//   - 存在性：has(coin.description) && coin.description != ""
//   - 字符串：coin.name.startsWith("Doge") / coin.name.contains("moon")
//   - 逻辑：coin.uniqueHolders > 10 && has(coin.mediaPreviewUrl)
//
// JSON 数字解析为 double，与整数字面量比较时 CEL 会自动处理（如 coin.uniqueHolders > 10）。
type RecordFilter struct {
	expr string
	prg  cel.Program
}

// NewRecordFilter 编译过滤表达式。表达式为空时返回 nil（不过滤）。
func NewRecordFilter(expr string) (*RecordFilter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expression must return boolean, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &RecordFilter{expr: expr, prg: prg}, nil
}

// Expr 返回原始表达式
func (f *RecordFilter) Expr() string {
	return f.expr
}

// Match 对一条记录求值。访问不存在的字段会返回错误，应使用 has(coin.key) 检查存在性。
func (f *RecordFilter) Match(rec core.RawRecord) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"coin": map[string]any(rec),
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Filter 保留匹配的记录，返回保留记录在原批次中的下标。
// 任一记录求值出错时整个过滤失败，返回 DATA_ERROR。
func (f *RecordFilter) Filter(records []core.RawRecord) ([]core.RawRecord, []int, error) {
	if f == nil {
		idx := make([]int, len(records))
		for i := range idx {
			idx[i] = i
		}
		return records, idx, nil
	}
	kept := make([]core.RawRecord, 0, len(records))
	idx := make([]int, 0, len(records))
	for i, rec := range records {
		ok, err := f.Match(rec)
		if err != nil {
			return nil, nil, core.NewDataError(core.ModuleScoring, "filter %q on coin_data[%d]: %v", f.expr, i, err)
		}
		if ok {
			kept = append(kept, rec)
			idx = append(idx, i)
		}
	}
	return kept, idx, nil
}
