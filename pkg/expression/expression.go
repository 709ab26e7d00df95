package expression

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Env is the data one node exposes to conditions and templates. New is the
// state the deployment is expected to produce, Old the state last applied.
// Vars are extra top-level variables.
type Env struct {
	New  map[string]interface{}
	Old  map[string]interface{}
	Vars map[string]interface{}

	once   sync.Once
	ctx    *hcl.EvalContext
	ctxErr error
}

// EvalContext builds (once) the HCL evaluation context for the env
func (env *Env) EvalContext() (*hcl.EvalContext, error) {
	env.once.Do(func() {
		env.ctx, env.ctxErr = env.build()
	})
	return env.ctx, env.ctxErr
}

func (env *Env) build() (*hcl.EvalContext, error) {
	vars := make(map[string]cty.Value, len(env.Vars)+2)
	for name, v := range env.Vars {
		val, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert variable %s: %w", name, err)
		}
		vars[name] = val
	}
	newVal, err := ToValue(nonNil(env.New))
	if err != nil {
		return nil, fmt.Errorf("failed to convert new state: %w", err)
	}
	oldVal, err := ToValue(nonNil(env.Old))
	if err != nil {
		return nil, fmt.Errorf("failed to convert old state: %w", err)
	}
	vars["new"] = newVal
	vars["old"] = oldVal

	return &hcl.EvalContext{
		Variables: vars,
		Functions: env.functions(),
	}, nil
}

func (env *Env) functions() map[string]function.Function {
	return map[string]function.Function{
		"changed":   env.changedFunc(),
		"coalesce":  stdlib.CoalesceFunc,
		"concat":    stdlib.ConcatFunc,
		"contains":  stdlib.ContainsFunc,
		"format":    stdlib.FormatFunc,
		"join":      stdlib.JoinFunc,
		"keys":      stdlib.KeysFunc,
		"length":    stdlib.LengthFunc,
		"lookup":    stdlib.LookupFunc,
		"lower":     stdlib.LowerFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"upper":     stdlib.UpperFunc,
	}
}

// changedFunc compares old and new state at dotted paths. Without
// arguments it compares the whole state.
func (env *Env) changedFunc() function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{Name: "path", Type: cty.String},
		Type:     function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if len(args) == 0 {
				return cty.BoolVal(!reflect.DeepEqual(nonNil(env.Old), nonNil(env.New))), nil
			}
			for _, arg := range args {
				if arg.IsNull() || !arg.IsKnown() {
					return cty.UnknownVal(cty.Bool), fmt.Errorf("changed: path must be a known string")
				}
				path := arg.AsString()
				if !reflect.DeepEqual(Lookup(env.Old, path), Lookup(env.New, path)) {
					return cty.True, nil
				}
			}
			return cty.False, nil
		},
	})
}

// Lookup walks a dotted path through nested maps. Missing keys yield nil.
func Lookup(data map[string]interface{}, path string) interface{} {
	var cur interface{} = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func nonNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// Evaluator parses and caches conditions and templates. It is safe for
// concurrent use.
type Evaluator struct {
	mu        sync.Mutex
	exprs     map[string]hcl.Expression
	templates map[string]hcl.Expression
}

// NewEvaluator creates an evaluator with empty caches
func NewEvaluator() *Evaluator {
	return &Evaluator{
		exprs:     make(map[string]hcl.Expression),
		templates: make(map[string]hcl.Expression),
	}
}

func (e *Evaluator) parse(src string, template bool) (hcl.Expression, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cache := e.exprs
	if template {
		cache = e.templates
	}
	if expr, ok := cache[src]; ok {
		return expr, nil
	}

	var (
		expr  hcl.Expression
		diags hcl.Diagnostics
	)
	if template {
		expr, diags = hclsyntax.ParseTemplate([]byte(src), "template", hcl.InitialPos)
	} else {
		expr, diags = hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	}
	if diags.HasErrors() {
		return nil, diags
	}
	cache[src] = expr
	return expr, nil
}

// EvalBool evaluates a condition expression to a boolean
func (e *Evaluator) EvalBool(src string, env *Env) (bool, error) {
	expr, err := e.parse(src, false)
	if err != nil {
		return false, err
	}
	ctx, err := env.EvalContext()
	if err != nil {
		return false, err
	}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return false, diags
	}
	val, err = convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition is not a boolean: %w", err)
	}
	if val.IsNull() || !val.IsKnown() {
		return false, fmt.Errorf("condition produced no value")
	}
	return val.True(), nil
}

// NeedsRendering reports whether s contains template sequences
func NeedsRendering(s string) bool {
	return strings.Contains(s, "${") || strings.Contains(s, "%{")
}

// RenderString evaluates one template string. A template made of a single
// interpolation keeps the type of its value.
func (e *Evaluator) RenderString(src string, env *Env) (interface{}, error) {
	expr, err := e.parse(src, true)
	if err != nil {
		return nil, err
	}
	ctx, err := env.EvalContext()
	if err != nil {
		return nil, err
	}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return nil, diags
	}
	return FromValue(val)
}

// Render walks v and renders every template string found in maps and
// lists. Strings that fail to render are kept as they are; the returned
// error joins every failure.
func (e *Evaluator) Render(v interface{}, env *Env) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if !NeedsRendering(val) {
			return val, nil
		}
		out, err := e.RenderString(val, env)
		if err != nil {
			return val, fmt.Errorf("%q: %w", val, err)
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		var errs []error
		for k, item := range val {
			rendered, err := e.Render(item, env)
			if err != nil {
				errs = append(errs, err)
			}
			out[k] = rendered
		}
		return out, errors.Join(errs...)
	case []interface{}:
		out := make([]interface{}, len(val))
		var errs []error
		for i, item := range val {
			rendered, err := e.Render(item, env)
			if err != nil {
				errs = append(errs, err)
			}
			out[i] = rendered
		}
		return out, errors.Join(errs...)
	}
	return v, nil
}

// ToValue converts plain Go data (as decoded from YAML or JSON) to a cty
// value through its JSON form
func ToValue(v interface{}) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(buf)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(buf, ty)
}

// FromValue converts a cty value back to plain Go data
func FromValue(val cty.Value) (interface{}, error) {
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	if val.IsNull() {
		return nil, nil
	}
	if val.Type() == cty.String {
		return val.AsString(), nil
	}
	buf, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}
