/*
Package expression evaluates task conditions and renders task parameters
using the HCL expression and template language.

Each node gets an Env carrying its expected ("new") and last applied
("old") deployment data plus formatter variables:

	env := &expression.Env{New: expected, Old: current, Vars: map[string]interface{}{
		"CLUSTER_ID": 1,
	}}
	ok, err := evaluator.EvalBool(`changed("network_scheme") || contains(new.roles, "mongo")`, env)
	params, err := evaluator.Render(task.Parameters, env)

Conditions may use the functions changed, coalesce, concat, contains,
format, join, keys, length, lookup, lower, trimspace and upper. Only
strings containing "${" or "%{" are treated as templates.
*/
package expression
