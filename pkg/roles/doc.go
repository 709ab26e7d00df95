/*
Package roles resolves role specifiers to node ids and matches names.

Resolver is the capability the graph engine consumes. NodeResolver indexes a
cluster snapshot by role; NullResolver maps every role to a fixed node list.

	resolver := roles.NewNodeResolver(nodes)
	ids := resolver.Resolve(types.Roles("controller", "/^ceph-.+/"), types.PolicyAll)

Names are matched by NewMatcher, which is shared with the graph engine for
task name references: "/expr/" is a regular expression anchored at the
start, names containing glob metacharacters are glob patterns, anything else
is an exact name.
*/
package roles
