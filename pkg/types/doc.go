/*
Package types defines the core data structures used throughout Anvil.

This package contains the declarative deployment model (task definitions,
role specifiers, dependencies), the rendered output of the graph engine
(resolved tasks, links, per-node graphs) and the inventory records kept by
the store (nodes, node states, deployment graphs, transactions).

# Declarative tasks

A TaskDefinition is loaded once per deployment attempt and never mutated:

	- id: netconfig
	  type: puppet
	  version: 2.1.0
	  roles: [controller, compute]
	  requires: [hiera]
	  cross_depends:
	    - name: /^ceph-.+/
	      role: [ceph-osd]
	      policy: all
	    - name: deploy_start
	      role: null          # sync node only
	  condition: changed("network_scheme")
	  parameters:
	    puppet_manifest: /etc/puppet/modules/osnailyfacter/netconfig.pp

Role specifiers are a closed variant (RoleSpec): the "*" wildcard, a list of
role name patterns, "self", "master", or null for the sync node.
A task's nodes come from "roles", or the legacy "role" and "groups" keys
when "roles" is absent (TaskDefinition.RoleSpec).

# Resolved graph

The graph engine turns definitions into a Graph: one ResolvedTask per
(task, node) pair with Requires/RequiredFor holding concrete Link values.
The sync node is SyncNodeID and is written as null on the wire:

	{
	  "":  [{"id": "deploy_end", "type": "skipped", "requires": [...]}],
	  "1": [{"id": "netconfig", "type": "puppet",
	         "requires": [{"name": "hiera", "node_id": "1"},
	                      {"name": "deploy_start", "node_id": null}]}]
	}

Node ids sort sync first, then numerically, then lexically (SortNodeIDs).
*/
package types
