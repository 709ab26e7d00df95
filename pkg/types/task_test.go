package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testTasks = `
- id: primary-controller
  type: group
  roles: [primary-controller]
  tasks: [hiera, netconfig]
  fault_tolerance: "10%"
- id: hiera
  type: puppet
  version: 2.1.0
  groups: '*'
  condition: 'changed("network_scheme")'
  parameters:
    puppet_manifest: /etc/puppet/modules/osnailyfacter/modular/hiera/hiera.pp
    timeout: 120
- id: netconfig
  type: puppet
  version: 2.1.0
  roles: [controller, /^ceph-.*/]
  requires: [hiera]
  required_for: [deploy_end]
  fail_on_error: false
  cross_depends:
    - hiera
    - name: deploy_start
      role: null
    - name: /^openstack-.*/
      role: self
    - name: database
      role: [primary-controller, controller]
      policy: any
  cross_depended_by:
    - name: keystone
      role: master
- id: deploy_end
  type: stage
  condition: false
`

func TestLoadTasks(t *testing.T) {
	tasks, err := LoadTasks([]byte(testTasks))
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	group := tasks[0]
	assert.Equal(t, TaskTypeGroup, group.Type)
	assert.Equal(t, Roles("primary-controller"), group.RoleSpec())
	assert.Equal(t, []string{"hiera", "netconfig"}, group.Tasks)
	assert.Equal(t, "10%", group.FaultTolerance)

	hiera := tasks[1]
	assert.False(t, hiera.Roles.IsSet())
	assert.Equal(t, AllRoles(), hiera.RoleSpec())
	require.NotNil(t, hiera.Condition)
	assert.Equal(t, `changed("network_scheme")`, hiera.Condition.Expression)
	assert.Equal(t, 120, hiera.Parameters["timeout"])

	netconfig := tasks[2]
	assert.Equal(t, Roles("controller", "/^ceph-.*/"), netconfig.RoleSpec())
	require.NotNil(t, netconfig.FailOnError)
	assert.False(t, *netconfig.FailOnError)
	assert.Equal(t, []Dependency{
		{Name: "hiera"},
		{Name: "deploy_start", Role: SyncRole()},
		{Name: "/^openstack-.*/", Role: SelfRole()},
		{Name: "database", Role: Roles("primary-controller", "controller"), Policy: PolicyAny},
	}, netconfig.CrossDepends)
	assert.Equal(t, []Dependency{{Name: "keystone", Role: MasterRole()}}, netconfig.CrossDependedBy)

	stage := tasks[3]
	require.NotNil(t, stage.Condition)
	require.NotNil(t, stage.Condition.Literal)
	assert.False(t, *stage.Condition.Literal)
}

func TestLoadTasks_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing id", input: "- type: puppet"},
		{name: "missing type", input: "- id: netconfig"},
		{name: "dependency without name", input: "- {id: a, type: puppet, cross_depends: [{role: self}]}"},
		{name: "bad role", input: "- {id: a, type: puppet, roles: {a: b}}"},
		{name: "bad condition", input: "- {id: a, type: puppet, condition: [1]}"},
		{name: "not a list", input: "id: a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTasks([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestTaskDefinition_JSONRoundTrip(t *testing.T) {
	tasks, err := LoadTasks([]byte(testTasks))
	require.NoError(t, err)

	data, err := json.Marshal(tasks)
	require.NoError(t, err)

	var decoded []*TaskDefinition
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(tasks))

	for i := range tasks {
		assert.Equal(t, tasks[i].ID, decoded[i].ID)
		assert.Equal(t, tasks[i].RoleSpec(), decoded[i].RoleSpec())
		assert.Equal(t, tasks[i].CrossDepends, decoded[i].CrossDepends)
		assert.Equal(t, tasks[i].CrossDependedBy, decoded[i].CrossDependedBy)
		assert.Equal(t, tasks[i].Condition, decoded[i].Condition)
	}
}

func TestDependency_YAMLKeepsSyncRole(t *testing.T) {
	dep := Dependency{Name: "deploy_start", Role: SyncRole()}

	data, err := yaml.Marshal(dep)
	require.NoError(t, err)

	var decoded Dependency
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, dep, decoded)
}

func TestParseRoleSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected RoleSpec
		wantErr  bool
	}{
		{name: "null", input: nil, expected: SyncRole()},
		{name: "wildcard", input: "*", expected: AllRoles()},
		{name: "wildcard in list", input: []interface{}{"controller", "*"}, expected: AllRoles()},
		{name: "self", input: "self", expected: SelfRole()},
		{name: "master", input: "master", expected: MasterRole()},
		{name: "single name", input: "compute", expected: Roles("compute")},
		{name: "list", input: []interface{}{"compute", "cinder"}, expected: Roles("compute", "cinder")},
		{name: "non-string item", input: []interface{}{1}, wantErr: true},
		{name: "number", input: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseRoleSpec(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, spec)
		})
	}
}

func TestNodeID_JSON(t *testing.T) {
	links := []Link{{Name: "deploy_start", NodeID: SyncNodeID}, {Name: "netconfig", NodeID: "1"}}

	data, err := json.Marshal(links)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"deploy_start","node_id":null},{"name":"netconfig","node_id":"1"}]`, string(data))

	var decoded []Link
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"a","node_id":null},{"name":"b","node_id":7}]`), &decoded))
	assert.Equal(t, []Link{{Name: "a", NodeID: SyncNodeID}, {Name: "b", NodeID: "7"}}, decoded)
}

func TestSortNodeIDs(t *testing.T) {
	ids := []NodeID{"master", "10", SyncNodeID, "2", "1", "alpha"}
	SortNodeIDs(ids)
	assert.Equal(t, []NodeID{SyncNodeID, "1", "2", "10", "alpha", "master"}, ids)
}

func TestSortLinks(t *testing.T) {
	links := []Link{
		{Name: "b", NodeID: "2"},
		{Name: "a", NodeID: "2"},
		{Name: "z", NodeID: SyncNodeID},
		{Name: "c", NodeID: "10"},
	}
	SortLinks(links)
	assert.Equal(t, []Link{
		{Name: "z", NodeID: SyncNodeID},
		{Name: "a", NodeID: "2"},
		{Name: "b", NodeID: "2"},
		{Name: "c", NodeID: "10"},
	}, links)
}

func TestTaskDefinition_RoleSpecFallback(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want RoleSpec
	}{
		{name: "roles", yaml: "{id: a, type: puppet, roles: [controller], role: [compute], groups: '*'}", want: Roles("controller")},
		{name: "legacy role", yaml: "{id: a, type: puppet, role: [primary-controller], groups: '*'}", want: Roles("primary-controller")},
		{name: "legacy role string", yaml: "{id: a, type: group, role: '*'}", want: AllRoles()},
		{name: "groups", yaml: "{id: a, type: puppet, groups: [compute]}", want: Roles("compute")},
		{name: "none", yaml: "{id: a, type: puppet}", want: RoleSpec{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := LoadTasks([]byte("- " + tt.yaml))
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, tt.want, tasks[0].RoleSpec())
		})
	}
}
