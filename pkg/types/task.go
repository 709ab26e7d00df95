package types

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TaskType is the kind of a deployment task
type TaskType string

const (
	// Structural types, never rendered onto a node
	TaskTypeGroup TaskType = "group"
	TaskTypeRole  TaskType = "role"

	// Noop types
	TaskTypeStage   TaskType = "stage"
	TaskTypeSkipped TaskType = "skipped"

	// Executable types, opaque to the graph engine
	TaskTypePuppet          TaskType = "puppet"
	TaskTypeShell           TaskType = "shell"
	TaskTypeSync            TaskType = "sync"
	TaskTypeUploadFile      TaskType = "upload_file"
	TaskTypeCopyFiles       TaskType = "copy_files"
	TaskTypeReboot          TaskType = "reboot"
	TaskTypeCobblerSync     TaskType = "cobbler_sync"
	TaskTypeEraseNode       TaskType = "erase_node"
	TaskTypeMasterShell     TaskType = "master_shell"
	TaskTypeMoveToBootstrap TaskType = "move_to_bootstrap"
)

// ExecutableTaskTypes lists every type the default serializer accepts
var ExecutableTaskTypes = []TaskType{
	TaskTypePuppet,
	TaskTypeShell,
	TaskTypeSync,
	TaskTypeUploadFile,
	TaskTypeCopyFiles,
	TaskTypeReboot,
	TaskTypeCobblerSync,
	TaskTypeEraseNode,
	TaskTypeMasterShell,
	TaskTypeMoveToBootstrap,
}

// IsNoop reports whether the type carries no work
func (t TaskType) IsNoop() bool {
	return t == TaskTypeStage || t == TaskTypeSkipped
}

// IsStructural reports whether the type only shapes the graph
func (t TaskType) IsStructural() bool {
	return t == TaskTypeGroup || t == TaskTypeRole
}

// IsExecutable reports whether the type is run by an agent
func (t TaskType) IsExecutable() bool {
	for _, known := range ExecutableTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ResolvePolicy selects how many of the matching nodes a role resolves to
type ResolvePolicy string

const (
	PolicyAll ResolvePolicy = "all"
	PolicyAny ResolvePolicy = "any"
)

// RoleKind discriminates RoleSpec variants
type RoleKind int

const (
	RoleUnset RoleKind = iota
	RoleAll
	RoleNames
	RoleSelf
	RoleSync
	RoleMaster
)

// Reserved role names
const (
	RoleNameAll    = "*"
	RoleNameSelf   = "self"
	RoleNameMaster = "master"
)

// RoleSpec selects the nodes a task or dependency applies to
type RoleSpec struct {
	Kind  RoleKind
	Names []string
}

// AllRoles matches every node
func AllRoles() RoleSpec { return RoleSpec{Kind: RoleAll} }

// SelfRole binds to the node of the dependent task
func SelfRole() RoleSpec { return RoleSpec{Kind: RoleSelf} }

// SyncRole binds to the sync node
func SyncRole() RoleSpec { return RoleSpec{Kind: RoleSync} }

// MasterRole binds to the master node
func MasterRole() RoleSpec { return RoleSpec{Kind: RoleMaster} }

// Roles matches nodes carrying any of names
func Roles(names ...string) RoleSpec {
	return RoleSpec{Kind: RoleNames, Names: names}
}

// IsSet reports whether the role specifier was given at all
func (r RoleSpec) IsSet() bool {
	return r.Kind != RoleUnset
}

func (r RoleSpec) String() string {
	switch r.Kind {
	case RoleAll:
		return RoleNameAll
	case RoleSelf:
		return RoleNameSelf
	case RoleSync:
		return "null"
	case RoleMaster:
		return RoleNameMaster
	case RoleNames:
		return fmt.Sprintf("%v", r.Names)
	}
	return ""
}

// ParseRoleSpec converts a decoded YAML/JSON value into a RoleSpec
func ParseRoleSpec(v interface{}) (RoleSpec, error) {
	switch val := v.(type) {
	case nil:
		return SyncRole(), nil
	case string:
		switch val {
		case RoleNameAll:
			return AllRoles(), nil
		case RoleNameSelf:
			return SelfRole(), nil
		case RoleNameMaster:
			return MasterRole(), nil
		}
		return Roles(val), nil
	case []string:
		return Roles(val...), nil
	case []interface{}:
		names := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return RoleSpec{}, fmt.Errorf("role name must be a string, got %T", item)
			}
			if s == RoleNameAll {
				return AllRoles(), nil
			}
			names = append(names, s)
		}
		return Roles(names...), nil
	}
	return RoleSpec{}, fmt.Errorf("unsupported role specifier %T", v)
}

func (r RoleSpec) value() interface{} {
	switch r.Kind {
	case RoleAll:
		return RoleNameAll
	case RoleSelf:
		return RoleNameSelf
	case RoleMaster:
		return RoleNameMaster
	case RoleNames:
		return r.Names
	}
	return nil
}

// UnmarshalYAML decodes a role specifier. A null value never reaches here;
// Dependency handles explicit nulls itself.
func (r *RoleSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	spec, err := ParseRoleSpec(raw)
	if err != nil {
		return err
	}
	*r = spec
	return nil
}

// UnmarshalJSON decodes a role specifier; null leaves the specifier unset
func (r *RoleSpec) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	spec, err := ParseRoleSpec(raw)
	if err != nil {
		return err
	}
	*r = spec
	return nil
}

func (r RoleSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value())
}

func (r RoleSpec) MarshalYAML() (interface{}, error) {
	return r.value(), nil
}

// Dependency is a cross-node reference to tasks by name on nodes selected by
// role and policy
type Dependency struct {
	Name   string
	Role   RoleSpec
	Policy ResolvePolicy
}

// EffectiveRole defaults a missing role to all nodes
func (d Dependency) EffectiveRole() RoleSpec {
	if !d.Role.IsSet() {
		return AllRoles()
	}
	return d.Role
}

// EffectivePolicy defaults a missing policy to all
func (d Dependency) EffectivePolicy() ResolvePolicy {
	if d.Policy == "" {
		return PolicyAll
	}
	return d.Policy
}

type dependencyDoc struct {
	Name   string        `json:"name" yaml:"name"`
	Role   interface{}   `json:"role,omitempty" yaml:"role,omitempty"`
	Policy ResolvePolicy `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// UnmarshalYAML accepts either a bare task name or a {name, role, policy}
// mapping. An explicit `role: null` binds the dependency to the sync node.
func (d *Dependency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*d = Dependency{Name: value.Value}
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: dependency must be a name or a mapping", value.Line)
	}

	dep := Dependency{}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i].Value, value.Content[i+1]
		switch key {
		case "name":
			dep.Name = val.Value
		case "policy":
			dep.Policy = ResolvePolicy(val.Value)
		case "role":
			if val.ShortTag() == "!!null" {
				dep.Role = SyncRole()
				continue
			}
			if err := val.Decode(&dep.Role); err != nil {
				return fmt.Errorf("line %d: %w", val.Line, err)
			}
		}
	}
	if dep.Name == "" {
		return fmt.Errorf("line %d: dependency name is required", value.Line)
	}
	*d = dep
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML
func (d *Dependency) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*d = Dependency{Name: name}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("dependency must be a name or an object: %w", err)
	}
	dep := Dependency{}
	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &dep.Name); err != nil {
			return err
		}
	}
	if raw, ok := fields["policy"]; ok {
		if err := json.Unmarshal(raw, &dep.Policy); err != nil {
			return err
		}
	}
	if raw, ok := fields["role"]; ok {
		if string(raw) == "null" {
			dep.Role = SyncRole()
		} else if err := json.Unmarshal(raw, &dep.Role); err != nil {
			return err
		}
	}
	if dep.Name == "" {
		return fmt.Errorf("dependency name is required")
	}
	*d = dep
	return nil
}

// doc keeps an explicit null role for sync dependencies, which omitempty
// would otherwise drop
func (d Dependency) doc() interface{} {
	if !d.Role.IsSet() && d.Policy == "" {
		return d.Name
	}
	if d.Role.Kind == RoleSync {
		doc := map[string]interface{}{"name": d.Name, "role": nil}
		if d.Policy != "" {
			doc["policy"] = d.Policy
		}
		return doc
	}
	return dependencyDoc{Name: d.Name, Role: d.Role.value(), Policy: d.Policy}
}

func (d Dependency) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.doc())
}

func (d Dependency) MarshalYAML() (interface{}, error) {
	return d.doc(), nil
}

// Condition gates a task per node: either a literal boolean or an
// expression evaluated against the node's deployment data
type Condition struct {
	Expression string
	Literal    *bool
}

func (c *Condition) set(raw interface{}) error {
	switch v := raw.(type) {
	case bool:
		c.Literal = &v
	case string:
		c.Expression = v
	default:
		return fmt.Errorf("condition must be a boolean or an expression, got %T", raw)
	}
	return nil
}

func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return c.set(raw)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return c.set(raw)
}

func (c Condition) value() interface{} {
	if c.Literal != nil {
		return *c.Literal
	}
	return c.Expression
}

func (c Condition) MarshalJSON() ([]byte, error) { return json.Marshal(c.value()) }

func (c Condition) MarshalYAML() (interface{}, error) { return c.value(), nil }

// TaskDefinition is one declarative, role-scoped unit of deployment work
type TaskDefinition struct {
	ID              string                 `json:"id" yaml:"id"`
	Type            TaskType               `json:"type" yaml:"type"`
	Version         string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Roles           RoleSpec               `json:"roles,omitempty" yaml:"roles,omitempty"`
	Role            RoleSpec               `json:"role,omitempty" yaml:"role,omitempty"`
	Groups          RoleSpec               `json:"groups,omitempty" yaml:"groups,omitempty"`
	Requires        []string               `json:"requires,omitempty" yaml:"requires,omitempty"`
	RequiredFor     []string               `json:"required_for,omitempty" yaml:"required_for,omitempty"`
	CrossDepends    []Dependency           `json:"cross_depends,omitempty" yaml:"cross_depends,omitempty"`
	CrossDependedBy []Dependency           `json:"cross_depended_by,omitempty" yaml:"cross_depended_by,omitempty"`
	Tasks           []string               `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Condition       *Condition             `json:"condition,omitempty" yaml:"condition,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	FailOnError     *bool                  `json:"fail_on_error,omitempty" yaml:"fail_on_error,omitempty"`
	FaultTolerance  interface{}            `json:"fault_tolerance,omitempty" yaml:"fault_tolerance,omitempty"`
}

// RoleSpec returns roles, falling back to the legacy role and groups fields
// in that order
func (t *TaskDefinition) RoleSpec() RoleSpec {
	switch {
	case t.Roles.IsSet():
		return t.Roles
	case t.Role.IsSet():
		return t.Role
	}
	return t.Groups
}

// LoadTasks parses a YAML or JSON list of task definitions
func LoadTasks(data []byte) ([]*TaskDefinition, error) {
	var tasks []*TaskDefinition
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse tasks: %w", err)
	}
	for i, task := range tasks {
		if task == nil || task.ID == "" {
			return nil, fmt.Errorf("task #%d has no id", i)
		}
		if task.Type == "" {
			return nil, fmt.Errorf("task %s has no type", task.ID)
		}
	}
	return tasks, nil
}
