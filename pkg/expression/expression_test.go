package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv() *Env {
	return &Env{
		New: map[string]interface{}{
			"uid":   "2",
			"roles": []interface{}{"controller", "mongo"},
			"cluster": map[string]interface{}{
				"id":   1,
				"mode": "ha",
			},
			"network_scheme": map[string]interface{}{"mtu": 9000},
		},
		Old: map[string]interface{}{
			"uid":   "2",
			"roles": []interface{}{"controller"},
			"cluster": map[string]interface{}{
				"id":   1,
				"mode": "ha",
			},
			"network_scheme": map[string]interface{}{"mtu": 1500},
		},
		Vars: map[string]interface{}{
			"CLUSTER_ID":        1,
			"OPENSTACK_VERSION": "mitaka-9.0",
		},
	}
}

func TestEvaluator_EvalBool(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected bool
		wantErr  bool
	}{
		{name: "literal", expr: "true", expected: true},
		{name: "state attribute", expr: `new.cluster.mode == "ha"`, expected: true},
		{name: "contains", expr: `contains(new.roles, "mongo")`, expected: true},
		{name: "contains false", expr: `contains(old.roles, "mongo")`, expected: false},
		{name: "changed path", expr: `changed("network_scheme")`, expected: true},
		{name: "unchanged path", expr: `changed("cluster.id")`, expected: false},
		{name: "changed any path", expr: `changed("cluster", "roles")`, expected: true},
		{name: "changed whole state", expr: `changed()`, expected: true},
		{name: "missing path counts as unchanged", expr: `changed("nothing.here")`, expected: false},
		{name: "variables", expr: `CLUSTER_ID == 1 && OPENSTACK_VERSION != ""`, expected: true},
		{name: "string coerced to bool", expr: `"true"`, expected: true},
		{name: "syntax error", expr: `new.cluster.mode ==`, wantErr: true},
		{name: "unknown attribute", expr: `new.missing.attr`, wantErr: true},
		{name: "not a boolean", expr: `new.roles`, wantErr: true},
	}

	evaluator := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.EvalBool(tt.expr, testEnv())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluator_Render(t *testing.T) {
	evaluator := NewEvaluator()
	params := map[string]interface{}{
		"cmd":     "deploy --cluster ${CLUSTER_ID} --release ${OPENSTACK_VERSION}",
		"id":      "${CLUSTER_ID}",
		"plain":   "no templates here",
		"timeout": 3600,
		"files": []interface{}{
			"/etc/${OPENSTACK_VERSION}/hiera.yaml",
			map[string]interface{}{"dst": "/var/lib/${new.uid}"},
		},
	}

	out, err := evaluator.Render(params, testEnv())
	require.NoError(t, err)

	rendered := out.(map[string]interface{})
	assert.Equal(t, "deploy --cluster 1 --release mitaka-9.0", rendered["cmd"])
	assert.Equal(t, float64(1), rendered["id"])
	assert.Equal(t, "no templates here", rendered["plain"])
	assert.Equal(t, 3600, rendered["timeout"])

	files := rendered["files"].([]interface{})
	assert.Equal(t, "/etc/mitaka-9.0/hiera.yaml", files[0])
	assert.Equal(t, map[string]interface{}{"dst": "/var/lib/2"}, files[1])
}

func TestEvaluator_RenderKeepsFailingStrings(t *testing.T) {
	evaluator := NewEvaluator()
	params := map[string]interface{}{
		"bad":  "${UNDEFINED_VAR}",
		"good": "${OPENSTACK_VERSION}",
	}

	out, err := evaluator.Render(params, testEnv())
	assert.Error(t, err)

	rendered := out.(map[string]interface{})
	assert.Equal(t, "${UNDEFINED_VAR}", rendered["bad"])
	assert.Equal(t, "mitaka-9.0", rendered["good"])
}

func TestEvaluator_EmptyEnv(t *testing.T) {
	evaluator := NewEvaluator()

	result, err := evaluator.EvalBool(`changed("network_scheme")`, &Env{})
	require.NoError(t, err)
	assert.False(t, result)

	result, err = evaluator.EvalBool(`length(keys(new)) == 0`, &Env{})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestLookup(t *testing.T) {
	data := map[string]interface{}{
		"public_ssl": map[string]interface{}{"hostname": "public.example.org"},
		"master_ip":  "10.20.0.2",
	}

	assert.Equal(t, "public.example.org", Lookup(data, "public_ssl.hostname"))
	assert.Equal(t, "10.20.0.2", Lookup(data, "master_ip"))
	assert.Nil(t, Lookup(data, "master_ip.sub"))
	assert.Nil(t, Lookup(nil, "anything"))
}
