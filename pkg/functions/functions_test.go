package functions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/template"
)

// stubResolver answers reference and attribute lookups from fixed maps.
// Names absent from refs are reported as not ready.
type stubResolver struct {
	resources map[string]bool
	refs      map[string]string
	attrs     map[string]map[string]interface{}
}

func (r *stubResolver) HasResource(name string) bool {
	return r.resources[name]
}

func (r *stubResolver) ReferenceID(name string) (string, bool, error) {
	id, ok := r.refs[name]
	return id, ok, nil
}

func (r *stubResolver) Attribute(name, attr string) (interface{}, bool, error) {
	attrs, ok := r.attrs[name]
	if !ok {
		return nil, false, nil
	}
	value, ok := attrs[attr]
	if !ok {
		return nil, false, errors.InvalidTemplateAttribute(name, attr)
	}
	return value, true, nil
}

func testEnv(t *testing.T) *Environment {
	t.Helper()
	doc := `
kiln_template_version: "2023-05-01"
parameters:
  flavor:
    type: string
    default: small
resources:
  db:
    type: kiln::compute::server
  app:
    type: kiln::compute::server
mappings:
  images:
    dc-1:
      small: img-1
`
	tmpl, err := template.NewLoader().LoadFromBytes([]byte(doc), "test")
	require.NoError(t, err)

	params, err := template.Bind(tmpl.ParameterSchemas(), nil, template.PseudoParameters{
		StackID:   "arn-1",
		StackName: "web",
		Region:    "dc-1",
	})
	require.NoError(t, err)

	return &Environment{
		Parameters: params,
		Template:   tmpl,
		Resources: &stubResolver{
			resources: map[string]bool{"db": true, "app": true},
			refs:      map[string]string{"db": "db-123"},
			attrs: map[string]map[string]interface{}{
				"db": {"address": "10.0.0.5"},
			},
		},
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	env := testEnv(t)
	snippet := map[string]interface{}{
		"flavor": map[string]interface{}{"Ref": "flavor"},
	}

	resolved, err := ResolveAll(snippet, env)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"flavor": "small"}, resolved)
	assert.Equal(t, map[string]interface{}{"Ref": "flavor"}, snippet["flavor"])
}

func TestParameterRefs(t *testing.T) {
	env := testEnv(t)

	resolved, err := ResolveAll(map[string]interface{}{"Ref": "flavor"}, env)
	require.NoError(t, err)
	assert.Equal(t, "small", resolved)

	resolved, err = ResolveAll(map[string]interface{}{"Ref": "kiln.stack_name"}, env)
	require.NoError(t, err)
	assert.Equal(t, "web", resolved)

	_, err = ResolveAll(map[string]interface{}{"Ref": "absent"}, env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeMissingParameter))
}

func TestResourceRefs(t *testing.T) {
	env := testEnv(t)

	resolved, err := ResolveAll(map[string]interface{}{"Ref": "db"}, env)
	require.NoError(t, err)
	assert.Equal(t, "db-123", resolved)

	// app has no reference id yet; the node stays for a later round.
	resolved, err = ResolveAll(map[string]interface{}{"Ref": "app"}, env)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"Ref": "app"}, resolved)
	assert.True(t, HasUnresolved(resolved))
}

func TestAttributes(t *testing.T) {
	env := testEnv(t)

	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::GetAtt": []interface{}{"db", "address"},
	}, env)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", resolved)

	// app is not live yet.
	resolved, err = ResolveAll(map[string]interface{}{
		"Fn::GetAtt": []interface{}{"app", "address"},
	}, env)
	require.NoError(t, err)
	assert.True(t, HasUnresolved(resolved))

	_, err = ResolveAll(map[string]interface{}{
		"Fn::GetAtt": []interface{}{"nosuch", "address"},
	}, env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidAttribute))
}

func TestNestedFunctionsResolveInnermostFirst(t *testing.T) {
	env := testEnv(t)

	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::Join": []interface{}{":", []interface{}{
			map[string]interface{}{"Ref": "db"},
			map[string]interface{}{"Fn::GetAtt": []interface{}{"db", "address"}},
		}},
	}, env)
	require.NoError(t, err)
	assert.Equal(t, "db-123:10.0.0.5", resolved)
}

func TestJoinDefersOnUnresolvedItems(t *testing.T) {
	env := testEnv(t)

	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::Join": []interface{}{":", []interface{}{
			"prefix",
			map[string]interface{}{"Ref": "app"},
		}},
	}, env)
	require.NoError(t, err)
	assert.True(t, HasUnresolved(resolved))
}

func TestJoinCoercesScalars(t *testing.T) {
	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::Join": []interface{}{"-", []interface{}{"a", 1, nil, true}},
	}, testEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "a-1--true", resolved)
}

func TestSplit(t *testing.T) {
	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::Split": []interface{}{",", "a,b,c"},
	}, testEnv(t))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c"}, resolved)
}

func TestReplaceLongestKeyFirst(t *testing.T) {
	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::Replace": []interface{}{
			map[string]interface{}{
				"$host":      "db",
				"$host_port": "db:5432",
			},
			"postgres://$host_port",
		},
	}, testEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://db:5432", resolved)
}

func TestSelect(t *testing.T) {
	env := testEnv(t)

	cases := []struct {
		name string
		arg  []interface{}
		want interface{}
	}{
		{"list by index", []interface{}{1, []interface{}{"a", "b"}}, "b"},
		{"list by string index", []interface{}{"0", []interface{}{"a", "b"}}, "a"},
		{"index out of range", []interface{}{5, []interface{}{"a"}}, ""},
		{"map by key", []interface{}{"k", map[string]interface{}{"k": "v"}}, "v"},
		{"missing map key", []interface{}{"x", map[string]interface{}{"k": "v"}}, ""},
		{"json encoded list", []interface{}{1, `["a", "b"]`}, "b"},
		{"empty string input", []interface{}{0, ""}, ""},
		{"nil input", []interface{}{0, nil}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := ResolveAll(map[string]interface{}{"Fn::Select": tc.arg}, env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resolved)
		})
	}

	_, err := ResolveAll(map[string]interface{}{
		"Fn::Select": []interface{}{"NaN", []interface{}{"a"}},
	}, env)
	require.Error(t, err)

	_, err = ResolveAll(map[string]interface{}{
		"Fn::Select": []interface{}{0, "not json"},
	}, env)
	require.Error(t, err)
}

func TestBase64(t *testing.T) {
	resolved, err := ResolveAll(map[string]interface{}{"Fn::Base64": "kiln"}, testEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "a2lsbg==", resolved)
}

func TestFindInMap(t *testing.T) {
	env := testEnv(t)

	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::FindInMap": []interface{}{"images", "dc-1", "small"},
	}, env)
	require.NoError(t, err)
	assert.Equal(t, "img-1", resolved)

	_, err = ResolveAll(map[string]interface{}{
		"Fn::FindInMap": []interface{}{"absent", "dc-1", "small"},
	}, env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidReference))
}

func TestMemberListToMap(t *testing.T) {
	resolved, err := ResolveAll(map[string]interface{}{
		"Fn::MemberListToMap": []interface{}{"key", "value", []interface{}{
			".member.0.key=port",
			".member.0.value=8080",
			".member.1.key=proto",
			".member.1.value=tcp",
		}},
	}, testEnv(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"port": "8080", "proto": "tcp"}, resolved)
}

func TestResourceFacade(t *testing.T) {
	env := testEnv(t)
	env.Parent = &ParentFacade{
		Metadata:       map[string]interface{}{"role": "worker"},
		DeletionPolicy: "retain",
	}

	resolved, err := ResolveAll(map[string]interface{}{"Fn::ResourceFacade": "Metadata"}, env)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"role": "worker"}, resolved)

	resolved, err = ResolveAll(map[string]interface{}{"Fn::ResourceFacade": "DeletionPolicy"}, env)
	require.NoError(t, err)
	assert.Equal(t, "retain", resolved)

	env.Parent = nil
	_, err = ResolveAll(map[string]interface{}{"Fn::ResourceFacade": "Metadata"}, env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidReference))
}

func TestHasUnresolved(t *testing.T) {
	assert.False(t, HasUnresolved("plain"))
	assert.False(t, HasUnresolved(map[string]interface{}{"key": "value"}))
	assert.True(t, HasUnresolved(map[string]interface{}{"Ref": "db"}))
	assert.True(t, HasUnresolved([]interface{}{
		"a",
		map[string]interface{}{"deep": map[string]interface{}{"Fn::Base64": "x"}},
	}))

	// A two-key map is data, not a function node.
	assert.False(t, HasUnresolved(map[string]interface{}{"Ref": "db", "other": 1}))
}
