package expander

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/specification"
	"github.com/weftrun/weft/pkg/step"
)

func mustSpec(t *testing.T, yamlDoc string) *specification.Specification {
	t.Helper()
	spec, err := specification.Parse([]byte(yamlDoc))
	require.NoError(t, err)
	return spec
}

// S1 — linear no-param.
func TestExpandLinearNoParam(t *testing.T) {
	spec := mustSpec(t, `
study:
  - name: a
    run:
      cmd: echo A
  - name: b
    run:
      cmd: echo B
      depends: [a]
`)
	g, err := Expand(spec, "/ws")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{SourceName, "a", "b"}, g.Nodes())
	assert.Equal(t, []string{SourceName}, g.InEdges("a"))
	assert.Equal(t, []string{"a"}, g.InEdges("b"))

	for _, name := range []string{"a", "b"} {
		rec := g.Node(name).Value.(*step.Record)
		assert.False(t, rec.IsParameterized())
		assert.Equal(t, -1, rec.ParamIndex)
	}
}

// S2 — single parameter fan-out, edges must not cross combinations.
func TestExpandSingleParamFanOut(t *testing.T) {
	spec := mustSpec(t, `
study:
  - name: a
    run:
      cmd: echo $(X)
  - name: b
    run:
      cmd: echo done
      depends: [a]
global:
  parameters:
    X:
      values: ["1", "2"]
      label: "X.%%"
`)
	g, err := Expand(spec, "/ws")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{SourceName, "a/X.1", "a/X.2", "b/X.1", "b/X.2"}, g.Nodes())

	assert.ElementsMatch(t, []string{SourceName}, g.InEdges("a/X.1"))
	assert.ElementsMatch(t, []string{SourceName}, g.InEdges("a/X.2"))
	assert.ElementsMatch(t, []string{"a/X.1"}, g.InEdges("b/X.1"))
	assert.ElementsMatch(t, []string{"a/X.2"}, g.InEdges("b/X.2"))

	a1 := g.Node("a/X.1").Value.(*step.Record)
	a2 := g.Node("a/X.2").Value.(*step.Record)
	assert.Equal(t, "echo 1", a1.Cmd)
	assert.Equal(t, "echo 2", a2.Cmd)
	assert.Equal(t, 0, a1.ParamIndex)
	assert.Equal(t, 1, a2.ParamIndex)
}

// S3 — fan-in dependency collapses all parameterizations into one step.
func TestExpandFanInDependency(t *testing.T) {
	spec := mustSpec(t, `
study:
  - name: gen
    run:
      cmd: echo $(X)
  - name: collect
    run:
      cmd: cat results
      depends: [gen_*]
global:
  parameters:
    X:
      values: ["1", "2", "3"]
`)
	g, err := Expand(spec, "/ws")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{SourceName, "gen/X.1", "gen/X.2", "gen/X.3", "collect"}, g.Nodes())
	assert.ElementsMatch(t, []string{"gen/X.1", "gen/X.2", "gen/X.3"}, g.InEdges("collect"))

	collect := g.Node("collect").Value.(*step.Record)
	assert.Equal(t, -1, collect.ParamIndex)
	assert.False(t, collect.IsParameterized())
}

// S4 — workspace reference resolves per matching parameter combination.
func TestExpandWorkspaceReference(t *testing.T) {
	spec := mustSpec(t, `
study:
  - name: a
    run:
      cmd: echo $(X)
  - name: b
    run:
      cmd: use $(a.workspace)/out
      depends: [a]
global:
  parameters:
    X:
      values: ["1", "2"]
`)
	g, err := Expand(spec, "/ws")
	require.NoError(t, err)

	a1 := g.Node("a/X.1").Value.(*step.Record)
	a2 := g.Node("a/X.2").Value.(*step.Record)
	b1 := g.Node("b/X.1").Value.(*step.Record)
	b2 := g.Node("b/X.2").Value.(*step.Record)

	assert.True(t, strings.Contains(b1.Cmd, a1.Workspace))
	assert.True(t, strings.Contains(b2.Cmd, a2.Workspace))
	assert.False(t, strings.Contains(b1.Cmd, "$(a.workspace)"))
}

// S5 — dangling workspace reference.
func TestExpandDanglingWorkspaceReference(t *testing.T) {
	spec := mustSpec(t, `
study:
  - name: b
    run:
      cmd: use $(zz.workspace)
`)
	_, err := Expand(spec, "/ws")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.DanglingWorkspaceRef))
}

func TestExpandWorkspaceUniquePerRecord(t *testing.T) {
	spec := mustSpec(t, `
study:
  - name: a
    run:
      cmd: echo hi
  - name: b
    run:
      cmd: echo hi
      depends: [a]
`)
	g, err := Expand(spec, "/ws/study")
	require.NoError(t, err)

	a := g.Node("a").Value.(*step.Record)
	b := g.Node("b").Value.(*step.Record)
	assert.Equal(t, "/ws/study/a", a.Workspace)
	assert.Equal(t, "/ws/study/b", b.Workspace)
	assert.NotEqual(t, a.Workspace, b.Workspace)
}
