// Package expander implements the three-pass transformation that turns a
// symbolic step DAG (one node per declared study step) into a concrete DAG
// of step.Record instances: basic-DAG construction from depends:, global
// parameter fan-out with mask propagation, and workspace-reference
// substitution. Each pass produces a new working graph; Pass A's graph is
// kept around unmutated so Pass C can recover a node's pre-fan-out
// "semantic" id.
package expander

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/weftrun/weft/pkg/dag"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/param"
	"github.com/weftrun/weft/pkg/specification"
	"github.com/weftrun/weft/pkg/step"
)

// SourceName is the sentinel root every zero-in-degree step connects from.
const SourceName = "_source"

// workspaceRefPattern matches "$(<name>.workspace)" tokens in a command
// string; <name> mirrors step-name characters (alphanumeric, underscore,
// hyphen, dot, slash for parameterized names like "a/X.1").
var workspaceRefPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_./\-]+)\.workspace\)`)

// Expand runs all three passes over spec, rooted at workspaceRoot, and
// returns the concrete DAG of step.Record values. The returned graph's node
// Values are *step.Record.
func Expand(spec *specification.Specification, workspaceRoot string) (*dag.Graph, error) {
	ps, err := buildParameterSet(spec)
	if err != nil {
		return nil, err
	}

	basic, fanIn, err := passA(spec, workspaceRoot)
	if err != nil {
		return nil, err
	}

	concrete, err := passB(basic, ps, fanIn)
	if err != nil {
		return nil, err
	}

	if err := passC(basic, concrete); err != nil {
		return nil, err
	}

	return concrete, nil
}

func buildParameterSet(spec *specification.Specification) (*param.ParameterSet, error) {
	ps := param.New()
	for _, key := range spec.ParamKeys() {
		g := spec.Global.Parameters[key]
		if err := ps.Add(key, g.Values, g.Label, ""); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// passA builds the basic DAG: one node per declared step plus the _source
// sentinel, wired by depends: (with any trailing "_*" fan-in suffix
// stripped). It also returns, for each (parent, child) edge, whether the
// declaration used the "_*" fan-in form.
func passA(spec *specification.Specification, workspaceRoot string) (*dag.Graph, map[[2]string]bool, error) {
	g := dag.New()
	g.AddNode(SourceName, nil, dag.NodeID(-1))

	for _, sd := range spec.Study {
		ws := filepath.Join(workspaceRoot, sd.Name)
		rec := step.NewRecord(sd.Name, ws, sd.Run.Cmd, sd.Run.Restart)
		rec.RestartLimit = step.MaxRetries(sd.Run.MaxRetries)
		rec.TaskQueueRaw = sd.Run.TaskQueue
		g.AddNode(sd.Name, rec)
	}

	fanIn := make(map[[2]string]bool)
	for _, sd := range spec.Study {
		for _, dep := range sd.Run.Depends {
			base := strings.TrimSuffix(dep, "_*")
			if err := g.AddEdge(base, sd.Name); err != nil {
				return nil, nil, err
			}
			fanIn[[2]string{base, sd.Name}] = strings.HasSuffix(dep, "_*")
		}
	}

	for _, sd := range spec.Study {
		if len(g.InEdges(sd.Name)) == 0 {
			if err := g.AddEdge(SourceName, sd.Name); err != nil {
				return nil, nil, err
			}
		}
	}

	return g, fanIn, nil
}

// passB walks basic in topological order and fans out every node whose
// param_vector ends up with any bit set, preserving each node's id across
// the rename. It mutates a clone of basic, since earlier steps' renames
// must be visible to later steps in the same walk.
func passB(basic *dag.Graph, ps *param.ParameterSet, fanIn map[[2]string]bool) (*dag.Graph, error) {
	g := basic.Clone()
	order := basic.TopologicalSort()

	// origNameOf maps a current node name back to the basic-DAG name it
	// was fanned out from, so fanIn lookups (keyed by basic names) still
	// resolve after a predecessor has been renamed.
	origNameOf := make(map[string]string)
	for _, n := range order {
		origNameOf[n] = n
	}

	for _, basicName := range order {
		if basicName == SourceName {
			continue
		}
		node := g.Node(basicName)
		if node == nil {
			// Already consumed by an earlier rename pass (shouldn't
			// happen since we walk the immutable basic-DAG order).
			continue
		}
		rec := node.Value.(*step.Record)
		s := step.Wrap(rec)

		localMask := s.GlobalParamMask(ps)
		nodeMask := append([]bool(nil), localMask...)
		hasDirectParams := anySet(localMask)

		preds := g.InEdges(basicName)
		for _, p := range preds {
			if fanIn[[2]string{origNameOf[p], basicName}] {
				// A "_*" fan-in dependency deliberately collapses every
				// parameterization of its source step into one upstream
				// set for the declaring step: it must not make the
				// declaring step itself sensitive to that parameter.
				continue
			}
			pv := paramVectorOf(g, p)
			orBits(nodeMask, pv)
		}

		rec.ParamVector = nodeMask
		if !anySet(nodeMask) {
			continue
		}

		expanded := s.ExpandGlobalParams(ps, nodeMask)
		if expanded == nil {
			continue
		}

		succs := g.OutEdges(basicName)
		nodeID := node.ID

		g.RemoveNode(basicName)

		childNames := make([]string, len(expanded))
		for i, ex := range expanded {
			g.AddNode(ex.Name, ex.Record, nodeID)
			childNames[i] = ex.Name
			origNameOf[ex.Name] = basicName
		}

		for _, p := range preds {
			pFanIn := fanIn[[2]string{origNameOf[p], basicName}]
			for i, childName := range childNames {
				if p == SourceName || pFanIn || hasDirectParams {
					if err := g.AddEdge(p, childName); err != nil {
						return nil, err
					}
					continue
				}
				pIdx := paramIndexOf(g, p)
				cIdx := expanded[i].Record.ParamIndex
				if pIdx == -1 || pIdx == cIdx {
					if err := g.AddEdge(p, childName); err != nil {
						return nil, err
					}
				}
			}
		}

		for _, s2 := range succs {
			for _, childName := range childNames {
				if err := g.AddEdge(childName, s2); err != nil {
					return nil, err
				}
			}
		}
	}

	return g, nil
}

func paramVectorOf(g *dag.Graph, name string) []bool {
	if name == SourceName {
		return nil
	}
	n := g.Node(name)
	if n == nil {
		return nil
	}
	rec, ok := n.Value.(*step.Record)
	if !ok {
		return nil
	}
	return rec.ParamVector
}

func paramIndexOf(g *dag.Graph, name string) int {
	if name == SourceName {
		return -1
	}
	n := g.Node(name)
	if n == nil {
		return -1
	}
	rec, ok := n.Value.(*step.Record)
	if !ok {
		return -1
	}
	return rec.ParamIndex
}

func anySet(mask []bool) bool {
	for _, b := range mask {
		if b {
			return true
		}
	}
	return false
}

func orBits(dst, src []bool) {
	for i := range dst {
		if i < len(src) && src[i] {
			dst[i] = true
		}
	}
}

// passC resolves every "$(<name>.workspace)" token in each concrete node's
// Cmd and RestartCmd, using basic to recover the referenced step's
// pre-fan-out semantic id.
func passC(basic, concrete *dag.Graph) error {
	idIndex := make(map[dag.NodeID][]string)
	for _, name := range concrete.Nodes() {
		idIndex[concrete.Node(name).ID] = append(idIndex[concrete.Node(name).ID], name)
	}

	for _, name := range concrete.TopologicalSort() {
		if name == SourceName {
			continue
		}
		node := concrete.Node(name)
		rec := node.Value.(*step.Record)

		resolved, err := resolveWorkspaceRefs(basic, concrete, idIndex, name, rec.Cmd)
		if err != nil {
			return err
		}
		rec.Cmd = resolved

		if rec.RestartCmd != "" {
			resolved, err := resolveWorkspaceRefs(basic, concrete, idIndex, name, rec.RestartCmd)
			if err != nil {
				return err
			}
			rec.RestartCmd = resolved
		}
	}
	return nil
}

func resolveWorkspaceRefs(basic, concrete *dag.Graph, idIndex map[dag.NodeID][]string, nodeName, cmd string) (string, error) {
	ancestorIDs := make(map[dag.NodeID]bool)
	for _, a := range concrete.Ancestors(nodeName) {
		ancestorIDs[concrete.Node(a).ID] = true
	}

	selfRec := concrete.Node(nodeName).Value.(*step.Record)

	for {
		loc := workspaceRefPattern.FindStringSubmatchIndex(cmd)
		if loc == nil {
			break
		}
		refName := cmd[loc[2]:loc[3]]

		basicNode := basic.Node(refName)
		if basicNode == nil {
			return "", errkind.New(errkind.DanglingWorkspaceRef,
				"step '"+nodeName+"' references unknown step '"+refName+"' in a workspace token")
		}
		if !ancestorIDs[basicNode.ID] {
			return "", errkind.New(errkind.DanglingWorkspaceRef,
				"step '"+nodeName+"' references '"+refName+"'.workspace but it is not an ancestor")
		}

		candidates := idIndex[basicNode.ID]
		var target *step.Record
		if len(candidates) == 1 {
			target = concrete.Node(candidates[0]).Value.(*step.Record)
		} else {
			for _, cand := range candidates {
				cr := concrete.Node(cand).Value.(*step.Record)
				if cr.ParamIndex == selfRec.ParamIndex {
					target = cr
					break
				}
			}
		}
		if target == nil {
			return "", errkind.New(errkind.DanglingWorkspaceRef,
				"step '"+nodeName+"' references '"+refName+"'.workspace but no matching parameter combination was found")
		}

		cmd = cmd[:loc[0]] + target.Workspace + cmd[loc[1]:]
	}

	return cmd, nil
}
