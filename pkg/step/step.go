package step

import (
	"strconv"
	"strings"

	"github.com/weftrun/weft/pkg/param"
)

// ReservedSampleTokens are left intact by global-parameter and workspace
// substitution; they are substituted later by the sample-dispatch layer,
// outside the core. Both cases are recognized since the source tool
// accepted either.
var ReservedSampleTokens = []string{
	"MERLIN_SAMPLE_ID", "merlin_sample_id",
	"MERLIN_SAMPLE_PATH", "merlin_sample_path",
}

// Step is a thin behavioral wrapper over a Record: it knows how to read the
// record's current command strings, detect and substitute global-parameter
// tokens, and produce fanned-out copies.
type Step struct {
	Record *Record
}

// Wrap returns a Step wrapping r.
func Wrap(r *Record) *Step {
	return &Step{Record: r}
}

// Cmd returns the record's current command.
func (s *Step) Cmd() string { return s.Record.Cmd }

// RestartCmd returns the record's current restart command, or "" if none.
func (s *Step) RestartCmd() string { return s.Record.RestartCmd }

// TaskQueue delegates to the record.
func (s *Step) TaskQueue() string { return s.Record.TaskQueue() }

// ContainsGlobalParams reports whether any global key in globals appears
// (in any of its three token forms) in Cmd().
func (s *Step) ContainsGlobalParams(globals *param.ParameterSet) bool {
	for _, b := range s.GlobalParamMask(globals) {
		if b {
			return true
		}
	}
	return false
}

// GlobalParamMask returns the boolean vector over globals.Keys() in
// declaration order: element i is true iff Cmd() references global key i
// directly.
func (s *Step) GlobalParamMask(globals *param.ParameterSet) []bool {
	return globals.Mask(s.Record.Cmd)
}

// ExpandedStep is one fanned-out copy produced by ExpandGlobalParams.
type ExpandedStep struct {
	Record *Record
	Name   string
}

// ExpandGlobalParams substitutes, for every parameter k with mask[k] true,
// the three token forms in both Cmd and RestartCmd, for every combination
// index i in [0, P). Returns nil if mask is all-false or globals is empty.
func (s *Step) ExpandGlobalParams(globals *param.ParameterSet, mask []bool) []ExpandedStep {
	if globals.Empty() {
		return nil
	}
	anySet := false
	for _, b := range mask {
		if b {
			anySet = true
			break
		}
	}
	if !anySet {
		return nil
	}

	out := make([]ExpandedStep, 0, globals.Len())
	for i := 0; i < globals.Len(); i++ {
		combo := globals.Combination(i)
		newCmd := combo.Apply(s.Record.Cmd)
		newRestart := s.Record.RestartCmd
		if newRestart != "" {
			newRestart = combo.Apply(newRestart)
		}

		cp := s.Record.Clone()
		cp.Cmd = newCmd
		cp.RestartCmd = newRestart
		cp.ParamIndex = i

		labels := globals.MaskedLabels(i, mask)
		name := s.Record.Name + "/" + strings.Join(labels, ".")
		cp.Name = name

		out = append(out, ExpandedStep{Record: cp, Name: name})
	}
	return out
}

// NeedsSampleExpansion reports whether Cmd or RestartCmd references any of
// the given sample-column labels or the reserved sample tokens.
func (s *Step) NeedsSampleExpansion(labels []string) bool {
	haystacks := []string{s.Record.Cmd, s.Record.RestartCmd}
	for _, h := range haystacks {
		if h == "" {
			continue
		}
		for _, tok := range ReservedSampleTokens {
			if strings.Contains(h, "$("+tok+")") {
				return true
			}
		}
		for _, label := range labels {
			if strings.Contains(h, "$("+label+")") {
				return true
			}
		}
	}
	return false
}

// Clone deep-copies the underlying record, applying an optional new
// command, optional literal (from, to) replacement pairs (applied
// case-insensitively to both Cmd and RestartCmd), and an optional new
// workspace.
func (s *Step) Clone(newCmd string, pairs [][2]string, newWorkspace string) *Step {
	cp := s.Record.Clone()
	if newCmd != "" {
		cp.Cmd = newCmd
	}
	for _, p := range pairs {
		cp.Cmd = replaceFold(cp.Cmd, p[0], p[1])
		cp.RestartCmd = replaceFold(cp.RestartCmd, p[0], p[1])
	}
	if newWorkspace != "" {
		cp.Workspace = newWorkspace
	}
	return Wrap(cp)
}

func replaceFold(s, from, to string) string {
	if from == "" {
		return s
	}
	lowerS := strings.ToLower(s)
	lowerFrom := strings.ToLower(from)
	var b strings.Builder
	for {
		idx := strings.Index(lowerS, lowerFrom)
		if idx < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:idx])
		b.WriteString(to)
		s = s[idx+len(from):]
		lowerS = lowerS[idx+len(from):]
	}
	return b.String()
}

// MaxRetries parses run.max_retries-style string input, defaulting to
// DefaultRestartLimit on empty or unparsable input.
func MaxRetries(raw string) int {
	if raw == "" {
		return DefaultRestartLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultRestartLimit
	}
	return n
}
