// Package param implements the global-parameter table and the per-combination
// token substitution it produces. A ParameterSet is an ordered map of
// parameter key to an equal-length value list; iterating it yields one
// Combination per index.
package param

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weftrun/weft/pkg/errkind"
)

const labelToken = "%%"

// Global is one declared global parameter: a value list and the label
// template used to name combinations ("X.%%" by default).
type Global struct {
	Key    string
	Values []string
	Label  string // may contain the literal token "%%"
	Name   string // defaults to Key
}

// ParameterSet is an ordered table of global parameters. All Values lists
// must share the same length P (the parameter cardinality).
type ParameterSet struct {
	keys    []string
	globals map[string]Global
	length  int
}

// New returns an empty ParameterSet.
func New() *ParameterSet {
	return &ParameterSet{globals: make(map[string]Global)}
}

// Add inserts key with the given values and label template. It fails with
// errkind.ShapeMismatch if values has a different length than parameters
// already in the set. An empty label defaults to "<key>.%%"; an empty name
// defaults to key.
func (ps *ParameterSet) Add(key string, values []string, label, name string) error {
	if ps.length != 0 && len(values) != ps.length {
		return errkind.New(errkind.ShapeMismatch, fmt.Sprintf(
			"parameter '%s' has %d values, expected %d", key, len(values), ps.length))
	}
	if ps.length == 0 {
		ps.length = len(values)
	}
	if label == "" {
		label = key + "." + labelToken
	}
	if name == "" {
		name = key
	}
	if _, exists := ps.globals[key]; !exists {
		ps.keys = append(ps.keys, key)
	}
	ps.globals[key] = Global{Key: key, Values: values, Label: label, Name: name}
	return nil
}

// Keys returns the parameter keys in declaration order.
func (ps *ParameterSet) Keys() []string {
	out := make([]string, len(ps.keys))
	copy(out, ps.keys)
	return out
}

// Len returns the parameter cardinality P, or 0 if no parameters are set.
func (ps *ParameterSet) Len() int {
	return ps.length
}

// Empty reports whether the set has no parameters.
func (ps *ParameterSet) Empty() bool {
	return len(ps.keys) == 0
}

// Mask computes the boolean vector over Keys() in declaration order: element
// i is true iff any of "$(key)", "$(key.label)", or "$(key.name)" appears in
// s.
func (ps *ParameterSet) Mask(s string) []bool {
	mask := make([]bool, len(ps.keys))
	for i, k := range ps.keys {
		if strings.Contains(s, "$("+k+")") ||
			strings.Contains(s, "$("+k+".label)") ||
			strings.Contains(s, "$("+k+".name)") {
			mask[i] = true
		}
	}
	return mask
}

// MaskedLabels returns, for combination index i, the label of every key
// whose position in mask is true, in declaration order. Used to build a
// fanned-out step's name from only the parameters it is sensitive to.
func (ps *ParameterSet) MaskedLabels(i int, mask []bool) []string {
	var labels []string
	for idx, k := range ps.keys {
		if idx >= len(mask) || !mask[idx] {
			continue
		}
		g := ps.globals[k]
		label := g.Label
		if strings.Contains(label, labelToken) {
			label = strings.ReplaceAll(label, labelToken, g.Values[i])
		}
		labels = append(labels, label)
	}
	return labels
}

// Combination returns the i-th combination (i in [0, Len())), built from
// every global parameter's i-th value.
func (ps *ParameterSet) Combination(i int) *Combination {
	c := &Combination{}
	for _, k := range ps.keys {
		g := ps.globals[k]
		value := g.Values[i]
		label := g.Label
		if strings.Contains(label, labelToken) {
			label = strings.ReplaceAll(label, labelToken, value)
		}
		c.add(k, g.Name, value, label)
	}
	return c
}

// Combination holds one resolved parameter-value slot per key and applies
// the three-pass token substitution ($(k.label), $(k), $(k.name)) to a
// command string.
type Combination struct {
	labelReplacements [][2]string
	valueReplacements [][2]string
	nameReplacements  [][2]string
	labelParts        []string
}

func (c *Combination) add(key, name, value, label string) {
	c.labelReplacements = append(c.labelReplacements, [2]string{"$(" + key + ".label)", label})
	c.valueReplacements = append(c.valueReplacements, [2]string{"$(" + key + ")", value})
	c.nameReplacements = append(c.nameReplacements, [2]string{"$(" + key + ".name)", name})
	c.labelParts = append(c.labelParts, label)
}

// String returns the dot-joined labels, used to build a parameterized
// step's fanned-out name (e.g. "X.1.Y.2").
func (c *Combination) String() string {
	return strings.Join(c.labelParts, ".")
}

// Apply performs the three substitution passes, in order: $(k.label),
// $(k), $(k.name).
func (c *Combination) Apply(s string) string {
	for _, r := range c.labelReplacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	for _, r := range c.valueReplacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	for _, r := range c.nameReplacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	return s
}

// CoerceValue returns v as an int64 if it parses as one, otherwise v
// unchanged as a string; used by --vars override parsing (see
// pkg/specification) which shares this module's integer-coercion rule with
// global parameter values.
func CoerceValue(v string) interface{} {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}
