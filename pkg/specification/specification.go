// Package specification defines the Specification data contract the core
// consumes: the parsed, defaulted, validated form of a study's YAML
// description. Parsing the raw document is a thin gopkg.in/yaml.v3
// unmarshal; the bulk of this package is defaulting and hand-written
// validation, following the teacher's preference for explicit Go checks
// over a schema-validation library.
package specification

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/weftrun/weft/pkg/errkind"
)

// RunBlock is the run: stanza of one study step.
type RunBlock struct {
	Cmd        string            `yaml:"cmd"`
	Restart    string            `yaml:"restart,omitempty"`
	Depends    []string          `yaml:"depends,omitempty"`
	TaskQueue  string            `yaml:"task_queue,omitempty"`
	Shell      string            `yaml:"shell,omitempty"`
	Batch      map[string]string `yaml:"batch,omitempty"`
	MaxRetries string            `yaml:"max_retries,omitempty"`
	Walltime   string            `yaml:"walltime,omitempty"`
}

// StepDescription is one entry of the study: list.
type StepDescription struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Run         RunBlock `yaml:"run"`
}

// GlobalParam is one entry of global.parameters: a key mapping to an
// equal-length value list and a label template.
type GlobalParam struct {
	Values []string `yaml:"values"`
	Label  string   `yaml:"label,omitempty"`
}

// Worker is one entry of merlin.resources.workers: a name bound to the
// step names it drains and extra args passed to the worker-launch command.
type Worker struct {
	Steps []string `yaml:"steps,omitempty"`
	Args  string   `yaml:"args,omitempty"`
}

// Global holds everything under the top-level global: key.
type Global struct {
	Parameters map[string]GlobalParam `yaml:"parameters,omitempty"`
}

// Resources holds everything under merlin.resources:.
type Resources struct {
	TaskServer string            `yaml:"task_server,omitempty"`
	Workers    map[string]Worker `yaml:"workers,omitempty"`
}

// Merlin holds the merlin: top-level key (named for the workspace-layout
// conventions this module's CLI surface still honors).
type Merlin struct {
	Resources Resources `yaml:"resources,omitempty"`
}

// Env holds the env: top-level key.
type Env struct {
	Variables map[string]string `yaml:"variables,omitempty"`
}

// Specification is the fully-parsed study document. It is immutable after
// Load/Validate: the Expander consumes it without mutating it.
type Specification struct {
	Name      string            `yaml:"name,omitempty"`
	Study     []StepDescription `yaml:"study"`
	Global    Global            `yaml:"global,omitempty"`
	Merlin    Merlin            `yaml:"merlin,omitempty"`
	Env       Env               `yaml:"env,omitempty"`
	Batch     map[string]string `yaml:"batch,omitempty"`
	Workspace string            `yaml:"-"`
}

// Load reads and parses path, applies defaults, and validates the result.
func Load(path string) (*Specification, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading specification %s", path)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// Parse unmarshals raw YAML into a Specification, applies defaults, and
// validates the result.
func Parse(raw []byte) (*Specification, error) {
	var spec Specification
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, errkind.Wrap(errkind.SpecInvalid, err, "parsing specification YAML")
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Specification) applyDefaults() {
	for i := range s.Study {
		if s.Study[i].Run.Shell == "" {
			s.Study[i].Run.Shell = "/bin/bash"
		}
	}
}

// Validate checks the shape invariants the core depends on: every step has
// a name and a command, step names are unique, depends references are
// resolvable step names (modulo a trailing "_*" fan-in suffix), and every
// global parameter's value list shares one common length.
func (s *Specification) Validate() error {
	if len(s.Study) == 0 {
		return errkind.New(errkind.SpecInvalid, "study must declare at least one step")
	}

	seen := make(map[string]bool, len(s.Study))
	for _, step := range s.Study {
		if step.Name == "" {
			return errkind.New(errkind.SpecInvalid, "a study step is missing 'name'")
		}
		if seen[step.Name] {
			return errkind.New(errkind.SpecInvalid, fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = true
		if strings.TrimSpace(step.Run.Cmd) == "" {
			return errkind.New(errkind.SpecInvalid, fmt.Sprintf("step %q is missing run.cmd", step.Name))
		}
	}

	for _, step := range s.Study {
		for _, dep := range step.Run.Depends {
			base := strings.TrimSuffix(dep, "_*")
			if !seen[base] {
				return errkind.New(errkind.SpecInvalid, fmt.Sprintf(
					"step %q depends on undeclared step %q", step.Name, base))
			}
		}
	}

	length := -1
	for key, g := range s.Global.Parameters {
		if length == -1 {
			length = len(g.Values)
		} else if len(g.Values) != length {
			return errkind.New(errkind.ShapeMismatch, fmt.Sprintf(
				"global parameter %q has %d values, expected %d", key, len(g.Values), length))
		}
	}

	return nil
}

// ParamKeys returns the global parameter keys in a deterministic order
// (sorted), since a YAML map has no declared order of its own.
func (s *Specification) ParamKeys() []string {
	keys := make([]string, 0, len(s.Global.Parameters))
	for k := range s.Global.Parameters {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// AllTaskQueues returns the union of task queues referenced across every
// declared step, applying the same "none"/empty -> default-queue fallback
// as step.Record.TaskQueue. Used by `weft purge` and `weft query-status`
// when no worker-specific queue list applies.
func (s *Specification) AllTaskQueues() []string {
	seen := make(map[string]bool)
	var queues []string
	for _, sd := range s.Study {
		q := sd.Run.TaskQueue
		if q == "" || strings.EqualFold(q, "none") {
			q = "weft"
		}
		if !seen[q] {
			seen[q] = true
			queues = append(queues, q)
		}
	}
	return queues
}

// WorkerQueues returns, for a named worker, the union of task queues used
// by its assigned steps — the specification does not restate queue names
// per worker, so the CLI derives it here.
func (s *Specification) WorkerQueues(workerName string) ([]string, error) {
	w, ok := s.Merlin.Resources.Workers[workerName]
	if !ok {
		return nil, errkind.New(errkind.SpecInvalid, fmt.Sprintf("undeclared worker %q", workerName))
	}
	byName := make(map[string]StepDescription, len(s.Study))
	for _, step := range s.Study {
		byName[step.Name] = step
	}

	seen := make(map[string]bool)
	var queues []string
	for _, stepName := range w.Steps {
		step, ok := byName[stepName]
		if !ok {
			return nil, errkind.New(errkind.SpecInvalid, fmt.Sprintf(
				"worker %q references undeclared step %q", workerName, stepName))
		}
		q := step.Run.TaskQueue
		if q == "" || strings.EqualFold(q, "none") {
			q = "weft"
		}
		if !seen[q] {
			seen[q] = true
			queues = append(queues, q)
		}
	}
	return queues, nil
}
