// Package provenance writes and reads the on-disk record of a run that
// `weft restart` and `weft status`/`weft monitor` depend on: a static
// expanded-specification document written once at dispatch time, and a
// fast-patched per-step status blob that `weft run` updates for every step
// once the run returns, without round-tripping the whole document through a
// Go struct.
package provenance

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/weftrun/weft/pkg/specification"
	"github.com/weftrun/weft/pkg/step"
)

const infoDir = "merlin_info"
const statusFile = "status.json"

// Document is the expanded-specification provenance written once per run,
// read back by `weft restart` to resume a partial study.
type Document struct {
	Name        string                      `yaml:"name"`
	Workspace   string                      `yaml:"workspace"`
	GeneratedAt string                      `yaml:"generated_at"`
	Nodes       []string                    `yaml:"nodes"`
	Spec        *specification.Specification `yaml:"spec"`
}

// ExpandedPath returns the provenance document path for a study named name
// rooted at workspace.
func ExpandedPath(workspace, name string) string {
	return filepath.Join(workspace, infoDir, name+".expanded.yaml")
}

// Write serializes spec plus the concrete DAG's node names to
// ExpandedPath(workspace, spec.Name), creating merlin_info/ if absent.
func Write(workspace string, spec *specification.Specification, nodeNames []string, generatedAt time.Time) error {
	dir := filepath.Join(workspace, infoDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	doc := Document{
		Name:        spec.Name,
		Workspace:   workspace,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Nodes:       nodeNames,
		Spec:        spec,
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshaling provenance document")
	}

	path := ExpandedPath(workspace, spec.Name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Load reads back a provenance document previously written by Write.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading provenance document %s", path)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing provenance document %s", path)
	}
	return &doc, nil
}

func statusPath(workspace string) string {
	return filepath.Join(workspace, infoDir, statusFile)
}

// StepStatus is one step's live state as read back from the status blob.
type StepStatus struct {
	Status string   `json:"status"`
	JobIDs []string `json:"jobids"`
}

// PatchStepStatus writes rec's current status and job ids into the run's
// status blob under key rec.Name, creating the file if absent. It patches
// in place via sjson rather than decoding the whole document; `weft run`
// calls this once per step after the run returns.
func PatchStepStatus(workspace string, rec *step.Record) error {
	path := statusPath(workspace)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "reading %s", path)
		}
		raw = []byte("{}")
	}

	raw, err = sjson.SetBytes(raw, jsonPath(rec.Name, "status"), string(rec.Status))
	if err != nil {
		return errors.Wrap(err, "patching status field")
	}
	raw, err = sjson.SetBytes(raw, jsonPath(rec.Name, "jobids"), rec.JobIDs)
	if err != nil {
		return errors.Wrap(err, "patching jobids field")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	return os.WriteFile(path, raw, 0o644)
}

// ReadStepStatus reads back one step's status without parsing the rest of
// the blob.
func ReadStepStatus(workspace, name string) (StepStatus, bool, error) {
	raw, err := os.ReadFile(statusPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return StepStatus{}, false, nil
		}
		return StepStatus{}, false, errors.Wrapf(err, "reading %s", statusPath(workspace))
	}

	result := gjson.GetBytes(raw, jsonPath(name, ""))
	if !result.Exists() {
		return StepStatus{}, false, nil
	}

	status := gjson.GetBytes(raw, jsonPath(name, "status")).String()
	var jobIDs []string
	for _, v := range gjson.GetBytes(raw, jsonPath(name, "jobids")).Array() {
		jobIDs = append(jobIDs, v.String())
	}
	return StepStatus{Status: status, JobIDs: jobIDs}, true, nil
}

// ReadAllStatuses returns every step's status keyed by name, for `weft
// status`'s full-table render.
func ReadAllStatuses(workspace string) (map[string]StepStatus, error) {
	raw, err := os.ReadFile(statusPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]StepStatus{}, nil
		}
		return nil, errors.Wrapf(err, "reading %s", statusPath(workspace))
	}

	out := make(map[string]StepStatus)
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		var jobIDs []string
		for _, v := range value.Get("jobids").Array() {
			jobIDs = append(jobIDs, v.String())
		}
		out[key.String()] = StepStatus{Status: value.Get("status").String(), JobIDs: jobIDs}
		return true
	})
	return out, nil
}

// jsonPath escapes a step name (which may contain '/' and '.' from
// parameter fan-out, e.g. "run_sim/X1.v1.X2.v2") into a gjson/sjson path
// segment, since both treat '.' as a path separator.
func jsonPath(name, field string) string {
	escaped := ""
	for _, r := range name {
		switch r {
		case '.', '*', '?':
			escaped += "\\" + string(r)
		default:
			escaped += string(r)
		}
	}
	if field == "" {
		return escaped
	}
	return escaped + "." + field
}
