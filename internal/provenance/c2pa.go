// Package provenance reads embedded C2PA manifests through c2patool.
package provenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("c2patool not available")

const (
	StatusNoManifest = "No C2PA Manifest Found"

	actionCreated       = "c2pa.created"
	generatedSourceType = "trainedAlgorithmicMedia"
)

// markers c2patool and the C2PA SDKs use when a file carries no manifest.
var absenceMarkers = []string{
	"manifestnotfound",
	"no jumbf data",
	"no claim found",
	"no manifest",
}

type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Reader struct {
	path     string
	timeout  time.Duration
	run      Runner
	lookPath func(string) (string, error)
}

type Option func(*Reader)

func WithRunner(r Runner) Option {
	return func(rd *Reader) {
		rd.run = r
		rd.lookPath = func(name string) (string, error) { return name, nil }
	}
}

func New(path string, opts ...Option) *Reader {
	if path == "" {
		path = "c2patool"
	}
	r := &Reader{path: path, timeout: 30 * time.Second, run: execRunner, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Available() bool {
	_, err := r.lookPath(r.path)
	return err == nil
}

// Manifest is the outcome of reading a file's provenance data. Absence of a
// manifest is a normal result with Present false.
type Manifest struct {
	Present           bool                   `json:"present"`
	AIGenerated       bool                   `json:"ai_generated"`
	DigitalSourceType string                 `json:"digital_source_type,omitempty"`
	Data              map[string]interface{} `json:"data"`
}

func (r *Reader) Read(ctx context.Context, file string) (*Manifest, error) {
	if !r.Available() {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.run(ctx, r.path, file)
	if err != nil {
		if isAbsence(err.Error()) {
			return &Manifest{Data: map[string]interface{}{"status": StatusNoManifest}}, nil
		}
		return nil, err
	}
	if isAbsence(string(out)) && !strings.Contains(string(out), "{") {
		return &Manifest{Data: map[string]interface{}{"status": StatusNoManifest}}, nil
	}
	return ParseManifestStore(out)
}

type manifestStore struct {
	ActiveManifest string `json:"active_manifest"`
	Manifests      map[string]struct {
		Assertions []struct {
			Label string          `json:"label"`
			Data  json.RawMessage `json:"data"`
		} `json:"assertions"`
	} `json:"manifests"`
}

type actionsAssertion struct {
	Actions []struct {
		Action            string `json:"action"`
		DigitalSourceType string `json:"digitalSourceType"`
	} `json:"actions"`
}

// ParseManifestStore inspects the active manifest's creation action. Media
// whose declared source type is trained algorithmic media is AI generated.
func ParseManifestStore(raw []byte) (*Manifest, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode manifest store: %w", err)
	}
	var store manifestStore
	if err := json.Unmarshal(raw, &store); err != nil {
		return nil, fmt.Errorf("decode manifest store: %w", err)
	}

	m := &Manifest{Present: len(store.Manifests) > 0, Data: data}
	active, ok := store.Manifests[store.ActiveManifest]
	if !ok {
		return m, nil
	}

	for _, a := range active.Assertions {
		if a.Label != "c2pa.actions" && a.Label != "c2pa.actions.v2" {
			continue
		}
		var actions actionsAssertion
		if err := json.Unmarshal(a.Data, &actions); err != nil {
			continue
		}
		for _, act := range actions.Actions {
			if act.Action == actionCreated && act.DigitalSourceType != "" {
				m.DigitalSourceType = act.DigitalSourceType
				break
			}
		}
		if m.DigitalSourceType != "" {
			break
		}
	}

	m.AIGenerated = strings.Contains(m.DigitalSourceType, generatedSourceType)
	return m, nil
}

func isAbsence(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range absenceMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
