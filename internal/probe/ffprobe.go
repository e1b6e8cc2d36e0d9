// Package probe reads container-level metadata with ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// ErrUnavailable is returned when the ffprobe binary cannot be found.
var ErrUnavailable = errors.New("ffprobe not available")

// Runner executes a binary and returns its stdout. Swapped out in tests.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w; stderr=%s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Prober struct {
	path     string
	timeout  time.Duration
	run      Runner
	lookPath func(string) (string, error)
}

type Option func(*Prober)

func WithRunner(r Runner) Option {
	return func(p *Prober) {
		p.run = r
		p.lookPath = func(name string) (string, error) { return name, nil }
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

func New(path string, opts ...Option) *Prober {
	if path == "" {
		path = "ffprobe"
	}
	p := &Prober{path: path, timeout: 30 * time.Second, run: execRunner, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prober) Available() bool {
	_, err := p.lookPath(p.path)
	return err == nil
}

type Format struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type Stream struct {
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	Tags      map[string]string `json:"tags"`
}

// Result is the subset of `ffprobe -show_format -show_streams` output the
// service cares about.
type Result struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

func (p *Prober) Probe(ctx context.Context, file string) (*Result, error) {
	if !p.Available() {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, p.path, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", file)
	if err != nil {
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	return &res, nil
}

// Summary is the flattened view reported to clients and fed into prompts.
type Summary struct {
	Format       string   `json:"format"`
	Duration     string   `json:"duration"`
	CreationTime string   `json:"creation_time"`
	Encoder      string   `json:"encoder"`
	Device       string   `json:"device"`
	CaptureHints []string `json:"capture_hints"`
}

var hintWords = []string{"device", "camera", "recording", "make", "model"}

// Summarize flattens a probe result. A nil result yields the placeholder
// values used when no metadata could be read.
func Summarize(r *Result) Summary {
	s := Summary{
		Duration:     "unknown",
		CreationTime: "missing",
		Encoder:      "unknown",
		Device:       "unknown",
		CaptureHints: []string{},
	}
	if r == nil {
		return s
	}

	s.Format = r.Format.FormatName
	if r.Format.Duration != "" {
		s.Duration = r.Format.Duration
	}
	if v := r.Format.Tags["creation_time"]; v != "" {
		s.CreationTime = v
	}
	if v := r.Format.Tags["encoder"]; v != "" {
		s.Encoder = v
	}
	if v := r.Format.Tags["com.apple.quicktime.make"]; v != "" {
		s.Device = v
	}

	s.CaptureHints = captureHints(r)
	return s
}

// captureHints lists tags that look like they were written by a physical
// capture device. They are informational and never decide a verdict.
func captureHints(r *Result) []string {
	seen := make(map[string]struct{})
	collect := func(tags map[string]string) {
		for k, v := range tags {
			lk := strings.ToLower(k)
			for _, w := range hintWords {
				if strings.Contains(lk, w) || strings.Contains(strings.ToLower(v), w) {
					seen[k+"="+v] = struct{}{}
					break
				}
			}
		}
	}

	collect(r.Format.Tags)
	for _, st := range r.Streams {
		collect(st.Tags)
	}

	hints := make([]string, 0, len(seen))
	for h := range seen {
		hints = append(hints, h)
	}
	sort.Strings(hints)
	return hints
}
