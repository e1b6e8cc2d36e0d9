package forensics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vidforensics/backend/internal/search/web"
	"github.com/vidforensics/backend/internal/videoindex"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testSettings() Settings {
	s := DefaultSettings()
	s.AssetPoll.Sleep = noSleep
	s.AssetPoll.MaxAttempts = 5
	s.IndexPoll.Sleep = noSleep
	s.IndexPoll.MaxAttempts = 5
	s.UploadRetry.Sleep = noSleep
	s.SearchRetry.Sleep = noSleep
	return s
}

// fakeIndex scripts the video service. Status slices are consumed one per
// poll and the last entry repeats.
type fakeIndex struct {
	mu sync.Mutex

	uploadErrs      []error
	assetStatuses   []string
	indexedStatuses []string
	analyze         func(prompt string) (string, error)

	createCalls  int
	uploadCalls  int
	startCalls   int
	analyzeCalls int
	assetPolls   int
	indexedPolls int
}

func (f *fakeIndex) CreateIndex(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	return "idx-1", nil
}

func (f *fakeIndex) UploadAsset(_ context.Context, _ string) (*videoindex.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &videoindex.Asset{ID: "asset-1", RawStatus: "processing"}, nil
}

func (f *fakeIndex) GetAsset(_ context.Context, id string) (*videoindex.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := next(f.assetStatuses, f.assetPolls)
	f.assetPolls++
	return &videoindex.Asset{ID: id, RawStatus: status}, nil
}

func (f *fakeIndex) StartIndexing(_ context.Context, _, _ string) (*videoindex.IndexedAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return &videoindex.IndexedAsset{ID: "video-1", RawStatus: "pending"}, nil
}

func (f *fakeIndex) GetIndexedAsset(_ context.Context, _, id string) (*videoindex.IndexedAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := next(f.indexedStatuses, f.indexedPolls)
	f.indexedPolls++
	return &videoindex.IndexedAsset{ID: id, RawStatus: status}, nil
}

func (f *fakeIndex) Analyze(_ context.Context, _ string, prompt string) (string, error) {
	f.mu.Lock()
	f.analyzeCalls++
	fn := f.analyze
	f.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(prompt)
}

func next(statuses []string, i int) string {
	if len(statuses) == 0 {
		return "ready"
	}
	if i >= len(statuses) {
		return statuses[len(statuses)-1]
	}
	return statuses[i]
}

type fakeReasoner struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func (f *fakeReasoner) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	fn := f.respond
	f.mu.Unlock()
	return fn(prompt)
}

func (f *fakeReasoner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeReasoner) callsContaining(s string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, s) {
			n++
		}
	}
	return n
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]web.SearchResult
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]web.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.results[query], nil
}

func source(url, content string) web.SearchResult {
	return web.SearchResult{Title: "Source", URL: url, Content: content}
}
