package sync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SourceState is the summary of the last pass over one source.
type SourceState struct {
	LastRun    time.Time `json:"last_run"`
	RunID      string    `json:"run_id"`
	Newest     string    `json:"newest,omitempty"`
	NewestTime time.Time `json:"newest_time,omitzero"`
	Staged     int       `json:"staged"`
	Scanned    int       `json:"scanned"`
	// Watermark is the newest item time covered by a complete pass. Only
	// complete passes advance it.
	Watermark time.Time `json:"watermark,omitzero"`
}

// State persists SourceState per source as JSON. It is informational only:
// iteration always starts again from the newest item.
type State struct {
	path    string
	mu      sync.RWMutex
	sources map[string]SourceState
}

func NewState(path string) *State {
	return &State{
		path:    path,
		sources: make(map[string]SourceState),
	}
}

func (s *State) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No state file yet, that's ok
		}
		return err
	}

	return json.Unmarshal(data, &s.sources)
}

func (s *State) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Ensure directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.sources, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

func (s *State) Get(source string) (SourceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sources[source]
	return st, ok
}

// Update records res as the latest pass. The newest item is only replaced
// when the pass staged something.
func (s *State) Update(res Result, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.sources[res.Source]
	st.LastRun = now
	st.RunID = res.RunID
	st.Staged = res.Staged
	st.Scanned = res.Scanned
	if res.Newest != nil {
		st.Newest = res.Newest.Name
		st.NewestTime = res.Newest.Time
	}
	if res.Complete && res.Latest.After(st.Watermark) {
		st.Watermark = res.Latest
	}
	s.sources[res.Source] = st
}

// Watermark returns the watermark of source, zero when no complete pass has
// been recorded.
func (s *State) Watermark(source string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources[source].Watermark
}
