package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// StateVersion is the version written into encoded state.
const StateVersion = 1

// State is the persisted unit: every thread of one user plus the active
// thread pointer. ActiveThreadID is empty iff Threads is empty.
type State struct {
	ActiveThreadID string
	Threads        map[string]Thread
}

type encodedState struct {
	Version        int               `json:"version"`
	ActiveThreadID string            `json:"active_thread_id"`
	Threads        map[string]Thread `json:"threads"`
}

// Encode serializes s to JSON. Timestamps are written in UTC.
func Encode(s State) ([]byte, error) {
	threads := make(map[string]Thread, len(s.Threads))
	for id, t := range s.Threads {
		t = t.clone()
		t.CreatedAt = t.CreatedAt.UTC()
		for i := range t.Messages {
			t.Messages[i].CreatedAt = t.Messages[i].CreatedAt.UTC()
		}
		threads[id] = t
	}
	data, err := json.Marshal(encodedState{
		Version:        StateVersion,
		ActiveThreadID: s.ActiveThreadID,
		Threads:        threads,
	})
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return data, nil
}

// Decode parses state written by Encode and checks its invariants. A
// missing or dangling active thread id is repaired to the earliest-created
// thread; any other inconsistency is ErrCorruptState.
func Decode(data []byte) (State, error) {
	var es encodedState
	if err := json.Unmarshal(data, &es); err != nil {
		return State{}, fmt.Errorf("session: decode: %w: %v", ErrCorruptState, err)
	}
	if es.Version != StateVersion {
		return State{}, fmt.Errorf("session: decode: %w: unsupported version %d", ErrCorruptState, es.Version)
	}

	s := State{ActiveThreadID: es.ActiveThreadID, Threads: make(map[string]Thread, len(es.Threads))}
	for id, t := range es.Threads {
		if err := checkThread(id, t); err != nil {
			return State{}, fmt.Errorf("session: decode: %w: %v", ErrCorruptState, err)
		}
		if t.Messages == nil {
			t.Messages = []Message{}
		}
		s.Threads[id] = t
	}

	if _, ok := s.Threads[s.ActiveThreadID]; !ok {
		s.ActiveThreadID = ""
		if ids := orderedIDs(s.Threads); len(ids) > 0 {
			s.ActiveThreadID = ids[0]
		}
	}
	return s, nil
}

func checkThread(key string, t Thread) error {
	if t.ID != key {
		return fmt.Errorf("thread key %q holds thread %q", key, t.ID)
	}
	var prev time.Time
	for i, m := range t.Messages {
		if m.ThreadID != t.ID {
			return fmt.Errorf("message %q in thread %q claims thread %q", m.ID, t.ID, m.ThreadID)
		}
		if !m.Role.Valid() {
			return fmt.Errorf("message %q has unknown role %q", m.ID, m.Role)
		}
		if m.Seq != i+1 {
			return fmt.Errorf("message %q has seq %d at position %d", m.ID, m.Seq, i+1)
		}
		if m.ID == "" {
			return fmt.Errorf("message at position %d of thread %q has no id", i+1, t.ID)
		}
		if m.CreatedAt.Before(prev) {
			return fmt.Errorf("message %q is older than its predecessor", m.ID)
		}
		prev = m.CreatedAt
	}
	return nil
}

// orderedIDs returns thread ids by CreatedAt ascending, id breaking ties.
func orderedIDs(threads map[string]Thread) []string {
	ids := make([]string, 0, len(threads))
	for id := range threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := threads[ids[i]], threads[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ids
}
