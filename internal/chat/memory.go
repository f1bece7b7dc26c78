package chat

import "sync"

// Memory is an in-memory Transcript. It backs non-interactive callers such as
// the MCP tools and keeps entries in display order.
type Memory struct {
	mu      sync.Mutex
	limit   int
	next    EntryID
	ids     []EntryID
	entries map[EntryID]Entry
}

// NewMemory returns an empty, unbounded Memory transcript.
func NewMemory() *Memory {
	return NewBoundedMemory(0)
}

// NewBoundedMemory returns an empty Memory that keeps at most limit entries,
// dropping the oldest first. A limit of zero or less means no limit.
func NewBoundedMemory(limit int) *Memory {
	return &Memory{limit: limit, entries: make(map[EntryID]Entry)}
}

func (m *Memory) Append(e Entry) EntryID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.ids = append(m.ids, m.next)
	m.entries[m.next] = e
	if m.limit > 0 && len(m.ids) > m.limit {
		drop := len(m.ids) - m.limit
		for _, id := range m.ids[:drop] {
			delete(m.entries, id)
		}
		m.ids = append(m.ids[:0:0], m.ids[drop:]...)
	}
	return m.next
}

func (m *Memory) Replace(id EntryID, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; ok {
		m.entries[id] = e
	}
}

func (m *Memory) Remove(id EntryID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return
	}
	delete(m.entries, id)
	for i, v := range m.ids {
		if v == id {
			m.ids = append(m.ids[:i], m.ids[i+1:]...)
			break
		}
	}
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.entries = make(map[EntryID]Entry)
}

// Entries returns a snapshot of the transcript in display order.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.entries[id])
	}
	return out
}
