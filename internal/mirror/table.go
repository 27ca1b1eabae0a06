package mirror

import (
	"strings"
	"sync"

	"github.com/bridgeworks/busmirror/internal/busvalue"
)

// MirrorEntry is one mirrored (service, path) pair: its outbound topic and
// the last value seen for it (spec.md §5 "Mirror Table").
type MirrorEntry struct {
	Service string
	Path    string
	Topic   string
	Value   busvalue.Value
}

// uid returns the Mirror Table's internal key for a (service, path) pair,
// matching the Python original's "service + path" string concatenation.
func uid(service, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return service + path
}

// Table is the Mirror Table: every (service, path) pair mirrored so far,
// keyed for both forward (uid -> entry) and reverse (topic -> uid)
// resolution, needed to answer inbound read/write requests without a scan
// (spec.md §5 "Mirror Table", §9 "Mirror Table / Name Registry split").
type Table struct {
	mu      sync.RWMutex
	entries map[string]MirrorEntry // uid -> entry
	topics  map[string]string      // topic -> uid
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]MirrorEntry),
		topics:  make(map[string]string),
	}
}

// Lookup returns the existing entry for (service, path) if one exists.
func (t *Table) Lookup(service, path string) (MirrorEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[uid(service, path)]
	return e, ok
}

// LookupTopic resolves a topic back to its mirror entry.
func (t *Table) LookupTopic(topic string) (MirrorEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.topics[topic]
	if !ok {
		return MirrorEntry{}, false
	}
	e, ok := t.entries[id]
	return e, ok
}

// Ensure records a (service, path) pair the first time it's seen and
// returns its topic and whether this call created a new entry. Subsequent calls for the same pair are no-ops that
// just return the existing topic (spec.md §4.1 Mirror Table: "created
// lazily on first sight").
func (t *Table) Ensure(service, path, topic string, value busvalue.Value) (entryTopic string, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := uid(service, path)
	if e, ok := t.entries[id]; ok {
		return e.Topic, false
	}
	t.entries[id] = MirrorEntry{Service: service, Path: path, Topic: topic, Value: value}
	t.topics[topic] = id
	return topic, true
}

// Update overwrites the cached value for an existing entry, e.g. on a
// PropertiesChanged signal.
func (t *Table) Update(service, path string, value busvalue.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := uid(service, path)
	if e, ok := t.entries[id]; ok {
		e.Value = value
		t.entries[id] = e
	}
}

// RemoveService deletes every entry belonging to service (owner
// disappearance teardown, spec.md §5 "Lifecycle Controller") and returns the
// topics that were removed, so the caller can tombstone them.
func (t *Table) RemoveService(service string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := service + "/"
	var topics []string
	for id, e := range t.entries {
		if id == service || strings.HasPrefix(id, prefix) {
			topics = append(topics, e.Topic)
			delete(t.entries, id)
			delete(t.topics, e.Topic)
		}
	}
	return topics
}

// Len returns the number of entries currently tracked.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// AllTopics returns every (topic, value) pair currently tracked, in no
// particular order, used to republish everything after a broker reconnect (spec.md §9
// "_publish_all" behaviour, "Connect" inbound event).
func (t *Table) AllTopics() []MirrorEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]MirrorEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// AllTopicNames returns the topic of every entry currently tracked, used by
// Orchestrator.tombstoneAll to unpublish everything on a graceful shutdown (the Go
// equivalent of the original's unused _unpublish_all path).
func (t *Table) AllTopicNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.Topic)
	}
	return out
}
