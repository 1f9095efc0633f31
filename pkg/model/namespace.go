package model

import "sync"

// CoreNamespaceURI is the URI at namespace index 0.
const CoreNamespaceURI = "urn:smartbulb:core"

// NamespaceTable maps namespace URIs to indices.
type NamespaceTable struct {
	mu   sync.RWMutex
	uris []string
}

// NewNamespaceTable creates a table with the core namespace at index 0
// and serverURI at index 1.
func NewNamespaceTable(serverURI string) *NamespaceTable {
	return &NamespaceTable{uris: []string{CoreNamespaceURI, serverURI}}
}

// Register adds uri if missing and returns its index.
func (t *NamespaceTable) Register(uri string) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, u := range t.uris {
		if u == uri {
			return uint16(i)
		}
	}
	t.uris = append(t.uris, uri)
	return uint16(len(t.uris) - 1)
}

// Index returns the index of uri.
func (t *NamespaceTable) Index(uri string) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, u := range t.uris {
		if u == uri {
			return uint16(i), true
		}
	}
	return 0, false
}

// URI returns the URI at index idx.
func (t *NamespaceTable) URI(idx uint16) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(idx) >= len(t.uris) {
		return "", false
	}
	return t.uris[idx], true
}

// URIs returns a copy of all registered URIs in index order.
func (t *NamespaceTable) URIs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.uris))
	copy(out, t.uris)
	return out
}
