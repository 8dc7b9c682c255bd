package services

import (
	"cmp"
	"delivery-dispatch-service/internal/ports"
	"slices"
	"strings"
	"sync"
	"unicode"
)

const DefaultSuggestionLimit = 5

type menuEntry struct {
	item ports.MenuItem
	seq  int
}

type trieNode struct {
	children    map[rune]*trieNode
	suggestions []*menuEntry
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

// MenuSearchIndex is a prefix trie over the lower-cased words of menu item
// names. Each node keeps the top suggestions ranked by selection frequency.
type MenuSearchIndex struct {
	mu      sync.RWMutex
	root    *trieNode
	entries map[string]*menuEntry
	// Indexed words, for substring fallback.
	words map[string][]*menuEntry
	limit int
	seq   int
}

func NewMenuSearchIndex(limit int) *MenuSearchIndex {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	return &MenuSearchIndex{
		root:    newTrieNode(),
		entries: make(map[string]*menuEntry),
		words:   make(map[string][]*menuEntry),
		limit:   limit,
	}
}

// Insert indexes item under every prefix of every word of its name.
// Re-inserting a known id updates its frequency and re-ranks it.
func (m *MenuSearchIndex) Insert(item ports.MenuItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[item.ID]
	if !ok {
		m.seq++
		e = &menuEntry{item: item, seq: m.seq}
		m.entries[item.ID] = e
	} else {
		e.item.Frequency = item.Frequency
	}
	m.indexLocked(e)
}

// RecordSelection bumps the frequency of an indexed item by one.
func (m *MenuSearchIndex) RecordSelection(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[itemID]
	if !ok {
		return false
	}
	e.item.Frequency++
	m.indexLocked(e)
	return true
}

// Search returns up to limit items for query. An exact prefix match uses
// the trie; otherwise indexed words and names containing query are scanned.
func (m *MenuSearchIndex) Search(query string) []ports.MenuItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []ports.MenuItem{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	node := m.root
	for _, r := range q {
		node = node.children[r]
		if node == nil {
			break
		}
	}
	if node != nil {
		return items(node.suggestions)
	}

	seen := make(map[string]struct{})
	var found []*menuEntry
	add := func(e *menuEntry) {
		if _, dup := seen[e.item.ID]; !dup {
			seen[e.item.ID] = struct{}{}
			found = append(found, e)
		}
	}

	keys := make([]string, 0, len(m.words))
	for w := range m.words {
		keys = append(keys, w)
	}
	slices.Sort(keys)
	for _, w := range keys {
		if strings.Contains(w, q) {
			for _, e := range m.words[w] {
				add(e)
			}
		}
	}
	for _, e := range m.entries {
		if strings.Contains(strings.ToLower(e.item.Name), q) {
			add(e)
		}
	}

	rank(found)
	if len(found) > m.limit {
		found = found[:m.limit]
	}
	return items(found)
}

func (m *MenuSearchIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MenuSearchIndex) indexLocked(e *menuEntry) {
	for _, w := range tokenize(e.item.Name) {
		if !slices.Contains(m.words[w], e) {
			m.words[w] = append(m.words[w], e)
		}

		node := m.root
		for _, r := range w {
			next := node.children[r]
			if next == nil {
				next = newTrieNode()
				node.children[r] = next
			}
			node = next

			if !slices.Contains(node.suggestions, e) {
				node.suggestions = append(node.suggestions, e)
			}
			rank(node.suggestions)
			if len(node.suggestions) > m.limit {
				node.suggestions = node.suggestions[:m.limit]
			}
		}
	}
}

// rank orders entries by descending frequency, then insertion order.
func rank(es []*menuEntry) {
	slices.SortStableFunc(es, func(a, b *menuEntry) int {
		if c := cmp.Compare(b.item.Frequency, a.item.Frequency); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

func items(es []*menuEntry) []ports.MenuItem {
	out := make([]ports.MenuItem, 0, len(es))
	for _, e := range es {
		out = append(out, e.item)
	}
	return out
}

func tokenize(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
