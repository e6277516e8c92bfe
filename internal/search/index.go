// Package search finds synced objects by name or key.
package search

import (
	"sort"
	"strings"

	keyfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Result is one matched object
type Result struct {
	Object         *domain.Object
	MatchedIndexes []int // Positions in the name (or key) that matched, for highlighting
	Score          int   // Higher is better for names; lower is better for keys
}

// Index implements sahilm/fuzzy.Source over object names
type Index struct {
	objects    []*domain.Object
	lowerNames []string // Pre-computed lowercase names
	byKey      map[string]*domain.Object
	keys       []string
}

// String returns the lowercase name at index i (implements fuzzy.Source)
func (idx *Index) String(i int) string { return idx.lowerNames[i] }

// Len returns the number of indexed objects (implements fuzzy.Source)
func (idx *Index) Len() int { return len(idx.objects) }

// NewIndex indexes objs. Objects without a name are only reachable by key.
func NewIndex(objs []*domain.Object) *Index {
	idx := &Index{byKey: make(map[string]*domain.Object, len(objs))}
	for _, obj := range objs {
		if obj == nil || obj.Key == "" {
			continue
		}
		if _, dup := idx.byKey[obj.Key]; dup {
			continue
		}
		idx.byKey[obj.Key] = obj
		idx.keys = append(idx.keys, obj.Key)
		if obj.Name != "" {
			idx.objects = append(idx.objects, obj)
			idx.lowerNames = append(idx.lowerNames, strings.ToLower(obj.Name))
		}
	}
	return idx
}

// Names returns objects whose name fuzzy-matches query, best first.
// typ restricts results to one object type ("t", "a", "r", "p", ...) when set.
// limit <= 0 returns every match.
func (idx *Index) Names(query, typ string, limit int) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	matches := fuzzy.FindFrom(query, idx)
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		obj := idx.objects[m.Index]
		if typ != "" && obj.Type != typ {
			continue
		}
		results = append(results, Result{Object: obj, MatchedIndexes: m.MatchedIndexes, Score: m.Score})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results
}

// Keys returns objects whose key fuzzy-matches query, closest first
func (idx *Index) Keys(query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	ranks := keyfuzzy.RankFindFold(query, idx.keys)
	sort.Sort(ranks)

	results := make([]Result, 0, len(ranks))
	for _, r := range ranks {
		results = append(results, Result{Object: idx.byKey[r.Target], Score: r.Distance})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results
}

// Get returns the object with exactly key
func (idx *Index) Get(key string) (*domain.Object, bool) {
	obj, ok := idx.byKey[key]
	return obj, ok
}
