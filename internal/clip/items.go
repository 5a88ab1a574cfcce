package clip

import "clipsync-server/internal/model"

// ItemStore is the append-only item log for one session. It is not
// safe for concurrent use on its own; the owning Session serializes
// all access.
type ItemStore struct {
	items     []model.Item
	index     map[string]int
	removed   map[string]struct{}
	fileBytes int64
	live      int
}

func NewItemStore() *ItemStore {
	return &ItemStore{
		index:   make(map[string]int),
		removed: make(map[string]struct{}),
	}
}

// Append records an accepted item. Existing entries are never
// overwritten or reordered.
func (s *ItemStore) Append(it model.Item) {
	s.index[it.ID] = len(s.items)
	s.items = append(s.items, it)
	s.live++
	if it.IsFile() {
		s.fileBytes += it.Size
	}
}

func (s *ItemStore) Get(id string) (model.Item, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Item{}, false
	}
	if _, gone := s.removed[id]; gone {
		return model.Item{}, false
	}
	return s.items[i], true
}

// Remove hides the item from snapshots. It fails if the id was never
// present or was already removed; an id never succeeds twice.
func (s *ItemStore) Remove(id string) (model.Item, bool) {
	it, ok := s.Get(id)
	if !ok {
		return model.Item{}, false
	}
	s.removed[id] = struct{}{}
	s.live--
	if it.IsFile() {
		s.fileBytes -= it.Size
	}
	return it, true
}

// Snapshot returns the live items in sequence order. Removed entries
// are simply omitted; clients never see tombstones.
func (s *ItemStore) Snapshot() []model.Item {
	result := make([]model.Item, 0, s.live)
	for _, it := range s.items {
		if _, gone := s.removed[it.ID]; gone {
			continue
		}
		result = append(result, it)
	}
	return result
}

func (s *ItemStore) LiveCount() int {
	return s.live
}

// FileBytes is the cumulative size of live file-kind payloads.
func (s *ItemStore) FileBytes() int64 {
	return s.fileBytes
}
