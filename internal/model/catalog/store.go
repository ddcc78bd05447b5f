package catalog

// Store exposes model lookup for the selection menu.
type Store interface {
	List() []Model
	FindByName(name string) (Model, bool)
	Default() Model
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Model
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied models.
func NewMemoryStore(items []Model) *MemoryStore {
	return &MemoryStore{items: append([]Model(nil), items...)}
}

// List returns the predefined model list.
func (s *MemoryStore) List() []Model {
	return append([]Model(nil), s.items...)
}

// FindByName looks up a model by name.
func (s *MemoryStore) FindByName(name string) (Model, bool) {
	for _, item := range s.items {
		if item.Name == name {
			return item, true
		}
	}
	return Model{}, false
}

// Default returns the first model in the catalog, the fallback when a
// selection is invalid.
func (s *MemoryStore) Default() Model {
	if len(s.items) == 0 {
		return Model{}
	}
	return s.items[0]
}
