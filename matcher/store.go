package matcher

import (
	"fmt"
	"io"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/fxamacker/cbor/v2"
	"github.com/oklog/ulid/v2"

	"github.com/high-horse/fingerprint-server/feature"
)

// Template is one enrolled sample. Never mutated after creation. IDs are
// ULIDs, so they sort by enrollment time.
type Template struct {
	ID       string
	Identity string
	Features feature.Vector
}

// Store maps identities to their templates. Identities iterate in first
// enrollment order and templates in append order. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	identities *linkedhashmap.Map // string -> []Template
	size       int
}

func NewStore() *Store {
	return &Store{identities: linkedhashmap.New()}
}

// Add appends a template for identity, creating the identity if needed.
func (s *Store) Add(identity string, features feature.Vector) Template {
	return s.add(ulid.Make().String(), identity, features)
}

func (s *Store) add(id, identity string, features feature.Vector) Template {
	t := Template{ID: id, Identity: identity, Features: append(feature.Vector{}, features...)}

	s.mu.Lock()
	defer s.mu.Unlock()
	var list []Template
	if v, ok := s.identities.Get(identity); ok {
		list = v.([]Template)
	}
	s.identities.Put(identity, append(list, t))
	s.size++
	return t
}

// Remove deletes the template with the given ID. An identity left with no
// templates is dropped, so a later enrollment starts it at the end of the
// iteration order.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.identities.Iterator()
	for it.Next() {
		list := it.Value().([]Template)
		for i, t := range list {
			if t.ID != id {
				continue
			}
			if len(list) == 1 {
				s.identities.Remove(it.Key())
			} else {
				rest := make([]Template, 0, len(list)-1)
				rest = append(append(rest, list[:i]...), list[i+1:]...)
				s.identities.Put(it.Key(), rest)
			}
			s.size--
			return true
		}
	}
	return false
}

// Templates returns identity's templates, or false if it was never enrolled.
// The returned slice must not be modified.
func (s *Store) Templates(identity string) ([]Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.identities.Get(identity)
	if !ok {
		return nil, false
	}
	list := v.([]Template)
	return list[:len(list):len(list)], true
}

// Snapshot returns every template in iteration order. Later enrollments do
// not affect the returned slice.
func (s *Store) Snapshot() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, s.size)
	it := s.identities.Iterator()
	for it.Next() {
		out = append(out, it.Value().([]Template)...)
	}
	return out
}

// IdentityInfo summarizes one enrolled identity.
type IdentityInfo struct {
	Identity  string `json:"identity"`
	Templates int    `json:"templates"`
}

func (s *Store) Identities() []IdentityInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IdentityInfo, 0, s.identities.Size())
	it := s.identities.Iterator()
	for it.Next() {
		out = append(out, IdentityInfo{
			Identity:  it.Key().(string),
			Templates: len(it.Value().([]Template)),
		})
	}
	return out
}

// Len returns the total number of templates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

type snapshotTemplate struct {
	ID       string    `cbor:"1,keyasint,omitempty"`
	Features []float64 `cbor:"2,keyasint"`
}

type snapshotRecord struct {
	Identity  string             `cbor:"1,keyasint"`
	Templates []snapshotTemplate `cbor:"2,keyasint"`
}

// Save writes the store as CBOR, preserving identity and template order.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	records := make([]snapshotRecord, 0, s.identities.Size())
	it := s.identities.Iterator()
	for it.Next() {
		rec := snapshotRecord{Identity: it.Key().(string)}
		for _, t := range it.Value().([]Template) {
			rec.Templates = append(rec.Templates, snapshotTemplate{ID: t.ID, Features: t.Features})
		}
		records = append(records, rec)
	}
	s.mu.RUnlock()

	if err := cbor.NewEncoder(w).Encode(records); err != nil {
		return fmt.Errorf("encode template store: %w", err)
	}
	return nil
}

// Load appends every template from a snapshot written by Save. Templates
// saved without an ID get a fresh one.
func (s *Store) Load(r io.Reader) error {
	var records []snapshotRecord
	if err := cbor.NewDecoder(r).Decode(&records); err != nil {
		return fmt.Errorf("decode template store: %w", err)
	}
	for _, rec := range records {
		for i, t := range rec.Templates {
			if err := feature.Vector(t.Features).Validate(); err != nil {
				return fmt.Errorf("template %d of %q: %w", i, rec.Identity, err)
			}
		}
	}
	for _, rec := range records {
		for _, t := range rec.Templates {
			id := t.ID
			if id == "" {
				id = ulid.Make().String()
			}
			s.add(id, rec.Identity, t.Features)
		}
	}
	return nil
}
