package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openlot-io/auctionengine/core"
)

// Registry exclusively owns the auction collection. Identifiers are
// monotonic starting at 1 and never reused. Each auction carries its own
// lock so operations against different auctions never contend while
// operations against the same auction linearize.
type Registry struct {
	mu       sync.RWMutex
	nextID   uint64
	auctions map[uint64]*core.Auction
	locks    map[uint64]*sync.Mutex
}

// NewRegistry creates an empty registry; the first auction gets id 1.
func NewRegistry() *Registry {
	return &Registry{
		nextID:   1,
		auctions: make(map[uint64]*core.Auction),
		locks:    make(map[uint64]*sync.Mutex),
	}
}

// peekNextID returns the id the next inserted auction will receive.
// Callers must serialize peek+insert externally (the engine's create lock).
func (r *Registry) peekNextID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// insert stores the auction under the next id and returns it.
func (r *Registry) insert(a *core.Auction) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	a.ID = r.nextID
	r.nextID++
	r.auctions[a.ID] = a
	r.locks[a.ID] = &sync.Mutex{}
	return a.ID
}

// lockFor returns the per-auction mutex. The caller locks it before any
// mutation of that auction's record.
func (r *Registry) lockFor(id uint64) (*sync.Mutex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lock, exists := r.locks[id]
	if !exists {
		return nil, fmt.Errorf("auction %d: %w", id, core.ErrNotFound)
	}
	return lock, nil
}

// get returns the live record. The caller must hold the auction's lock for
// any mutation.
func (r *Registry) get(id uint64) (*core.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.auctions[id]
	if !exists {
		return nil, fmt.Errorf("auction %d: %w", id, core.ErrNotFound)
	}
	return a, nil
}

// Snapshot returns an independent copy of the auction record.
func (r *Registry) Snapshot(id uint64) (*core.Auction, error) {
	lock, err := r.lockFor(id)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	a, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// Count returns the number of auctions ever created.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.auctions)
}

// List returns clones of all auctions ordered by id.
func (r *Registry) List() []*core.Auction {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.auctions))
	for id := range r.auctions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*core.Auction, 0, len(ids))
	for _, id := range ids {
		if a, err := r.Snapshot(id); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// sortedIDs returns all auction ids in ascending order.
func (r *Registry) sortedIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.auctions))
	for id := range r.auctions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// restore installs an auction record verbatim during migration.
func (r *Registry) restore(a *core.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.auctions[a.ID] = a
	r.locks[a.ID] = &sync.Mutex{}
	if a.ID >= r.nextID {
		r.nextID = a.ID + 1
	}
}

// setNextID overrides the id counter during migration.
func (r *Registry) setNextID(next uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID = next
}
