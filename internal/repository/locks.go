package repository

import (
	"context"
	"sync"
)

// listingLocks hands out one mutual-exclusion slot per listing.
// Entries are reference counted and dropped once nobody holds or waits on them.
type listingLocks struct {
	mu    sync.Mutex
	locks map[string]*listingLock
}

type listingLock struct {
	slot chan struct{}
	refs int
}

func newListingLocks() *listingLocks {
	return &listingLocks{locks: make(map[string]*listingLock)}
}

// acquire blocks until the listing's slot is free or ctx is done.
func (l *listingLocks) acquire(ctx context.Context, listingID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[listingID]
	if !ok {
		lk = &listingLock{slot: make(chan struct{}, 1)}
		l.locks[listingID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.slot
				l.unref(listingID, lk)
			})
		}, nil
	case <-ctx.Done():
		l.unref(listingID, lk)
		return nil, ctx.Err()
	}
}

func (l *listingLocks) unref(listingID string, lk *listingLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, listingID)
	}
}

// size reports how many listings currently have holders or waiters.
func (l *listingLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

type heldListingKey struct{ listingID string }

func withHeldListing(ctx context.Context, listingID string) context.Context {
	return context.WithValue(ctx, heldListingKey{listingID: listingID}, true)
}

func heldListing(ctx context.Context, listingID string) bool {
	held, _ := ctx.Value(heldListingKey{listingID: listingID}).(bool)
	return held
}
