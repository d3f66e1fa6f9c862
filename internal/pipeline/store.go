// Package pipeline orchestrates the two-phase enrichment run: a synchronous
// search-and-extract phase whose result is returned to the caller, and a
// detached image generation phase that fills the batch in as jobs finish.
package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// Update is a progress hint delivered to subscribers when an item changes
// state. Subscribers read the current snapshot for full detail; the hint
// only says where to look.
type Update struct {
	BatchID uuid.UUID
	Index   int
	State   domain.BatchItemState
}

// itemCell guards one batch item. Writers to different indices never
// contend: phase 2 runs one task per item, and each task touches only
// its own cell.
type itemCell struct {
	mu   sync.Mutex
	item domain.BatchItem
}

// run is the retained batch: an immutable header plus per-item cells.
type run struct {
	batch domain.BatchResult
	cells []*itemCell
}

// Store retains the most recent enrichment run and fans progress hints out
// to subscribers. Only one run is kept: storing a new batch discards the
// previous one, and reads against a discarded batch ID report not-found.
type Store struct {
	mu      sync.RWMutex
	current *run

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		subs: make(map[int]chan Update),
	}
}

// Put replaces the current run with the given batch. The batch's items are
// copied into per-item cells; later mutations go through the store, never
// through the caller's value.
func (s *Store) Put(batch *domain.BatchResult) {
	cells := make([]*itemCell, len(batch.Items))
	for i, item := range batch.Items {
		cells[i] = &itemCell{item: item}
	}

	header := *batch
	header.Items = nil

	s.mu.Lock()
	s.current = &run{batch: header, cells: cells}
	s.mu.Unlock()
}

// Get returns a snapshot of the identified batch. The snapshot is assembled
// item by item under the per-item locks, so it is internally consistent per
// item and unaffected by updates that land after it is taken. Returns false
// when the ID is not the retained run.
func (s *Store) Get(batchID uuid.UUID) (*domain.BatchResult, bool) {
	s.mu.RLock()
	r := s.current
	s.mu.RUnlock()

	if r == nil || r.batch.BatchID != batchID {
		return nil, false
	}

	snapshot := r.batch
	snapshot.Items = make([]domain.BatchItem, len(r.cells))
	successCount := 0
	for i, cell := range r.cells {
		cell.mu.Lock()
		item := cell.item
		item.ImageURLs = append([]string(nil), cell.item.ImageURLs...)
		cell.mu.Unlock()

		if item.State == domain.BatchItemStateImageReady {
			successCount++
		}
		snapshot.Items[i] = item
	}
	snapshot.SuccessCount = successCount

	return &snapshot, true
}

// MarkImagePending transitions an item to image_pending. Returns false when
// the batch is no longer the retained run or the index is out of range.
func (s *Store) MarkImagePending(batchID uuid.UUID, index int) bool {
	return s.updateItem(batchID, index, func(item *domain.BatchItem) {
		item.State = domain.BatchItemStateImagePending
	})
}

// SetItemImages publishes an item's image URLs and transitions it to
// image_ready. The URLs slice is copied.
func (s *Store) SetItemImages(batchID uuid.UUID, index int, urls []string) bool {
	return s.updateItem(batchID, index, func(item *domain.BatchItem) {
		item.ImageURLs = append([]string(nil), urls...)
		item.State = domain.BatchItemStateImageReady
	})
}

// SetItemImageFailure records why an item's image generation failed and
// transitions it to image_failed. Sibling items are untouched.
func (s *Store) SetItemImageFailure(batchID uuid.UUID, index int, reason string) bool {
	return s.updateItem(batchID, index, func(item *domain.BatchItem) {
		item.ImageError = reason
		item.State = domain.BatchItemStateImageFailed
	})
}

// updateItem applies fn to one item under its cell lock and notifies
// subscribers of the resulting state.
func (s *Store) updateItem(batchID uuid.UUID, index int, fn func(*domain.BatchItem)) bool {
	s.mu.RLock()
	r := s.current
	s.mu.RUnlock()

	if r == nil || r.batch.BatchID != batchID {
		return false
	}
	if index < 0 || index >= len(r.cells) {
		return false
	}

	cell := r.cells[index]
	cell.mu.Lock()
	fn(&cell.item)
	state := cell.item.State
	cell.mu.Unlock()

	s.notify(Update{BatchID: batchID, Index: index, State: state})
	return true
}

// Subscribe registers a progress listener. The returned channel receives
// item-transition hints until the cancel function is called; the channel is
// closed on cancel. Delivery is non-blocking: a subscriber that falls behind
// misses intermediate hints rather than slowing the pipeline down.
func (s *Store) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(update Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
