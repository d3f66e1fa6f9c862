package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

func storedBatch(t *testing.T, s *Store, count int) *domain.BatchResult {
	t.Helper()

	papers := make([]domain.EnrichedPaper, count)
	for i := range papers {
		papers[i] = domain.EnrichedPaper{
			PaperCandidate: domain.PaperCandidate{
				Title:         fmt.Sprintf("Paper %d", i),
				SourceURL:     fmt.Sprintf("https://example.org/papers/%d", i),
				SourceSnippet: fmt.Sprintf("Snippet %d", i),
			},
			Abstract:       fmt.Sprintf("Abstract %d", i),
			AbstractSource: domain.AbstractSourceScraped,
		}
	}

	batch := domain.NewBatchResult("test query", papers)
	s.Put(batch)
	return batch
}

func TestStore_PutAndGet(t *testing.T) {
	s := NewStore()
	batch := storedBatch(t, s, 3)

	snapshot, ok := s.Get(batch.BatchID)
	require.True(t, ok)

	assert.Equal(t, batch.BatchID, snapshot.BatchID)
	assert.Equal(t, "test query", snapshot.Query)
	assert.Equal(t, 3, snapshot.TotalCount)
	assert.Equal(t, 0, snapshot.SuccessCount)
	require.Len(t, snapshot.Items, 3)
	for i, item := range snapshot.Items {
		assert.Equal(t, fmt.Sprintf("Paper %d", i), item.Title)
		assert.Equal(t, domain.BatchItemStateAbstractReady, item.State)
		assert.Empty(t, item.ImageURLs)
	}
}

func TestStore_GetUnknownBatch(t *testing.T) {
	s := NewStore()

	_, ok := s.Get(uuid.New())
	assert.False(t, ok)

	storedBatch(t, s, 1)
	_, ok = s.Get(uuid.New())
	assert.False(t, ok)
}

func TestStore_RetainsOnlyMostRecentRun(t *testing.T) {
	s := NewStore()
	first := storedBatch(t, s, 2)
	second := storedBatch(t, s, 1)

	_, ok := s.Get(first.BatchID)
	assert.False(t, ok, "replaced run should read as gone")

	snapshot, ok := s.Get(second.BatchID)
	require.True(t, ok)
	assert.Equal(t, 1, snapshot.TotalCount)
}

func TestStore_ItemMutations(t *testing.T) {
	t.Run("mark image pending", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 2)

		require.True(t, s.MarkImagePending(batch.BatchID, 0))

		snapshot, ok := s.Get(batch.BatchID)
		require.True(t, ok)
		assert.Equal(t, domain.BatchItemStateImagePending, snapshot.Items[0].State)
		assert.Equal(t, domain.BatchItemStateAbstractReady, snapshot.Items[1].State)
	})

	t.Run("set item images", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 2)

		urls := []string{"https://cdn.example.org/a.png", "https://cdn.example.org/b.png"}
		require.True(t, s.SetItemImages(batch.BatchID, 1, urls))

		snapshot, ok := s.Get(batch.BatchID)
		require.True(t, ok)
		assert.Equal(t, domain.BatchItemStateImageReady, snapshot.Items[1].State)
		assert.Equal(t, urls, snapshot.Items[1].ImageURLs)
		assert.Equal(t, 1, snapshot.SuccessCount)
		assert.Empty(t, snapshot.Items[0].ImageURLs)
	})

	t.Run("set item image failure", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 1)

		require.True(t, s.SetItemImageFailure(batch.BatchID, 0, "provider reported failure"))

		snapshot, ok := s.Get(batch.BatchID)
		require.True(t, ok)
		assert.Equal(t, domain.BatchItemStateImageFailed, snapshot.Items[0].State)
		assert.Equal(t, "provider reported failure", snapshot.Items[0].ImageError)
		assert.Equal(t, 0, snapshot.SuccessCount)
	})

	t.Run("stale batch ID is a no-op", func(t *testing.T) {
		s := NewStore()
		stale := storedBatch(t, s, 1)
		storedBatch(t, s, 1)

		assert.False(t, s.MarkImagePending(stale.BatchID, 0))
		assert.False(t, s.SetItemImages(stale.BatchID, 0, []string{"https://cdn.example.org/a.png"}))
		assert.False(t, s.SetItemImageFailure(stale.BatchID, 0, "late"))
	})

	t.Run("index out of range is a no-op", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 1)

		assert.False(t, s.MarkImagePending(batch.BatchID, 1))
		assert.False(t, s.MarkImagePending(batch.BatchID, -1))
	})
}

func TestStore_SuccessCountNeverExceedsTotal(t *testing.T) {
	s := NewStore()
	batch := storedBatch(t, s, 3)

	for i := 0; i < 3; i++ {
		s.SetItemImages(batch.BatchID, i, []string{"https://cdn.example.org/img.png"})
	}

	snapshot, ok := s.Get(batch.BatchID)
	require.True(t, ok)
	assert.Equal(t, snapshot.TotalCount, snapshot.SuccessCount)
	assert.LessOrEqual(t, snapshot.SuccessCount, snapshot.TotalCount)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	batch := storedBatch(t, s, 2)

	before, ok := s.Get(batch.BatchID)
	require.True(t, ok)

	s.SetItemImages(batch.BatchID, 0, []string{"https://cdn.example.org/late.png"})

	// The earlier snapshot is unaffected by updates that land after it.
	assert.Equal(t, domain.BatchItemStateAbstractReady, before.Items[0].State)
	assert.Empty(t, before.Items[0].ImageURLs)
	assert.Equal(t, 0, before.SuccessCount)

	after, ok := s.Get(batch.BatchID)
	require.True(t, ok)
	assert.Equal(t, domain.BatchItemStateImageReady, after.Items[0].State)
	assert.Equal(t, 1, after.SuccessCount)
}

func TestStore_ConcurrentItemUpdates(t *testing.T) {
	s := NewStore()
	batch := storedBatch(t, s, 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s.MarkImagePending(batch.BatchID, idx)
			if idx%2 == 0 {
				s.SetItemImages(batch.BatchID, idx, []string{fmt.Sprintf("https://cdn.example.org/%d.png", idx)})
			} else {
				s.SetItemImageFailure(batch.BatchID, idx, "failed")
			}
		}(i)
	}
	wg.Wait()

	snapshot, ok := s.Get(batch.BatchID)
	require.True(t, ok)
	assert.Equal(t, 5, snapshot.SuccessCount)
	for i, item := range snapshot.Items {
		if i%2 == 0 {
			assert.Equal(t, domain.BatchItemStateImageReady, item.State)
			assert.NotEmpty(t, item.ImageURLs)
		} else {
			assert.Equal(t, domain.BatchItemStateImageFailed, item.State)
		}
	}
}

func TestStore_Subscribe(t *testing.T) {
	t.Run("delivers transition hints", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 1)

		updates, cancel := s.Subscribe()
		defer cancel()

		s.MarkImagePending(batch.BatchID, 0)
		s.SetItemImages(batch.BatchID, 0, []string{"https://cdn.example.org/a.png"})

		first := <-updates
		assert.Equal(t, batch.BatchID, first.BatchID)
		assert.Equal(t, 0, first.Index)
		assert.Equal(t, domain.BatchItemStateImagePending, first.State)

		second := <-updates
		assert.Equal(t, domain.BatchItemStateImageReady, second.State)
	})

	t.Run("cancel closes the channel", func(t *testing.T) {
		s := NewStore()

		updates, cancel := s.Subscribe()
		cancel()

		_, open := <-updates
		assert.False(t, open)

		// A second cancel is harmless.
		cancel()
	})

	t.Run("slow subscriber never blocks updates", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 1)

		updates, cancel := s.Subscribe()
		defer cancel()

		// Overflow the subscriber buffer without reading. Every mutation
		// must still apply promptly.
		for i := 0; i < 100; i++ {
			require.True(t, s.MarkImagePending(batch.BatchID, 0))
		}

		buffered := len(updates)
		assert.Less(t, buffered, 100, "slow subscriber misses intermediate hints")
		assert.Greater(t, buffered, 0)
	})

	t.Run("multiple subscribers each receive hints", func(t *testing.T) {
		s := NewStore()
		batch := storedBatch(t, s, 1)

		a, cancelA := s.Subscribe()
		defer cancelA()
		b, cancelB := s.Subscribe()
		defer cancelB()

		s.MarkImagePending(batch.BatchID, 0)

		ua := <-a
		ub := <-b
		assert.Equal(t, ua, ub)
	})
}
