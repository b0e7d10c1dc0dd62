package retrieval

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// opencensus (a transitive dependency) starts a worker goroutine in its
	// package init, before any test runs; it is not a leak in this package.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestChunkTextShort(t *testing.T) {
	assert.Nil(t, ChunkText(""))
	assert.Nil(t, ChunkText("   "))
	assert.Nil(t, ChunkText("too short")) // below minimum length

	text := strings.Repeat("a", 100)
	chunks := ChunkText(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("x", 3000)
	chunks := ChunkText(text)
	require.True(t, len(chunks) >= 2)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 1200)
		assert.GreaterOrEqual(t, len(c), 50)
	}

	// Consecutive chunks share the 200-character overlap region.
	full := strings.Repeat("y", 2400)
	chunks = ChunkText(full)
	require.True(t, len(chunks) >= 2)
	first, second := chunks[0], chunks[1]
	assert.Equal(t, first[len(first)-200:], second[:200])
}

func TestChunkTextExactWindows(t *testing.T) {
	text := strings.Repeat("a", 2000)
	want := []string{
		strings.Repeat("a", 1200), // [0, 1200)
		strings.Repeat("a", 1000), // [1000, 2000)
	}
	if diff := cmp.Diff(want, ChunkText(text)); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
}

func TestChunkTextMultibyte(t *testing.T) {
	// 2000 runes of 3-byte characters; byte-offset slicing would cut
	// mid-character at every window boundary.
	text := strings.Repeat("記", 2000)
	chunks := ChunkText(text)
	require.Len(t, chunks, 2)

	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
	}
	assert.Equal(t, 1200, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[1]))
}

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]string
	hits    []Hit
	err     error
	closed  bool
	upserts int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]string)}
}

func (f *fakeIndex) Upsert(ctx context.Context, docID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[docID] = text
	f.upserts++
	return f.err
}

func (f *fakeIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits, f.err
}

func (f *fakeIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeIndex) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func TestRetrieverSearchFiltersByThreshold(t *testing.T) {
	idx := newFakeIndex()
	idx.hits = []Hit{
		{DocID: "a", Content: "user prefers vim", Similarity: 0.91},
		{DocID: "b", Content: "weather was nice", Similarity: 0.29},
		{DocID: "c", Content: "user lives in Berlin", Similarity: 0.45},
	}
	r := NewRetriever(idx, nil)
	defer r.Close()

	out := r.Search(context.Background(), "editor preferences")
	assert.Contains(t, out, "user prefers vim")
	assert.Contains(t, out, "user lives in Berlin")
	assert.NotContains(t, out, "weather was nice")
}

func TestSearchPassagesCapsResults(t *testing.T) {
	idx := newFakeIndex()
	idx.hits = []Hit{
		{DocID: "a", Content: "one", Similarity: 0.9},
		{DocID: "b", Content: "two", Similarity: 0.8},
		{DocID: "c", Content: "three", Similarity: 0.7},
		{DocID: "d", Content: "four", Similarity: 0.6},
	}
	r := NewRetriever(idx, nil)
	defer r.Close()
	ctx := context.Background()

	assert.Len(t, r.SearchPassages(ctx, "q", 3), 3)
	// Out-of-range k falls back to the five-result cap.
	assert.Len(t, r.SearchPassages(ctx, "q", 0), 4)
	assert.Len(t, r.SearchPassages(ctx, "q", 99), 4)
}

func TestRetrieverSearchFailureIsEmpty(t *testing.T) {
	idx := newFakeIndex()
	idx.err = assert.AnError
	r := NewRetriever(idx, nil)
	defer r.Close()

	assert.Empty(t, r.Search(context.Background(), "anything"))
}

func TestRetrieverBackgroundIndexing(t *testing.T) {
	idx := newFakeIndex()
	r := NewRetriever(idx, nil)

	for i := 0; i < 5; i++ {
		r.Enqueue(Document{DocID: "doc", Text: strings.Repeat("z", 100)})
	}

	require.Eventually(t, func() bool { return idx.upsertCount() == 5 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Close())
	assert.True(t, idx.closed)
}

func TestRetrieverCloseDrainsQueue(t *testing.T) {
	idx := newFakeIndex()
	r := NewRetriever(idx, nil)

	for i := 0; i < 10; i++ {
		r.Enqueue(Document{DocID: "doc", Text: strings.Repeat("z", 100)})
	}
	require.NoError(t, r.Close())
	assert.Equal(t, 10, idx.upsertCount())

	// Close is idempotent.
	require.NoError(t, r.Close())
}

func TestSQLiteIndexKeywordFallback(t *testing.T) {
	idx, err := OpenIndex(t.TempDir(), nil, nil)
	require.NoError(t, err)
	defer idx.Close()

	assert.False(t, idx.hasVec)

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "conv-1",
		"The user mentioned they prefer dark roast coffee in the morning before standup."))
	require.NoError(t, idx.Upsert(ctx, "conv-2",
		"Deployment checklist: run migrations, warm the cache, flip the feature flag."))

	hits, err := idx.Search(ctx, "coffee morning", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "conv-1", hits[0].DocID)
	assert.InDelta(t, keywordSimilarity, hits[0].Similarity, 1e-9)

	hits, err = idx.Search(ctx, "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteIndexUpsertReplaces(t *testing.T) {
	idx, err := OpenIndex(t.TempDir(), nil, nil)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "conv-1",
		"Original text about kubernetes cluster upgrades and node pools."))
	require.NoError(t, idx.Upsert(ctx, "conv-1",
		"Replacement text about postgres vacuum settings and bloat."))

	hits, err := idx.Search(ctx, "kubernetes", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "postgres vacuum", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
