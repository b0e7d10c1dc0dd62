package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	maxResults          = 5
	similarityThreshold = 0.3
	queueCapacity       = 256
	indexTimeout        = 30 * time.Second
)

// Document is a unit of text queued for background indexing.
type Document struct {
	DocID string
	Text  string
}

// Retriever answers semantic queries over the index and feeds it new
// documents through a bounded background queue, so indexing latency never
// blocks a conversation turn.
type Retriever struct {
	index  VectorIndex
	logger *zap.Logger

	queue chan Document
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewRetriever starts the background indexing worker.
func NewRetriever(index VectorIndex, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{
		index:  index,
		logger: logger,
		queue:  make(chan Document, queueCapacity),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Enqueue submits a document for indexing without blocking. When the queue
// is full the document is dropped; recall is best-effort and a dropped
// document resurfaces the next time its conversation is updated.
func (r *Retriever) Enqueue(doc Document) {
	select {
	case r.queue <- doc:
	default:
		r.logger.Warn("indexing queue full, dropping document", zap.String("doc_id", doc.DocID))
	}
}

func (r *Retriever) worker() {
	defer r.wg.Done()
	for {
		select {
		case doc := <-r.queue:
			r.indexOne(doc)
		case <-r.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case doc := <-r.queue:
					r.indexOne(doc)
				default:
					return
				}
			}
		}
	}
}

func (r *Retriever) indexOne(doc Document) {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	if err := r.index.Upsert(ctx, doc.DocID, doc.Text); err != nil {
		r.logger.Warn("failed to index document", zap.String("doc_id", doc.DocID), zap.Error(err))
		return
	}
	r.logger.Debug("document indexed", zap.String("doc_id", doc.DocID))
}

// SearchPassages returns up to k relevant memory passages, best first, each
// prefixed with its similarity score. k is clamped to at most maxResults.
// Failures come back as an empty slice: recall is an enhancement, never a
// prerequisite for answering.
func (r *Retriever) SearchPassages(ctx context.Context, query string, k int) []string {
	if k <= 0 || k > maxResults {
		k = maxResults
	}
	hits, err := r.index.Search(ctx, query, k)
	if err != nil {
		r.logger.Warn("retrieval failed", zap.Error(err))
		return nil
	}

	var passages []string
	for _, h := range hits {
		if h.Similarity < similarityThreshold {
			continue
		}
		passages = append(passages, fmt.Sprintf("[%.2f] %s", h.Similarity, h.Content))
	}
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages
}

// Search returns relevant memory passages joined for prompt injection.
func (r *Retriever) Search(ctx context.Context, query string) string {
	return strings.Join(r.SearchPassages(ctx, query, maxResults), "\n")
}

// Close stops the worker after draining queued documents, then closes the
// index.
func (r *Retriever) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		err = r.index.Close()
	})
	return err
}
