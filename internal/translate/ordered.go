package translate

import (
	"slices"
	"sync"

	"github.com/hearsay-live/hearsay/pkg/types"
)

// SendFunc delivers one translation result downstream. OrderedSender calls
// it with its mutex held, so implementations must not call back into the
// sender.
type SendFunc func(types.TranslationResult)

// OrderedSender re-serializes translation results for one segment.
// Translations finish in whatever order the LLM answers; the sender buffers
// early arrivals and releases results strictly by sentence index, so the
// client always reads a segment top to bottom.
type OrderedSender struct {
	mu      sync.Mutex
	pending map[int]types.TranslationResult
	next    int
	send    SendFunc
}

// NewOrderedSender returns a sender expecting index 0 first.
func NewOrderedSender(send SendFunc) *OrderedSender {
	return &OrderedSender{
		pending: make(map[int]types.TranslationResult),
		send:    send,
	}
}

// OnComplete buffers result and sends every consecutively indexed result
// that is now ready.
func (o *OrderedSender) OnComplete(result types.TranslationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[result.Index] = result
	for {
		r, ok := o.pending[o.next]
		if !ok {
			return
		}
		delete(o.pending, o.next)
		o.next++
		o.send(r)
	}
}

// FlushAll drains everything still buffered in ascending index order, gaps
// included, then clears the buffer. It runs on stop and on segment close: a
// sentence stuck behind a slow sibling must not be lost, even if the sibling
// never finishes. The cursor is left alone, so a straggler completing after
// the flush is still delivered rather than dropped.
func (o *OrderedSender) FlushAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return
	}
	idxs := make([]int, 0, len(o.pending))
	for i := range o.pending {
		idxs = append(idxs, i)
	}
	slices.Sort(idxs)
	for _, i := range idxs {
		o.send(o.pending[i])
	}
	clear(o.pending)
}

// Reset discards buffered results and rewinds the cursor to 0 for the next
// segment.
func (o *OrderedSender) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.pending)
	o.next = 0
}

// HasPending reports whether any result is waiting on a lower index.
func (o *OrderedSender) HasPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending) > 0
}

// PendingCount returns the number of buffered results.
func (o *OrderedSender) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
