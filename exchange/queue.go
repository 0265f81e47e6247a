package exchange

import "container/heap"

// orderEntry wraps an order for heap operations.
type orderEntry struct {
	order *Order
	index int
	isBid bool
}

// priceTimeQueue implements a price-time priority queue.
type priceTimeQueue []*orderEntry

func (q priceTimeQueue) Len() int { return len(q) }

func (q priceTimeQueue) Less(i, j int) bool {
	// bids: higher price first; asks: lower price first; then arrival order
	return higherPriority(q[i], q[j])
}

func higherPriority(a, b *orderEntry) bool {
	if a.order.Price != b.order.Price {
		if a.isBid {
			return a.order.Price > b.order.Price
		}
		return a.order.Price < b.order.Price
	}
	if !a.order.Timestamp.Equal(b.order.Timestamp) {
		return a.order.Timestamp.Before(b.order.Timestamp)
	}
	return a.order.Sequence < b.order.Sequence
}

func (q priceTimeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *priceTimeQueue) Push(x any) {
	entry := x.(*orderEntry)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *priceTimeQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[0 : n-1]
	return entry
}

func (q priceTimeQueue) peek() *orderEntry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *priceTimeQueue) remove(entry *orderEntry) *orderEntry {
	return heap.Remove(q, entry.index).(*orderEntry)
}

// worstIndex finds the lowest priority entry. The heap only orders its root,
// so this is a linear scan.
func (q priceTimeQueue) worstIndex() int {
	worst := -1
	for i := range q {
		if worst < 0 || higherPriority(q[worst], q[i]) {
			worst = i
		}
	}
	return worst
}

// trimDepth drops the lowest priority orders until q holds at most maxDepth
// entries and returns what it removed.
func trimDepth(q *priceTimeQueue, maxDepth int, orderIndex map[string]*orderEntry) []*orderEntry {
	var trimmed []*orderEntry
	for maxDepth > 0 && q.Len() > maxDepth {
		idx := q.worstIndex()
		if idx < 0 {
			break
		}
		entry := heap.Remove(q, idx).(*orderEntry)
		delete(orderIndex, entry.order.ID)
		trimmed = append(trimmed, entry)
	}
	return trimmed
}

// levels aggregates resting quantity per price, best price first.
func (q priceTimeQueue) levels(isBid bool) []Level {
	if len(q) == 0 {
		return nil
	}
	byPrice := make(map[int64]int64, len(q))
	for _, e := range q {
		byPrice[e.order.Price] += e.order.Remaining
	}
	out := make([]Level, 0, len(byPrice))
	for price, qty := range byPrice {
		out = append(out, Level{Price: price, Quantity: qty})
	}
	sortLevels(out, isBid)
	return out
}
