package alert

import "github.com/alanyoungcy/tradesentry/internal/domain"

// queueItem wraps an alert with its enqueue sequence number so that alerts of
// equal priority dispatch in enqueue order.
type queueItem struct {
	alert domain.Alert
	seq   uint64
}

// alertQueue is a max-priority heap over pending alerts implementing
// container/heap.Interface.
type alertQueue []queueItem

func (q alertQueue) Len() int { return len(q) }

func (q alertQueue) Less(i, j int) bool {
	if q[i].alert.Priority != q[j].alert.Priority {
		return q[i].alert.Priority > q[j].alert.Priority
	}
	return q[i].seq < q[j].seq // FIFO tie-break
}

func (q alertQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *alertQueue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *alertQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{}
	*q = old[:n-1]
	return item
}
