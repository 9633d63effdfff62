package lod

const (
	splitQueueName  = "split"
	mergeQueueName  = "merge"
	reloadQueueName = "reload"
	cullQueueName   = "cull"
)

// queue is a bounded multi producer queue of node requests.
type queue struct {
	name string
	ch   chan NodeID
}

func newQueue(name string, size int) *queue {
	return &queue{
		name: name,
		ch:   make(chan NodeID, size),
	}
}

// Push enqueues the given id without blocking. The request is dropped when the
// queue is full.
func (q *queue) Push(id NodeID) bool {
	select {
	case q.ch <- id:
		return true
	default:
		instrumentDroppedRequest(q.name)
		return false
	}
}

func (q *queue) Pop() (NodeID, bool) {
	select {
	case id := <-q.ch:
		return id, true
	default:
		return NodeID{}, false
	}
}

func (q *queue) Len() int {
	return len(q.ch)
}

// Drain applies at most n requests and returns the number applied.
func (q *queue) Drain(n int, apply func(NodeID)) int {
	var count int
	for ; count < n; count++ {
		id, ok := q.Pop()
		if !ok {
			break
		}
		apply(id)
	}
	return count
}
