package game

// Queue is a FIFO mailbox of player handles feeding a matchmaker.
type Queue struct {
	ch chan *Player
}

const queueCapacity = 1024

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ch: make(chan *Player, queueCapacity)}
}

// Enqueue hands a player to the queue. Ownership moves with it.
func (q *Queue) Enqueue(p *Player) {
	q.ch <- p
}

// TryDequeue pops the oldest waiting player without blocking.
func (q *Queue) TryDequeue() (*Player, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return nil, false
	}
}

// Len returns the number of players currently waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}
