package wsclient

import "sync"

// eventQueue runs queued callbacks one at a time in FIFO order. A drain
// goroutine is started on demand and exits once the queue is empty, so an
// idle client holds no goroutine.
type eventQueue struct {
	lock     sync.Mutex
	ring     []func()
	first    int
	length   int
	draining bool
	idle     *sync.Cond
}

func newEventQueue(initialSize int) *eventQueue {
	if initialSize <= 0 {
		initialSize = 16
	}
	queue := &eventQueue{ring: make([]func(), initialSize)}
	queue.idle = sync.NewCond(&queue.lock)
	return queue
}

func (queue *eventQueue) push(task func()) {
	queue.lock.Lock()
	if queue.length == len(queue.ring) {
		queue.resize()
	}
	queue.ring[(queue.first+queue.length)%len(queue.ring)] = task
	queue.length++
	if queue.draining {
		queue.lock.Unlock()
		return
	}
	queue.draining = true
	queue.lock.Unlock()
	go queue.drain()
}

func (queue *eventQueue) resize() {
	next := make([]func(), 2*len(queue.ring))
	for index := 0; index < queue.length; index++ {
		next[index] = queue.ring[(queue.first+index)%len(queue.ring)]
	}
	queue.ring = next
	queue.first = 0
}

func (queue *eventQueue) pop() (func(), bool) {
	queue.lock.Lock()
	defer queue.lock.Unlock()
	if queue.length == 0 {
		queue.draining = false
		queue.idle.Broadcast()
		return nil, false
	}
	task := queue.ring[queue.first]
	queue.ring[queue.first] = nil
	queue.first = (queue.first + 1) % len(queue.ring)
	queue.length--
	return task, true
}

func (queue *eventQueue) drain() {
	for {
		task, ok := queue.pop()
		if !ok {
			return
		}
		task()
	}
}

// wait blocks until every queued task has run. It must not be called from a
// queued task.
func (queue *eventQueue) wait() {
	queue.lock.Lock()
	for queue.draining {
		queue.idle.Wait()
	}
	queue.lock.Unlock()
}
