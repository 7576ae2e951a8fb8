// Package queue holds the FIFO that decouples event and message delivery from
// the connection engine. A single dispatcher goroutine drains it.
package queue

import (
	"sync"
	"sync/atomic"
)

// Base queue.
type queue struct {
	h, t *Item
	sync.Mutex
}

// Basic is drained in order by one dispatcher.
type Basic struct {
	queue
	trig *sync.Cond
	n    int
}

func (q *Basic) Init() {
	q.trig = sync.NewCond(q)
}

func (q *Basic) Reset() {
	q.Lock()
	for i := q.h; i != nil; {
		next := i.next
		ReturnItem(i)
		i = next
	}
	q.h, q.t, q.n = nil, nil, 0
	q.Unlock()
}

func (q *queue) add(i *Item) {
	if q.h == nil {
		q.h = i
		q.t = i
	} else {
		q.t.next = i
		i.prev = q.t
		q.t = i
	}
}

func (q *Basic) Add(i *Item) {
	q.Lock()
	q.add(i)
	q.n++
	q.NotifyDispatcher()
	q.Unlock()
}

// Len returns the number of undispatched items.
func (q *Basic) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.n
}

// NotifyDispatcher will signal dispatcher to check the queue.
func (q *Basic) NotifyDispatcher() {
	q.trig.Signal()
}

// StartDispatcher will continuously dispatch queue items and remove them.
// It returns when killed is set to 1 and the dispatcher is notified, or when d fails.
// Items are returned to the pool after d.
func (q *Basic) StartDispatcher(d func(*Item) error, killed *int32, wg *sync.WaitGroup) {
	defer func() {
		if wg != nil {
			wg.Done()
		}
	}()
	for {
		q.Lock()
		if killed != nil && atomic.LoadInt32(killed) == 1 {
			q.Unlock()
			return
		}
		if q.h == nil {
			q.trig.Wait()
		}
		if killed != nil && atomic.LoadInt32(killed) == 1 {
			q.Unlock()
			return
		}

		i := q.h
		if i != nil {
			q.h = i.next
			if q.h == nil {
				q.t = nil
			} else {
				i.next = nil // avoid memory leakage
				q.h.prev = nil
			}
			q.n--
		}
		q.Unlock()

		if i != nil {
			err := d(i)
			ReturnItem(i)
			if err != nil {
				return
			}
		}
	}
}
