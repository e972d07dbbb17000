// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package waiter provides the implementation of a wait queue, where waiters can
// sleep on a token and be woken when another goroutine signals that token.
//
// The caller holds a lock protecting the condition it waits for. Waiters are
// expected to use a pattern similar to this:
//
//	mu.Lock()
//	defer mu.Unlock()
//	for !o.done() {
//		q.Sleep(o, &mu)
//	}
//
// Another goroutine makes the condition true under the same lock and then
// wakes the waiters:
//
//	mu.Lock()
//	o.finish()
//	q.Wakeup(o)
//	mu.Unlock()
//
// Sleep registers the waiter before releasing the lock, so a Wakeup issued
// after the condition was checked is never lost.
package waiter

import (
	"sync"

	"gvisor.dev/idedisk/pkg/ilist"
)

// EntryCallback provides a notify callback.
type EntryCallback interface {
	// Callback is the function to be called when the waiter entry is
	// notified. It is responsible for doing whatever is needed to wake up
	// the waiter.
	//
	// The callback is supposed to perform minimal work, and cannot call
	// any method on the queue itself because it will be locked while the
	// callback is running.
	Callback(e *Entry)
}

// Entry represents a waiter that can be added to a wait queue. It can only be
// in one queue at a time, and is added "intrusively" to the queue with no
// extra memory allocations.
type Entry struct {
	// Context stores any state the waiter may wish to store in the entry
	// itself, which may be used at wake up time.
	Context any

	Callback EntryCallback

	// The following fields are protected by the queue lock.
	token any
	ilist.Entry[*Entry]
}

type channelCallback struct{}

// Callback implements EntryCallback.Callback.
func (*channelCallback) Callback(e *Entry) {
	ch := e.Context.(chan struct{})
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NewChannelEntry initializes a new Entry that does a non-blocking write to a
// struct{} channel when the callback is called. It returns the new Entry
// instance and the channel being used.
//
// If a channel isn't specified (i.e., if "c" is nil), then NewChannelEntry
// allocates a new channel.
func NewChannelEntry(c chan struct{}) (Entry, chan struct{}) {
	if c == nil {
		c = make(chan struct{}, 1)
	}

	return Entry{Context: c, Callback: &channelCallback{}}, c
}

// Queue represents the wait queue where waiters can be added and
// notifiers can notify them when events happen.
//
// The zero value for waiter.Queue is an empty queue ready for use.
type Queue struct {
	mu   sync.Mutex
	list ilist.List[*Entry]
}

// EventRegister adds a waiter to the wait queue; the waiter will be notified
// when token is woken.
func (q *Queue) EventRegister(e *Entry, token any) {
	q.mu.Lock()
	e.token = token
	q.list.PushBack(e)
	q.mu.Unlock()
}

// EventUnregister removes the given waiter entry from the wait queue.
func (q *Queue) EventUnregister(e *Entry) {
	q.mu.Lock()
	q.list.Remove(e)
	q.mu.Unlock()
}

// Wakeup notifies all waiters registered on token. Waiters on other tokens
// are left alone.
func (q *Queue) Wakeup(token any) {
	q.mu.Lock()
	for e := q.list.Front(); e != nil; e = e.Next() {
		if e.token == token {
			e.Callback.Callback(e)
		}
	}
	q.mu.Unlock()
}

// Sleep atomically releases l and waits for a Wakeup on token, then
// reacquires l before returning. l must be held by the caller.
//
// Wakeups may be spurious from the caller's point of view: the condition must
// be rechecked after Sleep returns.
func (q *Queue) Sleep(token any, l sync.Locker) {
	e, ch := NewChannelEntry(nil)
	q.EventRegister(&e, token)
	l.Unlock()
	<-ch
	q.EventUnregister(&e)
	l.Lock()
}

// Waiters returns the number of entries registered on token.
func (q *Queue) Waiters(token any) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for e := q.list.Front(); e != nil; e = e.Next() {
		if e.token == token {
			n++
		}
	}
	return n
}

// IsEmpty returns if the wait queue is empty or not.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.list.Empty()
}
