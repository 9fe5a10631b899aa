package slots

// Head returns the most recently used slot, or Nil when empty.
func (a *Arena[K, V]) Head() int32 { return a.head }

// Tail returns the least recently used slot, or Nil when empty.
func (a *Arena[K, V]) Tail() int32 { return a.tail }

// Next returns the slot used less recently than i.
func (a *Arena[K, V]) Next(i int32) int32 { return a.next[i] }

// Prev returns the slot used more recently than i.
func (a *Arena[K, V]) Prev(i int32) int32 { return a.prev[i] }

// PushHead links a freshly acquired slot in as the most recently used one.
func (a *Arena[K, V]) PushHead(i int32) {
	a.prev[i] = Nil
	a.next[i] = a.head
	if a.head != Nil {
		a.prev[a.head] = i
	}
	a.head = i
	if a.tail == Nil {
		a.tail = i
	}
}

// Unlink removes slot i from the recency list, repairing head and tail.
func (a *Arena[K, V]) Unlink(i int32) {
	p, n := a.prev[i], a.next[i]
	if p != Nil {
		a.next[p] = n
	} else {
		a.head = n
	}
	if n != Nil {
		a.prev[n] = p
	} else {
		a.tail = p
	}
	a.prev[i] = Nil
	a.next[i] = Nil
}

// MoveToHead marks slot i as the most recently used one.
func (a *Arena[K, V]) MoveToHead(i int32) {
	if i == a.head {
		return
	}
	a.Unlink(i)
	a.PushHead(i)
}
