package roster

// Subscribe returns a channel that receives a signal after every change to the
// roster, and a function that ends the subscription. Signals coalesce: a slow
// reader sees at most one pending signal. The channel is closed when the
// subscription ends or the roster is closed.
func (r *Roster) Subscribe() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{}, 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}

	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
}

// Close ends every subscription and freezes the roster: it stays readable,
// writes are rejected and new subscriptions are closed immediately.
func (r *Roster) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// notifyLocked signals all subscribers without blocking. r.mu must be held.
func (r *Roster) notifyLocked() {
	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
