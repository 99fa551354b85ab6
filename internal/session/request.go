package session

// request is one driver command the session waits an answer for.
type request[K comparable] struct {
	key      K
	answered bool
}

// inflight matches driver answers to the request waiting in a registry slot.
//
// The delegate only reports what an answer is for (a characteristic, an ack
// direction), not which command produced it. A command whose operation left
// the registry unanswered (timeout, superseded) still owes the driver's
// answer, so the next answer for its key is consumed as stale instead of
// resolving a newer request for the same key.
type inflight[K comparable] struct {
	current *request[K]
	stale   map[K]int
}

func newInflight[K comparable]() *inflight[K] {
	return &inflight[K]{stale: make(map[K]int)}
}

// begin makes key the request the slot is waiting on.
func (r *inflight[K]) begin(key K) *request[K] {
	req := &request[K]{key: key}
	r.current = req
	return req
}

// settle marks req as needing no answer, e.g. the driver rejected the command.
func (r *inflight[K]) settle(req *request[K]) {
	req.answered = true
	if r.current == req {
		r.current = nil
	}
}

// abandon records that req's answer, if still owed, belongs to nobody.
func (r *inflight[K]) abandon(req *request[K]) {
	if req.answered {
		return
	}
	r.settle(req)
	r.stale[req.key]++
}

// answer reports whether an answer for key belongs to the current request.
func (r *inflight[K]) answer(key K) bool {
	if n := r.stale[key]; n > 0 {
		if n == 1 {
			delete(r.stale, key)
		} else {
			r.stale[key] = n - 1
		}
		return false
	}
	if r.current == nil || r.current.key != key {
		return false
	}
	r.settle(r.current)
	return true
}

// reset forgets every request. Called once the link is gone and no answer
// can arrive any more.
func (r *inflight[K]) reset() {
	r.current = nil
	clear(r.stale)
}
