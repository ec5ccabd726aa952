package display

// DiffQueue tracks which display lines changed since they were last
// sent. Line indices are 1-based, matching the line numbers on the wire.
type DiffQueue struct {
	prev    *Frame
	queue   []int
	queued  [LineCount + 1]bool
	drained bool
}

// NewDiffQueue returns an empty queue. The first Ingest repaints
// every line.
func NewDiffQueue() *DiffQueue {
	return &DiffQueue{}
}

func (q *DiffQueue) push(idx int) {
	if q.queued[idx] {
		return
	}
	q.queued[idx] = true
	q.queue = append(q.queue, idx)
}

// Ingest compares f with the previously ingested frame and queues the
// index of every line whose text, color or attribute changed.
func (q *DiffQueue) Ingest(f Frame) {
	for i := 0; i < LineCount; i++ {
		if q.prev != nil && sameContent(q.prev.Lines[i], f.Lines[i]) {
			continue
		}
		q.push(i + 1)
	}
	q.prev = &f
}

func sameContent(a, b LineRender) bool {
	return a.Text == b.Text && a.Color == b.Color && a.Attr == b.Attr
}

// PendingCount returns the number of queued lines.
func (q *DiffQueue) PendingCount() int {
	return len(q.queue)
}

// HasMore reports whether any line is waiting to be sent.
func (q *DiffQueue) HasMore() bool {
	return len(q.queue) > 0
}

// FirstPaintDone reports whether the queue has been fully drained at
// least once.
func (q *DiffQueue) FirstPaintDone() bool {
	return q.drained
}

// PlannedRecordCount returns how many records the next RTS should ask
// for. Until the queue has been emptied once the full cap is used so
// the first paint goes out in bulk; afterwards diffs go one line at a
// time.
func (q *DiffQueue) PlannedRecordCount(limit int) int {
	pending := len(q.queue)
	if pending == 0 {
		return 0
	}
	if q.drained {
		return 1
	}
	return max(1, min(pending, limit))
}

// PrepareBatch pops up to n lines and returns them as records built
// from the latest frame.
func (q *DiffQueue) PrepareBatch(n int) []TextRecord {
	if q.prev == nil || n <= 0 {
		return nil
	}
	n = min(n, len(q.queue))
	out := make([]TextRecord, 0, n)
	for _, idx := range q.queue[:n] {
		q.queued[idx] = false
		lr := q.prev.Lines[idx-1]
		out = append(out, NewTextRecord(lr.Text, lr.Color, idx, lr.Column, lr.Attr))
	}
	q.queue = q.queue[n:]
	if len(q.queue) == 0 {
		q.drained = true
	}
	return out
}

// Requeue puts the lines of an abandoned batch back at the head of
// the queue. Lines already queued again keep their position. The
// latest frame content is used when they are next prepared.
func (q *DiffQueue) Requeue(recs []TextRecord) {
	head := make([]int, 0, len(recs))
	for _, r := range recs {
		if r.Line < 1 || r.Line > LineCount || q.queued[r.Line] {
			continue
		}
		q.queued[r.Line] = true
		head = append(head, r.Line)
	}
	q.queue = append(head, q.queue...)
}
