package scheduler

// deferredQueue holds callbacks keyed by the audio time they are due at.
// Tasks with equal due times run in the order they were added.
type deferredQueue struct {
	tasks []deferredTask
}

type deferredTask struct {
	due float64
	run func()
}

// Add schedules fn to run once the audio clock reaches due.
func (q *deferredQueue) Add(due float64, fn func()) {
	i := len(q.tasks)
	for i > 0 && q.tasks[i-1].due > due {
		i--
	}
	q.tasks = append(q.tasks, deferredTask{})
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = deferredTask{due: due, run: fn}
}

// RunDue runs every task due at or before now and returns how many ran.
// Tasks added while running are not picked up until the next call.
func (q *deferredQueue) RunDue(now float64) int {
	n := 0
	for n < len(q.tasks) && q.tasks[n].due <= now {
		n++
	}
	if n == 0 {
		return 0
	}
	due := make([]deferredTask, n)
	copy(due, q.tasks[:n])
	q.tasks = append(q.tasks[:0], q.tasks[n:]...)
	for _, t := range due {
		t.run()
	}
	return n
}

func (q *deferredQueue) Len() int { return len(q.tasks) }
