package pool

import "testing"

func queued(id string, prio int) *pendingTask {
	return &pendingTask{task: Task{ID: id, Priority: prio}, state: stateQueued}
}

func popOrder(t *testing.T, q *taskQueue) []string {
	t.Helper()
	var out []string
	for q.len() > 0 {
		out = append(out, q.pop().task.ID)
	}
	return out
}

func TestQueuePriorityOrder(t *testing.T) {
	q := newTaskQueue()
	q.push(queued("low", 1))
	q.push(queued("high", 5))
	q.push(queued("mid", 3))

	want := []string{"high", "mid", "low"}
	got := popOrder(t, q)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestQueueEqualPriorityIsFIFO(t *testing.T) {
	q := newTaskQueue()
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		q.push(queued(id, 5))
	}
	got := popOrder(t, q)
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("pop order = %v, want %v", got, ids)
		}
	}
}

func TestQueueRemovePreservesOrder(t *testing.T) {
	q := newTaskQueue()
	q.push(queued("a", 7))
	q.push(queued("b", 7))
	q.push(queued("c", 7))
	q.push(queued("d", 9))

	if pt := q.remove("b"); pt == nil || pt.task.ID != "b" {
		t.Fatalf("remove(b) = %v", pt)
	}
	if pt := q.remove("nope"); pt != nil {
		t.Fatalf("remove(nope) = %v, want nil", pt)
	}

	want := []string{"d", "a", "c"}
	got := popOrder(t, q)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order after remove = %v, want %v", got, want)
		}
	}
}

func TestQueueSnapshotDoesNotDrain(t *testing.T) {
	q := newTaskQueue()
	q.push(queued("a", 1))
	q.push(queued("b", 9))
	q.push(queued("c", 5))

	snap := q.snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	want := []string{"b", "c", "a"}
	for i := range want {
		if snap[i].ID != want[i] {
			t.Fatalf("snapshot order = %v, want %v", snap, want)
		}
	}
	if q.len() != 3 {
		t.Fatalf("queue len after snapshot = %d, want 3", q.len())
	}
}
