// Package taskboard tracks the named agent tasks running during one user
// turn, including DAG-style dependency edges pushed by the gateway. Several
// tasks may run at once; a failed task is terminal for itself but never for
// the turn, so partial failure is an ordinary board state.
package taskboard

import (
	"sync"
	"time"
)

// Status is the lifecycle state of one agent task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one tracked agent task.
type Task struct {
	ID          string
	Agent       string
	Description string
	Status      Status
	Progress    float64
	Detail      string
	Elapsed     time.Duration
	DependsOn   []string
	Retries     int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Board holds the tasks of the current turn, in arrival order.
type Board struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		tasks: make(map[string]*Task),
	}
}

// AddTask registers a task. Adding an id that already exists overwrites the
// entry in place, keeping its display position.
func (b *Board) AddTask(task Task) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if task.Status == "" {
		task.Status = StatusQueued
	}
	if _, exists := b.tasks[task.ID]; !exists {
		b.order = append(b.order, task.ID)
	}
	b.tasks[task.ID] = &task
}

// UpdateTask applies a mutation to the task with the given id. It reports
// whether the task exists; an unknown id is a no-op so late events after a
// board replacement cannot corrupt state.
func (b *Board) UpdateTask(id string, apply func(*Task)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, ok := b.tasks[id]
	if !ok {
		return false
	}
	apply(task)
	return true
}

// SetAllTasks replaces the board wholesale. Used when the gateway pushes a
// pre-computed batch with dependency edges.
func (b *Board) SetAllTasks(tasks []Task) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tasks = make(map[string]*Task, len(tasks))
	b.order = b.order[:0]
	for i := range tasks {
		task := tasks[i]
		if task.Status == "" {
			task.Status = StatusQueued
		}
		b.order = append(b.order, task.ID)
		b.tasks[task.ID] = &task
	}
}

// Task returns a copy of the task with the given id.
func (b *Board) Task(id string) (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, ok := b.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Tasks returns a snapshot of all tasks in arrival order.
func (b *Board) Tasks() []Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.tasks[id])
	}
	return out
}

// AllTerminal reports whether every tracked task has finished, successfully
// or not. An empty board counts as terminal.
func (b *Board) AllTerminal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, task := range b.tasks {
		if !task.Terminal() {
			return false
		}
	}
	return true
}

// ClearCompleted drops tasks the gateway marked complete, keeping failed and
// in-flight entries visible.
func (b *Board) ClearCompleted() {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.order[:0]
	for _, id := range b.order {
		if b.tasks[id].Status == StatusCompleted {
			delete(b.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept
}

// Reset drops every task.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tasks = make(map[string]*Task)
	b.order = nil
}
