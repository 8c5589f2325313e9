package taskboard

import (
	"testing"
	"time"
)

func TestBoard_AddAndUpdate(t *testing.T) {
	b := NewBoard()

	b.AddTask(Task{ID: "t1", Agent: "researcher", Description: "查找判例"})

	task, ok := b.Task("t1")
	if !ok {
		t.Fatal("Task should exist")
	}
	if task.Status != StatusQueued {
		t.Errorf("Expected default status queued, got %s", task.Status)
	}

	updated := b.UpdateTask("t1", func(task *Task) {
		task.Status = StatusRunning
		task.Progress = 40
	})
	if !updated {
		t.Fatal("UpdateTask should find t1")
	}

	task, _ = b.Task("t1")
	if task.Status != StatusRunning || task.Progress != 40 {
		t.Errorf("Unexpected task after update: %+v", task)
	}
}

func TestBoard_UpdateUnknownTaskIsNoop(t *testing.T) {
	b := NewBoard()
	if b.UpdateTask("ghost", func(task *Task) { task.Status = StatusFailed }) {
		t.Error("UpdateTask should report false for unknown id")
	}
}

func TestBoard_DependencyScenario(t *testing.T) {
	// agent_task_start(A), agent_task_start(B, deps=[A]),
	// agent_task_complete(A), agent_task_complete(B).
	b := NewBoard()

	b.AddTask(Task{ID: "A", Agent: "analyst", Status: StatusRunning, StartedAt: time.Now()})
	b.AddTask(Task{ID: "B", Agent: "drafter", Status: StatusQueued, DependsOn: []string{"A"}})

	b.UpdateTask("A", func(task *Task) { task.Status = StatusCompleted })
	b.UpdateTask("B", func(task *Task) { task.Status = StatusRunning })
	b.UpdateTask("B", func(task *Task) { task.Status = StatusCompleted })

	for _, id := range []string{"A", "B"} {
		task, _ := b.Task(id)
		if task.Status != StatusCompleted {
			t.Errorf("Task %s expected completed, got %s", id, task.Status)
		}
	}

	bTask, _ := b.Task("B")
	if len(bTask.DependsOn) != 1 || bTask.DependsOn[0] != "A" {
		t.Errorf("Dependency edge lost: %v", bTask.DependsOn)
	}
	if !b.AllTerminal() {
		t.Error("Board should be terminal")
	}
}

func TestBoard_PartialFailureIsNotTerminalForTurn(t *testing.T) {
	b := NewBoard()
	b.AddTask(Task{ID: "t1", Status: StatusRunning})
	b.AddTask(Task{ID: "t2", Status: StatusRunning})

	b.UpdateTask("t1", func(task *Task) {
		task.Status = StatusFailed
		task.Detail = "检索超时"
	})

	if b.AllTerminal() {
		t.Error("Turn should still be in flight while t2 runs")
	}

	b.UpdateTask("t2", func(task *Task) { task.Status = StatusCompleted })
	if !b.AllTerminal() {
		t.Error("Turn should be terminal after t2 completes")
	}

	failed, _ := b.Task("t1")
	if failed.Status != StatusFailed || failed.Detail != "检索超时" {
		t.Errorf("Failed task must stay visible with its reason: %+v", failed)
	}
}

func TestBoard_SetAllTasksReplacesWholesale(t *testing.T) {
	b := NewBoard()
	b.AddTask(Task{ID: "old", Status: StatusRunning})

	b.SetAllTasks([]Task{
		{ID: "n1", Agent: "planner"},
		{ID: "n2", Agent: "drafter", DependsOn: []string{"n1"}},
	})

	if _, ok := b.Task("old"); ok {
		t.Error("Old task should be gone after batch replace")
	}

	tasks := b.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "n1" || tasks[1].ID != "n2" {
		t.Errorf("Batch order not preserved: %v", tasks)
	}
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != "n1" {
		t.Errorf("Dependency edges lost in batch: %v", tasks[1].DependsOn)
	}
}

func TestBoard_ClearCompleted(t *testing.T) {
	b := NewBoard()
	b.AddTask(Task{ID: "done", Status: StatusCompleted})
	b.AddTask(Task{ID: "failed", Status: StatusFailed})
	b.AddTask(Task{ID: "running", Status: StatusRunning})

	b.ClearCompleted()

	if _, ok := b.Task("done"); ok {
		t.Error("Completed task should be cleared")
	}
	if _, ok := b.Task("failed"); !ok {
		t.Error("Failed task must stay visible")
	}
	if _, ok := b.Task("running"); !ok {
		t.Error("Running task must stay")
	}
}
