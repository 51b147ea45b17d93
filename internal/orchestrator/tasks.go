// File: internal/orchestrator/tasks.go
package orchestrator

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// LoadTasks reads a task file: a JSON array of {"url": "...", "task": "..."}
// objects, one per session.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tasks []Task
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}

	for i, t := range tasks {
		if strings.TrimSpace(t.URL) == "" {
			return nil, fmt.Errorf("task %d in %s has no url", i, path)
		}
		if strings.TrimSpace(t.Task) == "" {
			return nil, fmt.Errorf("task %d in %s has no task", i, path)
		}
	}
	return tasks, nil
}
