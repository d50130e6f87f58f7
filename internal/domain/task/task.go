package task

import (
	"encoding/json"
	"fmt"
)

type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

const (
	TypeSummarizeReplay = "SummarizeReplayTask"
	TypeReplayRetry     = "ReplayRetryTask"
)

const streamPrefix = "replaycrumbs:stream:"

// Definition describes how tasks of one type travel through the queue:
// the stream they are written to and the worker pool that drains it.
type Definition struct {
	Type   string
	Stream string
	Pool   string // worker name prefix, also used in logs
	Share  int    // the pool gets max(1, workers/Share) consumers
}

// Workers returns the size of the pool for a total of n workers
func (d Definition) Workers(n int) int {
	return max(1, n/max(1, d.Share))
}

var Definitions = []Definition{
	{Type: TypeSummarizeReplay, Stream: streamPrefix + "summarize", Pool: "main", Share: 1},
	{Type: TypeReplayRetry, Stream: streamPrefix + "retry", Pool: "retry", Share: 2},
}

// Lookup finds the definition of taskType
func Lookup(taskType string) (Definition, error) {
	for _, def := range Definitions {
		if def.Type == taskType {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("unknown task type: %s", taskType)
}

// DefaultTaskValue provides a common implementation for TaskValue
func DefaultTaskValue(task interface{}) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T Task](task []byte) (T, error) {
	var t T
	err := json.Unmarshal(task, &t)
	return t, err
}
