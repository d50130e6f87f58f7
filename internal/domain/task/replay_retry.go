package task

type ReplayRetryTask struct {
	ReplayID   string `json:"replay_id"`
	RetryCount int    `json:"retry_count"` // Number of attempts made so far
	Error      string `json:"error"`       // Error message from the last failure
}

func (t *ReplayRetryTask) TaskType() string {
	return TypeReplayRetry
}

func (t *ReplayRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
