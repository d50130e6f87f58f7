package task

type SummarizeReplayTask struct {
	ReplayID string `json:"replay_id"`
}

func (t *SummarizeReplayTask) TaskType() string {
	return TypeSummarizeReplay
}

func (t *SummarizeReplayTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
