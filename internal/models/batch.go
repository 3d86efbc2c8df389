package models

import "sync"

// BatchSummary collects per-item outcomes of one batch job. A failing item
// never aborts the batch; it is recorded here instead. Safe for concurrent use.
type BatchSummary struct {
	Job       string            `json:"job"`
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
	// Halted is set when the batch stopped early, e.g. on a rate limit.
	Halted bool `json:"halted,omitempty"`

	mu sync.Mutex
}

func NewBatchSummary(job string) *BatchSummary {
	return &BatchSummary{Job: job}
}

// Record stores the outcome of the item identified by id.
func (s *BatchSummary) Record(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Processed++
	if err == nil {
		s.Succeeded++
		return
	}
	s.Failed++
	if s.Errors == nil {
		s.Errors = make(map[string]string)
	}
	s.Errors[id] = err.Error()
}
