package job

// ItemStatus is the outcome of one lesson within a batch assets job.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// SummaryItem records the outcome for a single lesson of a batch job.
type SummaryItem struct {
	LessonID   string     `json:"lesson_id"`
	LessonType string     `json:"lesson_type,omitempty"`
	Status     ItemStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// Summary aggregates per-lesson outcomes of a batch assets job. It is
// persisted in the job's final metadata; partial success is an expected
// outcome, not an error state.
type Summary struct {
	Total   int           `json:"total"`
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Items   []SummaryItem `json:"items"`
}

// Add appends an item and bumps the matching counter.
func (s *Summary) Add(item SummaryItem) {
	s.Total++
	switch item.Status {
	case ItemSuccess:
		s.Success++
	case ItemFailed:
		s.Failed++
	case ItemSkipped:
		s.Skipped++
	}
	s.Items = append(s.Items, item)
}
