package schedule

import "time"

// Schedule is a study plan generated for one task. A task may have many;
// the most recent one is current.
type Schedule struct {
	ID          int64     `yaml:"id" json:"id"`
	TaskID      int64     `yaml:"task_id" json:"task_id"`
	Text        string    `yaml:"text" json:"text"`
	GeneratedAt time.Time `yaml:"generated_at" json:"generated_at"`
}
