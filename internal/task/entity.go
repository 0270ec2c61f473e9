package task

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority maps s case-insensitively onto a Priority. Anything
// unrecognised becomes PriorityMedium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

type Task struct {
	ID                 int64     `yaml:"id" json:"id"`
	Subject            string    `yaml:"subject" json:"subject"`
	TaskType           string    `yaml:"task_type" json:"task_type"`
	DescriptionSnippet string    `yaml:"description_snippet" json:"description_snippet"`
	Deadline           time.Time `yaml:"deadline" json:"deadline"`
	Priority           Priority  `yaml:"priority" json:"priority"`
	LengthDescriptor   string    `yaml:"length_descriptor" json:"length_descriptor"`
	Completed          bool      `yaml:"completed" json:"completed"`
	CreatedAt          time.Time `yaml:"created_at" json:"created_at"`
}

// DefaultDeadline is used when no deadline could be determined for a task.
func DefaultDeadline(now time.Time) time.Time {
	return now.Add(7 * 24 * time.Hour)
}
