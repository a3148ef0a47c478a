// Package scheduler holds the in-memory work queues, the tick loop that drains
// them, and the daily trigger that enqueues the full re-scoring pass.
package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkType identifies which computation a work item carries
type WorkType string

const (
	WorkPopularity     WorkType = "popularity"
	WorkFeatured       WorkType = "featured"
	WorkClassification WorkType = "classification"
)

// WorkTypes lists all work types in priority order
var WorkTypes = []WorkType{WorkPopularity, WorkFeatured, WorkClassification}

// IsValidWorkType returns true if the type string is a valid WorkType
func IsValidWorkType(s string) bool {
	switch WorkType(s) {
	case WorkPopularity, WorkFeatured, WorkClassification:
		return true
	default:
		return false
	}
}

// Priority returns the fixed processing priority for a work type.
// Lower value means processed first: popularity=1, featured=2, classification=3.
func (t WorkType) Priority() int {
	switch t {
	case WorkPopularity:
		return 1
	case WorkFeatured:
		return 2
	case WorkClassification:
		return 3
	default:
		return 0
	}
}

// WorkStatus represents the current state of a work item
type WorkStatus string

const (
	StatusPending   WorkStatus = "pending"
	StatusRunning   WorkStatus = "running"
	StatusCompleted WorkStatus = "completed"
	StatusFailed    WorkStatus = "failed"
)

// Result values recorded on completed work items
const (
	ResultScored  = "scored"
	ResultSkipped = "skipped" // item no longer active; not counted as a failure
)

// DefaultMaxAttempts before a work item is marked failed
const DefaultMaxAttempts = 3

// WorkItem is one unit of scheduled scoring or classification work.
//
// A work item belongs to exactly one queue for its entire lifetime: its type
// never changes, it is only mutated in place or removed by a clear.
type WorkItem struct {
	ID          string     `json:"id"`
	ItemID      string     `json:"item_id"`
	ItemLabel   string     `json:"item_label"`
	Type        WorkType   `json:"type"`
	Priority    int        `json:"priority"`
	Status      WorkStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"` // observability only; ordering is priority + insertion order
}

// NewWorkItem creates a pending work item with its type's fixed priority
func NewWorkItem(workType WorkType, itemID, itemLabel string, maxAttempts int) *WorkItem {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &WorkItem{
		ID:          workItemID(workType, itemID),
		ItemID:      itemID,
		ItemLabel:   itemLabel,
		Type:        workType,
		Priority:    workType.Priority(),
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}
}

// Start marks the work item as running
func (w *WorkItem) Start() {
	w.Status = StatusRunning
}

// Complete marks the work item as completed with a result
func (w *WorkItem) Complete(result string) {
	w.Status = StatusCompleted
	w.Result = result
	w.Error = ""
}

// Skip marks the work item as completed with a skipped result.
// A skip does not consume a retry attempt.
func (w *WorkItem) Skip(reason string) {
	w.Status = StatusCompleted
	w.Result = ResultSkipped
	w.Error = reason
}

// RecordFailure increments attempts and either returns the item to pending
// (eligible for retry on a future tick) or marks it failed terminally.
func (w *WorkItem) RecordFailure(err error) {
	w.Attempts++
	w.Error = err.Error()
	if w.Attempts < w.MaxAttempts {
		w.Status = StatusPending
	} else {
		w.Status = StatusFailed
	}
}

// workItemID derives a unique ID from type + item + random suffix.
// Collisions are not a concern; the ID exists for logs and inspection.
func workItemID(workType WorkType, itemID string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return string(workType) + "-" + itemID + "-" + suffix
}
