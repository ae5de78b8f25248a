package cache

import "time"

// StepCache scopes lookups to a single status render pass. It falls through
// to the owning StudyCache on a miss, so an entry set on the parent is
// visible through the child.
type StepCache = Cache

// NewStepCache builds a short-lived cache scoped to one poll of one study.
func NewStepCache(parent StudyCache) StepCache {
	return New(5*time.Second, 1*time.Minute, parent)
}
