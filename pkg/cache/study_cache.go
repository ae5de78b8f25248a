package cache

import "time"

// StudyCache holds per-study lookups for one study workspace. The status
// renderer builds a new one for each read, so entries are not shared
// between separate `weft status`/`weft monitor` polls.
type StudyCache = Cache

// NewStudyCache builds the top-level cache for one study workspace. Entries
// expire quickly since StepRecord status on disk changes while a study runs.
func NewStudyCache() StudyCache {
	return New(30*time.Second, 10*time.Second, nil)
}
