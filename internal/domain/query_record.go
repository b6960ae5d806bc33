package domain

import "time"

// QueryRecord is a persisted, deduplicated query specification together with
// its computed result ordering.
type QueryRecord struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Model       EntityType `json:"model"`
	ResultIDs   []int64    `json:"result_ids"`
	Truncated   bool       `json:"truncated"`
	AccessCount int64      `json:"access_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Index returns the position of id in the ordering or -1.
func (r QueryRecord) Index(id int64) int {
	for i, v := range r.ResultIDs {
		if v == id {
			return i
		}
	}
	return -1
}
