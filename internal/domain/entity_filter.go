package domain

// FilterState is the tri-state preference for a content filter.
type FilterState string

const (
	FilterOn     FilterState = "on"
	FilterOff    FilterState = "off"
	FilterEither FilterState = "either"
)

// FilterSetting is one user's (or the site's) preference for a content filter.
// Value is only consulted for non-boolean filters in the on state.
type FilterSetting struct {
	State FilterState `json:"state"`
	Value any         `json:"value,omitempty"`
}

// Preferences maps content filter parameter names to settings.
type Preferences map[string]FilterSetting
