package wire

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// endTimeLayouts are tried in order. Parsing accepts fractional seconds even
// when a layout does not spell them out.
var endTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// notStartedPrefix opens every "session not started" end time.
const notStartedPrefix = "0001"

// EndTime is the session end announced by the server. Raw keeps the value as
// sent; Time is set only when Raw matched a known layout.
type EndTime struct {
	Raw    string
	Time   time.Time
	parsed bool
}

// NewEndTime wraps a known instant.
func NewEndTime(t time.Time) *EndTime {
	return &EndTime{Time: t, parsed: true}
}

// Parsed reports whether Time holds the decoded value.
func (e *EndTime) Parsed() bool {
	return e.parsed
}

// NotStarted reports whether the value is the year-one sentinel the server
// sends before the session opens.
func (e *EndTime) NotStarted() bool {
	if e.parsed {
		return e.Time.Year() <= 1
	}
	return strings.HasPrefix(strings.TrimSpace(e.Raw), notStartedPrefix)
}

func (e *EndTime) String() string {
	if e.Raw != "" {
		return e.Raw
	}
	return e.Time.Format(time.RFC3339Nano)
}

func (e EndTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON never fails on content: a value in no known layout is kept
// in Raw so the rest of the frame still decodes.
func (e *EndTime) UnmarshalJSON(data []byte) error {
	*e = EndTime{}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		e.Raw = string(data)
		return nil
	}
	e.Raw = s
	s = strings.TrimSpace(s)
	for _, layout := range endTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			e.Time = t
			e.parsed = true
			return nil
		}
	}
	return nil
}
