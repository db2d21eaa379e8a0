package coverage

import "time"

// DayLayout is the calendar-day layout used for archive keys and file names.
const DayLayout = "2006-01-02"

// FileInfo is the run metadata stored next to a coverage tree.
type FileInfo struct {
	Application string    `json:"application" yaml:"application" schema:"minLength=1"`
	Type        string    `json:"type"        yaml:"type"`
	Date        time.Time `json:"date"        yaml:"date"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
}

// MetaReport pairs a coverage tree with its run metadata. It is the
// unit the archive stores, one per calendar day.
type MetaReport struct {
	FileInfo FileInfo `json:"fileInfo" yaml:"fileInfo"`
	Coverage Report   `json:"coverage" yaml:"coverage"`
}

// Clone returns a deep copy of the meta report.
func (m MetaReport) Clone() MetaReport {
	return MetaReport{
		FileInfo: m.FileInfo,
		Coverage: m.Coverage.Clone(),
	}
}

// DayKey returns the YYYY-MM-DD key of t in loc. A nil loc means time.Local.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	return t.In(loc).Format(DayLayout)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}

// ParseDay parses a YYYY-MM-DD key as midnight in loc.
func ParseDay(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	return time.ParseInLocation(DayLayout, key, loc)
}
