package schedule

import "time"

// ExportTimeLayout is the UTC timestamp layout of exports.
const ExportTimeLayout = "2006-01-02T15:04:05.000Z"

// Export is the JSON snapshot of what is on screen.
type Export struct {
	Settings   Settings `json:"settings"`
	View       View     `json:"view"`
	Date       string   `json:"date"`
	Data       Data     `json:"data"`
	ExportedAt string   `json:"exportedAt"`
}

// NewExport snapshots data. It returns nil when there is nothing loaded.
func NewExport(s Settings, view View, date time.Time, data Data, now time.Time) *Export {
	if data == nil {
		return nil
	}
	switch d := data.(type) {
	case *Day:
		if d == nil {
			return nil
		}
	case *Week:
		if d == nil {
			return nil
		}
	}
	return &Export{
		Settings:   s,
		View:       view,
		Date:       date.UTC().Format(ExportTimeLayout),
		Data:       data,
		ExportedAt: now.UTC().Format(ExportTimeLayout),
	}
}
