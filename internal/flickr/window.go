package flickr

import "time"

// PageWindow is the page and upload date range of one search request.
// Restricting uploads to one year keeps the reported page count under the
// API's result ceiling.
type PageWindow struct {
	Page          int
	MinUploadDate time.Time
	MaxUploadDate time.Time
}

// NewPageWindow picks a page uniformly in [1, knownPages] (1 when nothing is
// known) and a one year window ending at now.
func NewPageWindow(now time.Time, knownPages int, intn func(n int) int) PageWindow {
	page := 1
	if knownPages > 1 {
		page = intn(knownPages) + 1
	}
	return PageWindow{
		Page:          page,
		MinUploadDate: now.AddDate(-1, 0, 0),
		MaxUploadDate: now,
	}
}
