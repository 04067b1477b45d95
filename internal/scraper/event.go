package scraper

import "time"

// EventType discriminates progress events on the crawl stream.
type EventType string

const (
	// EventProgress reports one finished results page.
	EventProgress EventType = "progress"
	// EventComplete is the success terminal event.
	EventComplete EventType = "complete"
	// EventError is the failure terminal event.
	EventError EventType = "error"
)

// Event is one element of a crawl's progress stream. A stream is zero or
// more EventProgress entries followed by exactly one terminal entry
// (EventComplete or EventError); nothing follows a terminal entry.
type Event struct {
	Type EventType `json:"type"`

	// Page and CarsFound describe one results page (EventProgress only).
	Page      int `json:"page,omitempty"`
	CarsFound int `json:"cars_found,omitempty"`
	// TotalCars is the running count of unique listings so far.
	TotalCars int `json:"total_cars,omitempty"`
	// Records carries the new listings from this page (EventProgress only).
	Records []Record `json:"cars,omitempty"`

	// TotalPages is the final page count (EventComplete only).
	TotalPages int `json:"total_pages,omitempty"`

	// Error is the failure description (EventError only).
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
