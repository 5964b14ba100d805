package driver

import "time"

// ConsoleMessage is a console API call observed in a page.
type ConsoleMessage struct {
	Type     string
	Text     string
	Location Location
	Args     []string
}

// Location points at the source of a console message. Any field may be empty.
type Location struct {
	URL    string
	Line   int
	Column int
}

// Request is an outgoing request as seen by event listeners and route hooks.
type Request struct {
	Method       string
	URL          string
	Headers      map[string]string
	PostData     string
	ResourceType string
}

// Response is an incoming response. ReadBody is lazy because the body is
// only available once the response finished loading and capturing it is
// optional.
type Response struct {
	Request    Request
	URL        string
	Status     int
	StatusText string
	Headers    map[string]string
	Duration   time.Duration
	ReadBody   func() ([]byte, error)
}

// PageError is an uncaught exception thrown in a page.
type PageError struct {
	Message string
	PageURL string
}
