package models

// NotifyResult holds the result of a notification attempt.
type NotifyResult struct {
	MessageSent bool
	Error       error
}
