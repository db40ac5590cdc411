package model

// Notification is an outgoing email rendered from a domain event.
type Notification struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}
