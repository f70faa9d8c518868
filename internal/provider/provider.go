package provider

import "context"

// Message is the fully assembled notification handed to the transport.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer is the outbound delivery port. The pipeline treats it as a black
// box: any non-nil error is a delivery failure, classified transient or
// permanent via IsTransient.
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}
