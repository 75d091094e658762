package procurement

// RequestSubmittedEvent carries the details the notification job needs when
// a new request enters the WAITING queue.
type RequestSubmittedEvent struct {
	ID            int64
	RONumber      string
	CreatorID     int64
	AmountWithVAT string
}
