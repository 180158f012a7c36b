package batch

// EventType names a runner notification.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is what a Runner reports while it works. Progress events carry the
// running counts and, after a record, that record's result. Completed carries
// the archive reference and final counts; Error carries a message.
type Event struct {
	Type       EventType `json:"type"`
	Processed  int       `json:"processed"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	ArchiveRef string    `json:"archive_ref,omitempty"`
	Message    string    `json:"message,omitempty"`
	Result     *Result   `json:"result,omitempty"`
}

// Observer receives events synchronously on the runner goroutine. It must not
// block; use ChannelObserver to hand events to another goroutine.
type Observer func(Event)

// ChannelObserver forwards events to ch and drops any event that does not
// fit. Counts are absolute, so a later event supersedes a dropped one.
func ChannelObserver(ch chan<- Event) Observer {
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}

// Observers fans an event out to several observers in order.
func Observers(obs ...Observer) Observer {
	return func(e Event) {
		for _, o := range obs {
			if o != nil {
				o(e)
			}
		}
	}
}
