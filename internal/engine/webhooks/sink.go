package webhooks

// Sink receives validated, non-duplicate events. It is called at most once per
// accepted event, off the request goroutine.
type Sink interface {
	OnValidatedEvent(eventType, subjectID string)
}

type SinkFunc func(eventType, subjectID string)

func (f SinkFunc) OnValidatedEvent(eventType, subjectID string) { f(eventType, subjectID) }

// Notification is what a ChannelSink delivers to its consumer.
type Notification struct {
	EventType string `json:"eventType"`
	SubjectID string `json:"subjectId"`
}

// ChannelSink hands events to a consumer over a buffered channel. When the
// consumer falls behind the event is dropped and counted instead of blocking.
type ChannelSink struct {
	ch chan Notification
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Notification, buffer)}
}

func (s *ChannelSink) OnValidatedEvent(eventType, subjectID string) {
	select {
	case s.ch <- Notification{EventType: eventType, SubjectID: subjectID}:
	default:
		sinkDropped.Inc()
	}
}

func (s *ChannelSink) Notifications() <-chan Notification {
	return s.ch
}
