package subscription

// Topic is a fixed-enumeration tag users opt into. Anything outside the
// enumeration is rejected at the registry boundary.
type Topic string

const (
	TopicSystem    Topic = "system"
	TopicErrors    Topic = "errors"
	TopicEvents    Topic = "events"
	TopicScheduled Topic = "scheduled"
)

// Topics returns the full enumeration in stable order.
func Topics() []Topic {
	return []Topic{TopicSystem, TopicErrors, TopicEvents, TopicScheduled}
}

func (t Topic) Valid() bool {
	switch t {
	case TopicSystem, TopicErrors, TopicEvents, TopicScheduled:
		return true
	}
	return false
}

func (t Topic) String() string { return string(t) }
