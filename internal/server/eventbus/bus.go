package eventbus

import "context"

// Bus is a thin abstraction over the internal event distribution mechanism.
// Delivery is best-effort; the durable run log is the authoritative record.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, ch chan<- any) (unsubscribe func(), err error)
}

// RunTopic names the per-run live feed topic.
func RunTopic(runID string) string {
	return "runstore.run." + runID
}
