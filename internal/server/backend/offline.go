package backend

import "context"

const (
	offlineNotice = "OPENAI_API_KEY is not configured. Returning offline stub response."
	offlineResult = "Unable to execute agent without API credentials."
)

// Offline is the fallback backend used when no credentials are configured.
// Runs still succeed; the viewer sees an informative stub instead of a
// silent failure.
type Offline struct{}

var _ Backend = (*Offline)(nil)

// NewOffline creates the stub backend.
func NewOffline() *Offline {
	return &Offline{}
}

func (*Offline) Name() string { return "offline" }

func (*Offline) Invoke(_ context.Context, _ string, sink Sink) (string, error) {
	sink.Token(offlineNotice)
	return offlineResult, nil
}
