package eventbus

import "context"

// Publisher is anything that can raise an event. *Bus implements it.
type Publisher interface {
	Raise(ctx context.Context, ev Event) error
}

type publisherKey struct{}

// WithPublisher returns a context carrying p. The dispatcher installs its bus
// into every handler context, so handlers raise follow-up events with Raise.
func WithPublisher(ctx context.Context, p Publisher) context.Context {
	return context.WithValue(ctx, publisherKey{}, p)
}

// PublisherFrom returns the publisher stored in ctx, if any.
func PublisherFrom(ctx context.Context) (Publisher, bool) {
	p, ok := ctx.Value(publisherKey{}).(Publisher)
	return p, ok && p != nil
}

// Raise raises ev through the publisher carried by ctx. It fails with
// ErrPublisherNotInitialized when ctx has none.
func Raise(ctx context.Context, ev Event) error {
	p, ok := PublisherFrom(ctx)
	if !ok {
		return ErrPublisherNotInitialized
	}
	return p.Raise(ctx, ev)
}
