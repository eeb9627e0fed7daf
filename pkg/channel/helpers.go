package channel

import (
	"context"
	"errors"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
)

// CloseCommunicationObjects closes each object in order. An object whose
// Close fails is aborted so its resources are released regardless. The
// close errors are joined.
func CloseCommunicationObjects(ctx context.Context, objs ...CommunicationObject) error {
	var errs []error
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		if err := obj.Close(ctx); err != nil {
			obj.Abort()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Use opens factory if needed, creates and opens a channel to addr, runs fn
// and then closes the channel and the factory on every path.
func Use(ctx context.Context, factory *Factory, addr *endpoint.Address, fn func(*Channel) error) error {
	if factory.State() == StateCreated {
		if err := factory.Open(ctx); err != nil {
			return errors.Join(err, CloseCommunicationObjects(ctx, factory))
		}
	}
	ch, err := factory.CreateChannel(addr)
	if err != nil {
		return errors.Join(err, CloseCommunicationObjects(ctx, factory))
	}
	if err := ch.Open(ctx); err != nil {
		return errors.Join(err, CloseCommunicationObjects(ctx, ch, factory))
	}

	fnErr := fn(ch)
	return errors.Join(fnErr, CloseCommunicationObjects(ctx, ch, factory))
}
