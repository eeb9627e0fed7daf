package channel

import (
	"context"
	"errors"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// errAborted is the cancellation cause installed by Abort.
var errAborted = errors.New("channel aborted")

// classify maps an error from a layer into the fault taxonomy using the
// state of ctx. Errors that already carry a kind keep it, unless ctx
// reports that Abort or a deadline interrupted the operation.
func classify(op string, ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), errAborted) {
		return fault.Wrapf(fault.KindAborted, op, err, "aborted")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		if fault.KindOf(err) == fault.KindTimedOut {
			return err
		}
		return fault.Wrapf(fault.KindTimedOut, op, err, "timed out")
	}
	if errors.Is(err, context.Canceled) && fault.KindOf(err) == fault.KindUnknown {
		return fault.Wrapf(fault.KindAborted, op, err, "canceled")
	}
	if fault.KindOf(err) != fault.KindUnknown {
		return err
	}
	return fault.Wrap(fault.KindCommunication, op, err)
}
