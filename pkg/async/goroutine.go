package async

import (
	"context"
	"time"

	"github.com/platinummonkey/pitchdesk/pkg/observability"
)

// SafeGo runs fn in a goroutine with a timeout and panic recovery. Errors
// and panics are logged through the logger carried by parentCtx.
//
// The task inherits parentCtx's cancellation. Work that must outlive a
// request should pass context.WithoutCancel(r.Context()).
//
//	async.SafeGo(context.WithoutCancel(ctx), 10*time.Second, "submission receipt", func(ctx context.Context) error {
//	    return mailer.Send(ctx, msg)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go Run(parentCtx, timeout, taskName, fn)
}

// Run is the synchronous body of SafeGo
func Run(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	log := observability.FromContext(ctx).WithField("task", taskName)
	defer observability.RecoverPanic(log, taskName)

	if err := fn(ctx); err != nil {
		log.WithError(err).Warn("Background task failed")
	}
}

// SafeGoNoError is like SafeGo for functions that don't return errors
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
