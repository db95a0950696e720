package tx

import "context"

// unitOfWork collects callbacks registered by stores and publishers while a
// RunInTx call is in flight.
type unitOfWork struct {
	undo        []func()
	afterCommit []func()
}

type uowKey struct{}

func withUnitOfWork(ctx context.Context) (context.Context, *unitOfWork) {
	u := &unitOfWork{}
	return context.WithValue(ctx, uowKey{}, u), u
}

func unitFrom(ctx context.Context) (*unitOfWork, bool) {
	u, ok := ctx.Value(uowKey{}).(*unitOfWork)
	return u, ok
}

// OnRollback registers fn to run when the surrounding unit of work fails.
// In-memory stores use it to restore the state they overwrote; outside a
// unit of work it is a no-op. Callbacks run in reverse registration order.
func OnRollback(ctx context.Context, fn func()) {
	if u, ok := unitFrom(ctx); ok {
		u.undo = append(u.undo, fn)
	}
}

// AfterCommit defers fn until the surrounding unit of work commits. Outside
// a unit of work fn runs immediately. Callbacks are dropped on rollback.
func AfterCommit(ctx context.Context, fn func()) {
	if u, ok := unitFrom(ctx); ok {
		u.afterCommit = append(u.afterCommit, fn)
		return
	}
	fn()
}

func (u *unitOfWork) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
}

func (u *unitOfWork) commit() {
	for _, fn := range u.afterCommit {
		fn()
	}
}
