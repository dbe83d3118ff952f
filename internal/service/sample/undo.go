package sample

import (
	"context"

	"log/slog"
)

// undoStack collects compensating actions for a multi-step operation.
// Each completed step registers its undo; when a later step fails the
// stack runs in reverse order before the error is returned.
type undoStack struct {
	actions []func(context.Context) error
	names   []string
}

func (u *undoStack) add(name string, fn func(context.Context) error) {
	u.actions = append(u.actions, fn)
	u.names = append(u.names, name)
}

func (u *undoStack) rollback(ctx context.Context, logger *slog.Logger) {
	for i := len(u.actions) - 1; i >= 0; i-- {
		if err := u.actions[i](ctx); err != nil {
			logger.Warn("compensating action failed", "step", u.names[i], "error", err)
		}
	}
}
