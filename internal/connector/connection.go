package connector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/request"
)

// Connection executes requests against a source, one transaction per call.
type Connection struct {
	source *Source
}

// SourceName returns the name of the connected source.
func (c *Connection) SourceName() string { return c.source.Name() }

// Execute processes req in a fresh transaction. The transaction is committed
// when req succeeded or is read-only and rolled back otherwise; observers see
// the changes only after a successful commit. The returned error is non-nil
// only when commit or rollback failed; request failures are on req.Err().
func (c *Connection) Execute(ctx context.Context, req request.Request) error {
	logger := c.source.logger
	tx := c.source.repo.Begin()
	proc := NewProcessor(tx, c.source)

	c.process(ctx, proc, req)
	changes := proc.Close()

	logger.DebugContext(ctx, "request processed",
		slog.String("source", c.source.Name()),
		slog.String("tx", tx.ID().String()),
		slog.String("kind", req.Kind()),
		slog.Bool("failed", req.HasError()))

	if !req.HasError() || req.IsReadOnly() {
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			err = apperr.Unexpected("commit", err)
			req.SetError(err)
			logger.ErrorContext(ctx, "commit failed",
				slog.String("tx", tx.ID().String()),
				slog.String("error", err.Error()))
			return err
		}
		c.source.Publish(ctx, changes)
		return nil
	}

	if err := tx.Rollback(); err != nil {
		err = apperr.Unexpected("rollback", err)
		req.SetError(err)
		logger.ErrorContext(ctx, "rollback failed",
			slog.String("tx", tx.ID().String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (c *Connection) process(ctx context.Context, proc *Processor, req request.Request) {
	defer func() {
		if v := recover(); v != nil {
			c.source.logger.ErrorContext(ctx, "request panicked",
				slog.String("kind", req.Kind()),
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())))
			req.SetError(apperr.Unexpected("process "+req.Kind(), fmt.Errorf("panic: %v", v)))
		}
	}()
	proc.Process(ctx, req)
}
