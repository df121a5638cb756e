package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/docsync/internal/client/queue"
	"github.com/iudanet/docsync/internal/client/session"
	"github.com/iudanet/docsync/internal/models"
)

// runSync принудительно ставит документы в очередь и разбирает ее
func (c *Cli) runSync(ctx context.Context, ids []string) error {
	c.io.Println("=== Synchronization ===")

	enqueued := 0
	for _, id := range ids {
		sess, err := c.session(ctx, id)
		if err != nil {
			return err
		}
		if err := sess.SyncWithRemote(ctx, c.config.APIEndpoint); err != nil {
			c.io.Printf("%s: %v\n", id, err)
			continue
		}
		enqueued++
	}

	result, err := c.syncService.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.io.Println()
	c.io.Printf("Enqueued:  %d document(s)\n", enqueued+result.Enqueued)
	if result.Skipped > 0 {
		c.io.Printf("Skipped:   %d document(s) in conflict\n", result.Skipped)
	}
	c.printResult(result.Delivery)

	for _, id := range ids {
		if sess, ok := c.sessions.Get(models.DocumentID(id)); ok {
			c.io.Printf("%-20s %s\n", id, sess.Status())
		}
	}
	return nil
}

func (c *Cli) runDrain(ctx context.Context) error {
	result, err := c.queue.Process(ctx)
	if err != nil {
		return fmt.Errorf("drain failed: %w", err)
	}
	c.printResult(result)
	return nil
}

func (c *Cli) printResult(result queue.Result) {
	c.io.Printf("Delivered: %d\n", result.Delivered)
	if result.Superseded > 0 {
		c.io.Printf("Superseded during delivery: %d\n", result.Superseded)
	}
	if result.Failed > 0 {
		c.io.Printf("Failed:    %d (kept in queue)\n", result.Failed)
	}
	c.io.Printf("Remaining: %d\n", result.Remaining)
}

// runRun открывает документы и держит клиент запущенным до отмены ctx
func (c *Cli) runRun(ctx context.Context, ids []string) error {
	for _, id := range ids {
		sess, err := c.session(ctx, id)
		if err != nil {
			return err
		}
		c.watch(sess)
	}

	c.io.Printf("Watching %d document(s). Press Ctrl+C to stop.\n", len(ids))
	return c.syncService.Run(ctx)
}

func (c *Cli) watch(sess *session.Session) {
	id := sess.ID()
	sess.Subscribe(session.EventStatus, func(payload any) {
		c.io.Printf("%s: %s\n", id, payload)
	})
	sess.Subscribe(session.EventConflict, func(payload any) {
		if conflict, ok := payload.(session.Conflict); ok {
			_ = c.printConflict(conflict, id)
		}
	})
	sess.Subscribe(session.EventError, func(payload any) {
		c.io.Printf("%s: error: %v\n", id, payload)
	})
}
