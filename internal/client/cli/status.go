package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Sync Status ===")
	c.io.Println()

	c.io.Printf("User:      %s\n", c.config.UserID)
	c.io.Printf("Endpoint:  %s\n", c.config.APIEndpoint)

	if err := c.probe.Check(ctx); err != nil {
		c.io.Printf("Server:    unreachable (%v)\n", err)
	} else {
		c.io.Println("Server:    reachable")
	}

	pending, err := c.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending updates: %w", err)
	}

	c.io.Println()
	if pending > 0 {
		c.io.Printf("Pending sync: %d update(s) waiting for delivery\n", pending)
		c.io.Println("Run 'docsync drain' to deliver them.")
	} else {
		c.io.Println("✓ All updates delivered")
	}

	return nil
}

func (c *Cli) runQueue(ctx context.Context) error {
	entries, err := c.queue.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	if len(entries) == 0 {
		c.io.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tREVISION\tATTEMPTS\tENQUEUED\tSIZE\tLAST ERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%s\n",
			e.DocumentID,
			e.Revision,
			e.Attempts,
			e.EnqueuedAt.UTC().Format(time.RFC3339),
			len(e.Payload),
			e.LastError,
		)
	}
	return w.Flush()
}
