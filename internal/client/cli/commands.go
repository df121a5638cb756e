package cli

import (
	"context"
	"fmt"
)

// Args аргументы команды после разбора docopt
type Args struct {
	IDs    []string
	Fields []string
}

func (a Args) id() (string, error) {
	if len(a.IDs) == 0 || a.IDs[0] == "" {
		return "", ErrMissingID
	}
	return a.IDs[0], nil
}

// Run выполняет команду
func (c *Cli) Run(ctx context.Context, command string, args Args) error {
	switch command {
	case "open":
		id, err := args.id()
		if err != nil {
			return err
		}
		return c.runOpen(ctx, id)
	case "update":
		id, err := args.id()
		if err != nil {
			return err
		}
		return c.runUpdate(ctx, id, args.Fields)
	case "resolve":
		id, err := args.id()
		if err != nil {
			return err
		}
		return c.runResolve(ctx, id, args.Fields)
	case "sync":
		return c.runSync(ctx, args.IDs)
	case "status":
		return c.runStatus(ctx)
	case "queue":
		return c.runQueue(ctx)
	case "drain":
		return c.runDrain(ctx)
	case "run":
		return c.runRun(ctx, args.IDs)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
