package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/iudanet/docsync/internal/client/session"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/validation"
)

var (
	documentTmpl = template.Must(template.New("document").Parse(documentTemplate))
	conflictTmpl = template.Must(template.New("conflict").Parse(conflictTemplate))
)

type fieldRow struct {
	Name  string
	Value string
}

type conflictRow struct {
	Name   string
	Local  string
	Remote string
}

// session возвращает открытую сессию или открывает документ
func (c *Cli) session(ctx context.Context, id string) (*session.Session, error) {
	if sess, ok := c.sessions.Get(models.DocumentID(id)); ok {
		return sess, nil
	}
	sess, err := c.sessions.Open(ctx, models.DocumentID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", id, err)
	}
	return sess, nil
}

func (c *Cli) runOpen(ctx context.Context, id string) error {
	sess, err := c.session(ctx, id)
	if err != nil {
		return err
	}
	return c.printDocument(ctx, sess)
}

func (c *Cli) runUpdate(ctx context.Context, id string, args []string) error {
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	sess, err := c.session(ctx, id)
	if err != nil {
		return err
	}

	if err := sess.Update(ctx, fields); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if err := c.deliver(ctx, sess); err != nil {
		return err
	}

	return c.printDocument(ctx, sess)
}

func (c *Cli) runResolve(ctx context.Context, id string, args []string) error {
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	sess, err := c.session(ctx, id)
	if err != nil {
		return err
	}

	// ResolveConflict сам ставит результат в очередь
	if err := sess.ResolveConflict(ctx, fields); err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}
	if _, err := c.queue.Process(ctx); err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	return c.printDocument(ctx, sess)
}

// deliver ставит текущее состояние в очередь и разбирает ее.
// Ошибка доставки не возвращается: запись остается в очереди, статус FAILED.
func (c *Cli) deliver(ctx context.Context, sess *session.Session) error {
	if err := sess.SyncWithRemote(ctx, c.config.APIEndpoint); err != nil {
		if errors.Is(err, session.ErrUnresolvedConflict) {
			c.io.Println("Document is in conflict, resolve it first.")
			return nil
		}
		return fmt.Errorf("failed to enqueue %s: %w", sess.ID(), err)
	}
	if _, err := c.queue.Process(ctx); err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	return nil
}

func (c *Cli) printDocument(ctx context.Context, sess *session.Session) error {
	view := sess.View()

	data := struct {
		LastDelivery time.Time
		ID           string
		Status       models.SyncStatus
		Fields       []fieldRow
	}{
		ID:     string(sess.ID()),
		Status: sess.Status(),
	}
	for _, name := range view.Keys() {
		data.Fields = append(data.Fields, fieldRow{Name: name, Value: view[name].String()})
	}

	if at, err := c.metadata.GetLastDelivery(ctx, sess.ID()); err == nil {
		data.LastDelivery = at
	}

	return documentTmpl.Execute(c.io, data)
}

func (c *Cli) printConflict(conflict session.Conflict, id models.DocumentID) error {
	names := conflict.Local.Keys()
	for _, name := range conflict.Remote.Keys() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	data := struct {
		ID   string
		Rows []conflictRow
	}{ID: string(id)}

	for _, name := range names {
		local, remote := conflict.Local[name], conflict.Remote[name]
		if local.Equal(remote) {
			continue
		}
		data.Rows = append(data.Rows, conflictRow{Name: name, Local: local.String(), Remote: remote.String()})
	}

	return conflictTmpl.Execute(c.io, data)
}

// parseFields разбирает аргументы key=value
func parseFields(args []string) (models.Fields, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no fields given", ErrInvalidField)
	}

	fields := make(models.Fields, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, arg)
		}
		key = strings.TrimSpace(key)
		if err := validation.ValidateFieldName(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		fields[key] = models.ParseValue(value)
	}
	return fields, nil
}
