package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/client/services"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
)

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usage("add <kind> [@id=<id>] [field=value ...]")
	}
	in, err := a.parseFields(models.Kind(args[0]), args[1:], false)
	if err != nil {
		return err
	}

	e, err := a.records.Create(ctx, in)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Added %s %s (version %s)", e.Kind, e.ID, short(e.UUID)))
	return nil
}

func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("edit <kind> <id> [field=value ...]")
	}
	in, err := a.parseFields(models.Kind(args[0]), args[2:], true)
	if err != nil {
		return err
	}
	in.ID = args[1]

	e, err := a.records.Edit(ctx, in)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Saved %s %s (version %s)", e.Kind, e.ID, short(e.UUID)))
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("delete <kind> <id>")
	}
	kind, id := models.Kind(args[0]), args[1]

	ok, err := Confirm(a.reader, fmt.Sprintf("Delete %s %s?", kind, id), a.out)
	if err != nil {
		return err
	}
	if !ok {
		printlnFn("Cancelled")
		return nil
	}

	e, err := a.records.Delete(ctx, kind, id)
	if err != nil {
		return err
	}
	if e.IsDeleted() {
		printlnFn(fmt.Sprintf("Deleted %s %s, history is kept", kind, id))
	} else {
		printlnFn(fmt.Sprintf("Deleted %s %s", kind, id))
	}
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	kinds := a.registry.All()
	if len(args) > 0 {
		kinds = []models.Kind{models.Kind(args[0])}
	}

	n := 0
	for _, kind := range kinds {
		list, err := a.records.List(ctx, kind)
		if err != nil {
			return err
		}
		for _, e := range list {
			printlnFn(formatEntity(e))
			n++
		}
	}
	if n == 0 {
		printlnFn("No records")
	}
	return nil
}

func (a *App) History(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("history <kind> <id>")
	}
	versions, err := a.records.History(ctx, models.Kind(args[0]), args[1])
	if err != nil {
		return err
	}
	for i, v := range versions {
		printlnFn(fmt.Sprintf("%d. %s", i+1, formatEntity(v)))
	}
	return nil
}

func (a *App) At(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usage("at <kind> <id> <date>")
	}
	t, err := parseTime(args[2])
	if err != nil {
		return err
	}
	e, err := a.records.At(ctx, models.Kind(args[0]), args[1], t)
	if errors.Is(err, common.ErrNotFound) {
		printlnFn(fmt.Sprintf("%s %s had no version in effect at %s", args[0], args[1], t.Format(timeLayouts[0])))
		return nil
	}
	if err != nil {
		return err
	}
	printlnFn(formatEntity(e))
	return nil
}

func (a *App) Sync(ctx context.Context, args []string) error {
	force := slices.Contains(args, "--force") || slices.Contains(args, "-f")

	res, err := a.sync.SyncNow(ctx, force)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printlnFn("Sync finished:", res.Summary())
	for _, f := range res.Failures {
		printlnFn("  ", f.Error())
	}
	return nil
}

func (a *App) AutoSync(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return usage("autosync on|off")
	}
	on := args[0] == "on"
	if err := a.sync.SetAutoSync(ctx, on); err != nil {
		return err
	}
	printlnFn("Auto-sync is", args[0])
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.sync.Status(ctx)
	if err != nil {
		return err
	}
	printlnFn("Identity:   ", a.config.Identity)
	printlnFn("Device:     ", st.ProcessID)
	printlnFn("Backend:    ", a.config.Backend)
	printlnFn("Online:     ", st.Online)
	printlnFn("Auto-sync:  ", st.AutoSync)
	printlnFn("Pending:    ", st.Pending)
	printlnFn("Clock:      ", st.Vector.Get(st.ProcessID))
	last := st.LastResult
	if last == "" {
		last = "never synced"
	}
	printlnFn("Last round: ", last)
	return nil
}

// parseFields reads @id, @parent and @at options, field=value pairs and
// +child=value entries. An empty value removes the field on edit.
func (a *App) parseFields(kind models.Kind, args []string, editing bool) (services.RecordInput, error) {
	in := services.RecordInput{Kind: kind, Payload: map[string]any{}}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return in, fmt.Errorf("expected field=value, got %q", arg)
		}

		switch {
		case key == "@id":
			in.ID = value
		case key == "@parent":
			in.ParentID = value
		case key == "@at":
			t, err := parseTime(value)
			if err != nil {
				return in, err
			}
			in.EffectiveDate = t
		case strings.HasPrefix(key, "@"):
			return in, fmt.Errorf("unknown option %s", key)
		case strings.HasPrefix(key, "+"):
			childKind := models.Kind(key[1:])
			if !a.registry.IsChild(childKind) {
				return in, fmt.Errorf("%w: %q is not a child kind", common.ErrUnknownKind, childKind)
			}
			in.Children = append(in.Children, &models.Entity{
				Kind:    childKind,
				Payload: map[string]any{childField(childKind): parseValue(value)},
			})
		case value == "":
			if editing {
				in.Payload[key] = nil
			}
		default:
			in.Payload[key] = parseValue(value)
		}
	}
	return in, nil
}

func childField(kind models.Kind) string {
	if kind == models.KindNote {
		return "text"
	}
	return "value"
}
