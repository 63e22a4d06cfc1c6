package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeExec struct {
	calls []string
	args  [][]string
	fail  string
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	if name == f.fail {
		return errors.New(name + " failed")
	}
	return nil
}

func (f *fakeExec) Add(ctx context.Context, args []string) error    { return f.record("add", args) }
func (f *fakeExec) Edit(ctx context.Context, args []string) error   { return f.record("edit", args) }
func (f *fakeExec) Delete(ctx context.Context, args []string) error { return f.record("delete", args) }
func (f *fakeExec) List(ctx context.Context, args []string) error   { return f.record("list", args) }
func (f *fakeExec) History(ctx context.Context, args []string) error {
	return f.record("history", args)
}
func (f *fakeExec) At(ctx context.Context, args []string) error   { return f.record("at", args) }
func (f *fakeExec) Sync(ctx context.Context, args []string) error { return f.record("sync", args) }
func (f *fakeExec) AutoSync(ctx context.Context, args []string) error {
	return f.record("autosync", args)
}
func (f *fakeExec) Status(ctx context.Context) error { return f.record("status", nil) }

// captureOutput replaces printlnFn for the duration of the test.
func captureOutput(t *testing.T) *strings.Builder {
	t.Helper()
	var out strings.Builder
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) { return fmt.Fprintln(&out, a...) }
	t.Cleanup(func() { printlnFn = origPrint })
	return &out
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	captureOutput(t)

	input := strings.Join([]string{
		"help",
		`add patient @id=p1 name="Ann Smith"`,
		"edit patient p1 room=",
		"l",
		"history patient p1",
		"at patient p1 2026-05-01",
		"rm patient p1",
		"sync --force",
		"autosync off",
		"status",
		"",
		"exit",
		"list",
	}, "\n") + "\n"
	exec := &fakeExec{}

	runREPL(context.Background(), exec, func() string { return "(alice online)" }, bufio.NewReader(strings.NewReader(input)))

	want := []string{"add", "edit", "list", "history", "at", "delete", "sync", "autosync", "status"}
	if strings.Join(exec.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", exec.calls, want)
	}
	if got := strings.Join(exec.args[0], "|"); got != "patient|@id=p1|name=Ann Smith" {
		t.Fatalf("quoted value not grouped: %q", got)
	}
}

func TestRunREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	out := captureOutput(t)

	input := "sync\nfrobnicate\nadd \"oops\nstatus\nquit\n"
	exec := &fakeExec{fail: "sync"}

	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewReader(strings.NewReader(input)))

	if strings.Join(exec.calls, ",") != "sync,status" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	for _, want := range []string{"Error: sync failed", "Unknown command: frobnicate", "unterminated", "Bye!"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	captureOutput(t)
	exec := &fakeExec{}

	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewReader(strings.NewReader("status")))

	if len(exec.calls) != 1 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
