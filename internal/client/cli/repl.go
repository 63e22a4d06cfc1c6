package cli

import (
	"bufio"
	"context"
	"fmt"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	At(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	AutoSync(ctx context.Context, args []string) error
	Status(ctx context.Context) error
}

const helpText = `Available commands:
  add <kind> [@id=<id>] [@parent=<id>] [@at=<date>] [field=value ...] [+<child>=<value> ...]
  edit <kind> <id> [@parent=<id>] [@at=<date>] [field=value ...] [field= ...] [+<child>=<value> ...]
  delete <kind> <id>
  list [kind]
  history <kind> <id>
  at <kind> <id> <date>
  sync [--force]
  autosync on|off
  status
  exit | quit`

// runREPL starts a simple read–eval–print loop for the caresync CLI.
//
// It reads a line from reader, splits it into arguments (quotes group
// words), and dispatches the first one as the command. The loop exits on
// EOF or when the user types "exit" or "quit".
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("caresync %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts, err := splitArgs(line)
		if err != nil {
			printlnFn("Error:", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
		case "add":
			err = a.Add(ctx, args)
		case "edit":
			err = a.Edit(ctx, args)
		case "delete", "rm":
			err = a.Delete(ctx, args)
		case "l", "list":
			err = a.List(ctx, args)
		case "history":
			err = a.History(ctx, args)
		case "at":
			err = a.At(ctx, args)
		case "sync":
			err = a.Sync(ctx, args)
		case "autosync":
			err = a.AutoSync(ctx, args)
		case "status":
			err = a.Status(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
