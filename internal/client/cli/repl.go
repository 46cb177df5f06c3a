package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/aegislink/internal/client/services"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

const (
	tamperNotice = "SYSTEM TAMPER DETECTED. Integrity violation, vault sealed."
	lockedNotice = "Session suspended. Re-authorize with 'login' or end it with 'logout'."
	noSessionMsg = "Not logged in. Use 'login'."
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	state() services.State
	tampered() bool
	touch()

	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Lock(ctx context.Context) error
	ChangePin(ctx context.Context) error
	Tamper(ctx context.Context) error
	Status(ctx context.Context) error

	Send(ctx context.Context, args []string) error
	History(ctx context.Context) error
	ShareLocation(ctx context.Context, args []string) error
	Call(ctx context.Context) error
	Hangup(ctx context.Context) error

	Keygen(ctx context.Context) error
	Hash(ctx context.Context, args []string) error
}

// commands allowed per state; "help", "exit" and "quit" are always allowed
// unless the tamper flag is set.
var (
	lockedCommands = map[string]bool{"login": true, "logout": true, "status": true}
	publicCommands = map[string]bool{"login": true, "logout": true, "status": true, "keygen": true, "hash": true, "tamper": true}
)

// runREPL starts a simple read-eval-print loop for the Aegis-Link CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Every line is an activity signal (a.touch)
// before it is dispatched. The loop exits on EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
//	Always:
//	  - help                    show available commands
//	  - exit | quit             leave the program
//
//	No session:
//	  - login [role]            authenticate as USER_A or USER_B
//	  - keygen                  print a fresh channel key
//	  - hash                    print the salted digest of a PIN (hidden prompt)
//	  - tamper                  raise the tamper flag
//
//	Logged in (adds):
//	  - send [text]             send an encrypted message (compose if no text)
//	  - history                 show messages of this session
//	  - loc <lat> <lng> [acc]   share a position fix
//	  - call | hangup           open or close the secure link
//	  - passwd                  change the PIN
//	  - lock | logout | status
//
// A locked session accepts only login, logout and status. With the tamper
// flag set, every command except exit only prints the tamper notice.
//
// Handlers print their own errors; the loop ignores them.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("aegis> %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		a.touch()

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}

		if a.tampered() {
			printlnFn(tamperNotice)
			continue
		}

		if cmd == "help" {
			printHelp(a.state())
			continue
		}

		switch a.state() {
		case services.StateLocked:
			if !lockedCommands[cmd] {
				printlnFn(lockedNotice)
				continue
			}
		case services.StateNoSession:
			if !publicCommands[cmd] && isCommand(cmd) {
				printlnFn(noSessionMsg)
				continue
			}
		}

		dispatch(ctx, a, cmd, args)
	}
}

func isCommand(cmd string) bool {
	switch cmd {
	case "login", "logout", "lock", "passwd", "tamper", "status",
		"send", "history", "loc", "call", "hangup", "keygen", "hash":
		return true
	}
	return false
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) {
	switch cmd {
	case "login":
		_ = a.Login(ctx, args)

	case "logout":
		_ = a.Logout(ctx)

	case "lock":
		_ = a.Lock(ctx)

	case "passwd":
		_ = a.ChangePin(ctx)

	case "tamper":
		_ = a.Tamper(ctx)

	case "status":
		_ = a.Status(ctx)

	case "send":
		_ = a.Send(ctx, args)

	case "history":
		_ = a.History(ctx)

	case "loc":
		_ = a.ShareLocation(ctx, args)

	case "call":
		_ = a.Call(ctx)

	case "hangup":
		_ = a.Hangup(ctx)

	case "keygen":
		_ = a.Keygen(ctx)

	case "hash":
		_ = a.Hash(ctx, args)

	default:
		printlnFn("Unknown command:", cmd)
	}
}

func printHelp(s services.State) {
	switch s {
	case services.StateLocked:
		printlnFn("Available commands: login, logout, status, exit")
	case services.StateUnlocked:
		printlnFn("Available commands: send, history, loc, call, hangup, passwd, lock, logout, status, keygen, hash, tamper, exit")
	default:
		printlnFn("Available commands: login, keygen, hash, tamper, exit")
	}
}
