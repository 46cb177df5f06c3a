package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	if a.access.Tampered() {
		return "(TAMPER)"
	}
	s, ok := a.access.Session()
	if !ok {
		return ""
	}
	return fmt.Sprintf("(%s %s)", s.Role, a.access.State())
}

// Root prints the banner, starts the inbox watcher, asks for a login and
// then runs the REPL until the user exits.
func (a *App) Root(ctx context.Context) {
	a.println("Aegis-Link secure vault (type 'help' for commands)")

	go a.watchInbox(ctx)

	_ = a.Login(ctx, nil)

	runREPL(ctx, a, a.getStatus, a.reader)
}
