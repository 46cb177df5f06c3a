package cli

import (
	"context"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/common"
)

// getSimpleText and getPin are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPin = GetPin

// loginRole picks the role to authenticate: the first argument, else the
// role of a locked session, else whatever the user types.
func (a *App) loginRole(args []string) (models.Role, error) {
	if len(args) > 0 {
		return models.ParseRole(args[0])
	}
	if s, ok := a.access.Session(); ok {
		return s.Role, nil
	}
	text, err := getSimpleText(a.reader, "Role (USER_A / USER_B)", a.writer())
	if err != nil {
		return "", err
	}
	return models.ParseRole(text)
}

// Login asks for a role and PIN and opens a session. A wrong PIN prints
// "Access denied" and returns common.ErrorUnauthorized; the current session,
// if any, stays as it was.
func (a *App) Login(ctx context.Context, args []string) error {
	role, err := a.loginRole(args)
	if err != nil {
		return a.fail(err)
	}

	pin, err := getPin(a.reader, "Enter PIN: ", a.writer())
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pin)

	prev, hadSession := a.access.Session()

	ok, err := a.access.Login(ctx, role, string(pin))
	if err != nil {
		return a.fail(err)
	}
	if !ok {
		a.println("Access denied: invalid PIN.")
		return common.ErrorUnauthorized
	}

	// re-authorizing a locked session keeps the conversation
	if !hadSession || prev.Role != role {
		a.resetComms()
	}
	a.println("Uplink established as", role)
	return nil
}

// Logout ends the session and forgets the in-memory conversation.
func (a *App) Logout(ctx context.Context) error {
	a.access.Logout()
	a.resetComms()
	a.println("Logged out.")
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	a.access.Lock()
	return nil
}

// ChangePin asks for the current PIN and a new one (twice) and rotates it.
func (a *App) ChangePin(ctx context.Context) error {
	oldPin, err := getPin(a.reader, "Current PIN: ", a.writer())
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(oldPin)

	newPin, err := getPin(a.reader, "New PIN: ", a.writer())
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(newPin)

	repeat, err := getPin(a.reader, "Repeat new PIN: ", a.writer())
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(repeat)

	if string(newPin) != string(repeat) {
		a.println("New PINs do not match.")
		return common.ErrorIncorrectPinFormat
	}

	ok, err := a.access.ChangePin(ctx, string(oldPin), string(newPin))
	if err != nil {
		return a.fail(err)
	}
	if !ok {
		a.println("Integrity error: invalid current PIN, or new PIN is not 4 characters.")
		return common.ErrorUnauthorized
	}

	a.println("Vault PIN updated.")
	return nil
}

// Tamper raises the tamper flag. From then on the CLI only shows the notice.
func (a *App) Tamper(ctx context.Context) error {
	a.access.SetTamper()
	a.resetComms()
	a.println(tamperNotice)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	if a.access.Tampered() {
		a.println(tamperNotice)
		return nil
	}

	s, ok := a.access.Session()
	if !ok {
		a.println("State:", a.access.State())
		return nil
	}

	a.println("State:  ", a.access.State())
	a.println("Role:   ", s.Role)
	a.println("Session:", s.ID)
	a.println("Since:  ", s.CreatedAt.Format("2006-01-02 15:04:05"))
	a.println("Key ref:", s.KeyRef)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.peerLocation != nil {
		a.println("Peer:   ", formatLocation(*a.peerLocation))
	}
	if a.inCall {
		a.println("Link:    active")
	}
	return nil
}
