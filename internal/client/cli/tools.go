package cli

import (
	"context"

	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
)

// Keygen prints a fresh base64 channel key.
func (a *App) Keygen(ctx context.Context) error {
	key, err := cryptox.GenerateMasterKey()
	if err != nil {
		return a.fail(err)
	}
	a.println(key)
	return nil
}

// Hash prints the salted digest of a PIN read without echo. A PIN given on
// the command line is refused so it never lands on screen.
func (a *App) Hash(ctx context.Context, args []string) error {
	if len(args) > 0 {
		a.println("Usage: hash (the PIN is asked for without echo)")
		return nil
	}

	pin, err := getPin(a.reader, "PIN: ", a.writer())
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pin)

	a.println(cryptox.HashPin(string(pin)))
	return nil
}
