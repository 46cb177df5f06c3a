package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/client/services"
)

const timeLayout = "15:04:05"

var getMultiline = GetMultiline

func formatMessage(m models.Message) string {
	return fmt.Sprintf("[%s %s] %s", m.Timestamp.Format(timeLayout), m.Sender, m.Content)
}

func formatLocation(l models.Location) string {
	return fmt.Sprintf("%.5f, %.5f ±%.0fm at %s", l.Lat, l.Lng, l.Accuracy, l.Timestamp.Format(timeLayout))
}

func (a *App) resetComms() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.peerLocation = nil
	a.inCall = false
	a.callPending = false
}

// handleEvent renders an inbound event and updates the conversation state.
func (a *App) handleEvent(ev services.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case models.KindMessage:
		a.history = append(a.history, *ev.Message)
		a.println(formatMessage(*ev.Message))

	case models.KindLocation:
		loc := *ev.Location
		a.peerLocation = &loc
		a.println(fmt.Sprintf("[%s] position %s", ev.From, formatLocation(loc)))

	case models.KindCallRequest:
		if a.inCall {
			return
		}
		a.callPending = true
		a.println(fmt.Sprintf("Incoming secure link from %s. Type 'call' to accept or 'hangup' to refuse.", ev.From))

	case models.KindCallEnd:
		if !a.inCall && !a.callPending {
			return
		}
		a.inCall = false
		a.callPending = false
		a.println(fmt.Sprintf("Secure link closed by %s.", ev.From))
	}
}

// Send encrypts and broadcasts args as one message, or a composed multi-line
// message when args is empty.
func (a *App) Send(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		var err error
		text, err = getMultiline(a.reader, "Compose message", a.writer())
		if err != nil {
			return a.fail(err)
		}
	}

	msg, err := a.messaging.SendText(ctx, text)
	if err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.history = append(a.history, msg)
	a.mu.Unlock()

	a.println(formatMessage(msg))
	return nil
}

func (a *App) History(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == 0 {
		a.println("No messages.")
		return nil
	}
	for _, m := range a.history {
		a.println(formatMessage(m))
	}
	return nil
}

// ShareLocation parses "lat lng [accuracy]" and broadcasts the fix.
func (a *App) ShareLocation(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.println("Usage: loc <lat> <lng> [accuracy_m]")
		return nil
	}

	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		a.println("Invalid latitude:", args[0])
		return nil
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil || lng < -180 || lng > 180 {
		a.println("Invalid longitude:", args[1])
		return nil
	}
	var accuracy float64
	if len(args) > 2 {
		accuracy, err = strconv.ParseFloat(args[2], 64)
		if err != nil || accuracy < 0 {
			a.println("Invalid accuracy:", args[2])
			return nil
		}
	}

	loc, err := a.messaging.ShareLocation(ctx, lat, lng, accuracy)
	if err != nil {
		return a.fail(err)
	}
	a.println("Position shared:", formatLocation(loc))
	return nil
}

// Call requests a secure link, or accepts a pending request from the peer
// without signalling back.
func (a *App) Call(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.inCall:
		a.mu.Unlock()
		a.println("Secure link already active.")
		return nil
	case a.callPending:
		a.callPending = false
		a.inCall = true
		a.mu.Unlock()
		a.println("Secure link accepted.")
		return nil
	}
	a.mu.Unlock()

	if err := a.messaging.RequestCall(ctx); err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.inCall = true
	a.mu.Unlock()

	a.println("Requesting secure link...")
	return nil
}

// Hangup closes the active link or refuses a pending one.
func (a *App) Hangup(ctx context.Context) error {
	a.mu.Lock()
	active := a.inCall || a.callPending
	a.inCall = false
	a.callPending = false
	a.mu.Unlock()

	if !active {
		a.println("No active link.")
		return nil
	}

	if err := a.messaging.EndCall(ctx); err != nil {
		return a.fail(err)
	}
	a.println("Secure link closed.")
	return nil
}
