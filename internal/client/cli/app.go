package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/aegislink/internal/client/client"
	"github.com/dmitrijs2005/aegislink/internal/client/config"
	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/client/services"
	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/filex"
	"github.com/dmitrijs2005/aegislink/internal/logging"
)

// messenger is the part of services.MessagingService the CLI uses.
type messenger interface {
	SendText(ctx context.Context, text string) (models.Message, error)
	ShareLocation(ctx context.Context, lat, lng, accuracy float64) (models.Location, error)
	RequestCall(ctx context.Context) error
	EndCall(ctx context.Context) error
	Run(ctx context.Context, handler func(services.Event)) error
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	access    services.AccessService
	messaging messenger
	transport client.Client
	reader    *bufio.Reader
	out       io.Writer

	outMu sync.Mutex

	mu           sync.Mutex
	history      []models.Message
	peerLocation *models.Location
	inCall       bool
	callPending  bool
}

// NewApp opens the vault database at c.DatabaseDSN, provisions default
// credentials on first run and joins the local link shared by every process
// using the same vault.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	access := services.NewAccessControl(db,
		services.WithIdleTimeout(c.IdleTimeout),
		services.WithLogger(logger),
	)

	provisioned, err := access.ProvisionDefaults(ctx)
	if err != nil {
		access.Close()
		_ = db.Close()
		return nil, err
	}
	if provisioned {
		logger.Warn(ctx, "vault initialized with default PINs, change them with 'passwd'")
	}

	transport, err := openTransport(ctx, c, logger)
	if err != nil {
		logger.Error(ctx, "error joining local link", "error", err)
		access.Close()
		_ = db.Close()
		return nil, err
	}

	a := &App{
		config:    c,
		logger:    logger,
		db:        db,
		access:    access,
		messaging: services.NewMessagingService(access, transport, logger, nil),
		transport: transport,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}
	access.OnLock(a.onLock)

	return a, nil
}

// openTransport joins the socket hub named by c.LinkSocket, or the one next
// to the vault file. A vault without a file gets a private in-process bus.
func openTransport(ctx context.Context, c *config.Config, logger logging.Logger) (client.Client, error) {
	path := c.LinkSocket
	if path == "" {
		path = filex.LinkPath(c.DatabaseDSN)
	}
	if path != "" {
		return client.DialSocket(ctx, path, logger)
	}

	logger.Warn(ctx, "vault has no file, messages stay inside this process")
	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		return nil, err
	}
	return client.NewBus(logger).Join("cli-" + suffix), nil
}

func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.Close()

	a.Root(ctx)
}

// Close releases the timer, the transport and the database.
func (a *App) Close() {
	if a.access != nil {
		a.access.Close()
	}
	if a.transport != nil {
		_ = a.transport.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) writer() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

// println serializes output from the REPL and the inbox watcher.
func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.writer(), args...)
}

func (a *App) fail(err error) error {
	a.println("Error:", err)
	return err
}

func (a *App) onLock(reason services.LockReason) {
	a.println(fmt.Sprintf("Session suspended (%s). Re-authorize with 'login' to resume uplink.", reason))
}

func (a *App) state() services.State {
	return a.access.State()
}

func (a *App) tampered() bool {
	return a.access.Tampered()
}

func (a *App) touch() {
	a.access.Touch()
}

// watchInbox prints inbound events until ctx is done or the transport closes.
func (a *App) watchInbox(ctx context.Context) {
	err := a.messaging.Run(ctx, a.handleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error(ctx, "inbox watcher stopped", "error", err)
	}
}
