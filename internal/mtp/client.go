// Package mtp wraps the gotd/td client with the operations the sweep engine
// needs: dialog listing, newest-first history enumeration and batch revoke
// deletion, with telegram RPC faults mapped onto the engine's fault kinds.
package mtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bluele/gcache"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/storage"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tdp"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/mattn/go-colorable"
	"github.com/rusq/dlog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rusq/sweepmychat/internal/mtp/authflow"
	"github.com/rusq/sweepmychat/internal/mtp/bg"
)

const (
	defPageSize   = 100
	defCacheEvict = 10 * time.Minute
	defCacheSz    = 1000
)

var (
	// ErrAlreadyRunning is returned if the attempt is made to start the
	// client while there's another instance running asynchronously.
	ErrAlreadyRunning = errors.New("already running asynchronously, stop the running instance first")
	// ErrNotFound is returned when a dialog can't be resolved by id.
	ErrNotFound = errors.New("chat not found")
)

// Entity is the subset of accessors common to telegram dialog types: a chat,
// a channel, or a user.
type Entity interface {
	GetID() int64
	GetTitle() string
	TypeInfo() tdp.Type
	Zero() bool
}

type Client struct {
	cl *telegram.Client

	entities gcache.Cache // dialog id -> Entity
	dialogs  gcache.Cache // populated flag
	storage  storage.PeerStorage
	creds    credsStorage

	waiter *floodwait.SimpleWaiter

	stop bg.StopFunc

	maxPageRetries int

	auth         authflow.FullAuthFlow
	sendcodeOpts auth.SendCodeOptions
	telegramOpts telegram.Options
}

type flagKey int

const keyDialogsFresh flagKey = iota

type entKey int64

type Option func(c *Client)

func WithMTPOptions(opts telegram.Options) Option {
	return func(c *Client) {
		c.telegramOpts = opts
	}
}

// WithSessionStorage sets the session storage.
func WithSessionStorage(s session.Storage) Option {
	return func(c *Client) {
		c.telegramOpts.SessionStorage = s
	}
}

// WithPeerStorage allows to specify a custom storage for peer data.
func WithPeerStorage(s storage.PeerStorage) Option {
	return func(c *Client) {
		if s == nil {
			return
		}
		c.storage = s
	}
}

// WithAuth allows to override the authorization flow.
func WithAuth(flow authflow.FullAuthFlow) Option {
	return func(c *Client) {
		c.auth = flow
	}
}

// WithApiCredsFile sets the encrypted file with cached api_id/api_hash.
func WithApiCredsFile(path string) Option {
	return func(c *Client) {
		c.creds = credsStorage{filename: path}
	}
}

// WithPageRetries bounds per-page retry attempts during history enumeration.
func WithPageRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxPageRetries = n
		}
	}
}

func WithDebug(enable bool) Option {
	return func(c *Client) {
		if !enable {
			c.telegramOpts.Logger = nil
			return
		}
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		c.telegramOpts.Logger = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(cfg),
			zapcore.AddSync(colorable.NewColorableStdout()),
			zapcore.DebugLevel,
		))
	}
}

func New(appID int, appHash string, opts ...Option) (*Client, error) {
	var c = Client{
		entities: gcache.New(defCacheSz).LRU().Build(),
		dialogs:  gcache.New(1).LFU().Expiration(defCacheEvict).Build(),
		storage:  NewMemStorage(),

		maxPageRetries: 3,

		auth:   authflow.TermAuth{}, // default is the terminal authentication
		waiter: floodwait.NewSimpleWaiter(),

		telegramOpts: telegram.Options{},
	}

	for _, opt := range opts {
		opt(&c)
	}

	c.telegramOpts.Middlewares = append(c.telegramOpts.Middlewares, c.waiter)
	if (appID == 0 || appHash == "") && c.creds.IsAvailable() {
		var err error
		appID, appHash, err = c.loadCredentials()
		if err != nil {
			return nil, err
		}
	}

	c.cl = telegram.NewClient(appID, appHash, c.telegramOpts)

	return &c, nil
}

// loadCredentials returns the api credentials from the encrypted cache file,
// falling back to asking the user.
func (c *Client) loadCredentials() (int, string, error) {
	apiID, apiHash, err := c.creds.Load()
	if err == nil && apiID > 0 && apiHash != "" {
		return apiID, apiHash, nil
	}
	dlog.Debugf("warning: error loading credentials file, requesting manual input: %s", err)
	apiID, apiHash, err = c.auth.GetAPICredentials(context.Background())
	if err != nil {
		fmt.Println()
		if errors.Is(err, io.EOF) {
			return 0, "", errors.New("exit")
		}
		return 0, "", err
	}
	if err := c.creds.Save(apiID, apiHash); err != nil {
		// not a fatal error
		dlog.Debugf("failed to save credentials: %s", err)
	}
	return apiID, apiHash, nil
}

// Start connects and authenticates, running the telegram session in a
// goroutine.  Interactive login, if needed, happens here, before any
// enumeration or deletion starts.
func (c *Client) Start(ctx context.Context) error {
	if c.stop != nil {
		return ErrAlreadyRunning
	}

	stop, err := bg.Connect(ctx, c.cl)
	if err != nil {
		return err
	}
	c.stop = stop

	flow := auth.NewFlow(c.auth, c.sendcodeOpts)
	if err := c.cl.Auth().IfNecessary(ctx, flow); err != nil {
		if err := c.Stop(); err != nil {
			dlog.Debugf("error stopping: %s", err)
		}
		return err
	}
	dlog.Debug("auth success")

	return nil
}

func (c *Client) Stop() error {
	if c.stop == nil {
		return nil
	}
	return c.stop()
}
