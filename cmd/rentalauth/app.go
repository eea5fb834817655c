package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrsteele09/rental-auth-client/credentials"
	"github.com/jrsteele09/rental-auth-client/flow"
	"github.com/jrsteele09/rental-auth-client/handoff"
	"github.com/jrsteele09/rental-auth-client/internal/config"
	"github.com/jrsteele09/rental-auth-client/session"
	"github.com/jrsteele09/rental-auth-client/storage"
	"github.com/jrsteele09/rental-auth-client/storage/filestore"
	"github.com/jrsteele09/rental-auth-client/storage/memstore"
	"github.com/jrsteele09/rental-auth-client/storage/redisstore"
	"github.com/jrsteele09/rental-auth-client/token"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/transport/httptransport"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app is the wired client: stores, transport, session and flows.
type app struct {
	cfg config.Config
	in  *bufio.Reader
	out io.Writer

	redis      *redis.Client
	transport  transport.Transport
	sessions   *session.Manager
	handoff    *handoff.Store
	completion *flow.Completion
	resetFlow  *flow.PasswordReset
	background sync.WaitGroup
}

func newApp(ctx context.Context, c config.Config, in io.Reader, out io.Writer) (*app, error) {
	a := &app{
		cfg: c,
		in:  bufio.NewReader(in),
		out: out,
	}

	durable, err := a.durableStore(ctx)
	if err != nil {
		return nil, err
	}
	// The ephemeral store ends with the process, like a closed tab.
	ephemeral := memstore.New()

	client, err := httptransport.New(c.GetAPIBaseURL(), httptransport.WithTimeout(c.GetRequestTimeout()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] transport")
	}
	a.transport = client

	a.sessions, err = session.NewManager(
		client,
		credentials.New(durable, ephemeral),
		token.NewValidator(),
		session.WithBackground(func(fn func()) {
			a.background.Add(1)
			go func() {
				defer a.background.Done()
				fn()
			}()
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] session")
	}

	a.handoff = handoff.New(ephemeral)
	a.completion, err = flow.NewCompletion(a.sessions, a.handoff, a, c.GetRememberAfterVerification())
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] completion")
	}
	a.resetFlow, err = flow.NewPasswordReset(client, a.handoff)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] reset flow")
	}

	a.sessions.Initialize(ctx)
	return a, nil
}

// durableStore uses Redis when REDIS_ADDR is set, otherwise a file in the
// data folder.
func (a *app) durableStore(ctx context.Context) (storage.Store, error) {
	if addr := a.cfg.GetRedisAddr(); addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: addr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrapf(err, "[durableStore] redis at %s", addr)
		}
		log.Debug().Str("addr", addr).Msg("using redis session store")
		return redisstore.New(a.redis, a.cfg.GetRedisPrefix()), nil
	}
	path := filepath.Join(a.cfg.GetDataFolder(), a.cfg.GetSessionFileName())
	log.Debug().Str("path", path).Msg("using file session store")
	return filestore.New(path), nil
}

func (a *app) close() {
	a.background.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close redis client")
		}
	}
}

// Navigate implements routing.Navigator. A terminal has no route guards, so
// every route is accepted and shown.
func (a *app) Navigate(_ context.Context, route string) error {
	fmt.Fprintf(a.out, "-> %s\n", route)
	return nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", errors.Wrapf(err, "[prompt] reading %s", label)
	}
	return strings.TrimSpace(line), nil
}
