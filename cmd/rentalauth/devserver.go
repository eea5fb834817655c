package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/rental-auth-client/internal/config"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/transport/transportfake"
	"github.com/rs/zerolog/log"
)

// runDevServer serves an in-memory backend seeded with one account per
// role. Issued codes are logged instead of emailed.
func runDevServer(ctx context.Context, c config.Config, args []string) error {
	fs := newFlagSet("devserver")
	addr := fs.String("addr", defaultDevAddr(c.GetAPIBaseURL()), "listen address")
	password := fs.String("password", "Secret123", "password for the seeded accounts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend := transportfake.New(transportfake.WithCodeNotifier(func(email string, kind transport.VerificationType, code string) {
		log.Info().Str("email", email).Str("type", string(kind)).Str("code", code).Msg("code issued")
	}))
	for _, role := range []string{"LANDLORD", "TENANT", "BUSINESS", "CARETAKER", "ADMIN"} {
		spec := transportfake.UserSpec{
			Email:    fmt.Sprintf("%s@example.com", strings.ToLower(role)),
			Password: *password,
			FullName: "Demo " + role,
			Role:     role,
			Verified: true,
		}
		if _, err := backend.AddUser(spec); err != nil {
			return err
		}
		log.Info().Str("email", spec.Email).Msg("seeded account")
	}

	server := &http.Server{Addr: *addr, Handler: transportfake.Handler(backend), ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server) }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// defaultDevAddr listens on the port the client is configured to call.
func defaultDevAddr(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Port() == "" {
		return ":8080"
	}
	return ":" + u.Port()
}
