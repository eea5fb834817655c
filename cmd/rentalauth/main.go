package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/rental-auth-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: rentalauth <command> [flags]

commands:
  login      sign in with email and password
  register   create an account and verify it with the emailed code
  verify     enter a code for an existing registration or login challenge
  reset      reset a forgotten password
  status     show the signed-in user
  logout     sign out and clear the stored session
  devserver  run an in-memory backend for trying the client locally
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.Load()
	setupLogging(c.GetLogLevel())

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	if command == "devserver" {
		displayAppname(c.GetAppName() + " dev")
		return runDevServer(ctx, c, rest)
	}

	app, err := newApp(ctx, c, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer app.close()

	switch command {
	case "login":
		return app.login(ctx, rest)
	case "register":
		return app.register(ctx, rest)
	case "verify":
		return app.verify(ctx, rest)
	case "reset":
		return app.reset(ctx, rest)
	case "status":
		return app.status(ctx)
	case "logout":
		return app.logout(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
