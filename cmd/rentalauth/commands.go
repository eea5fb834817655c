package main

import (
	"context"
	"fmt"
	"strings"

	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/otp"
	"github.com/jrsteele09/rental-auth-client/routing"
	"github.com/jrsteele09/rental-auth-client/session"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/pkg/errors"
)

var errCancelled = errors.New("cancelled")

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	remember := fs.Bool("remember", true, "keep the session after the program exits")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = a.prompt("Email"); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = a.prompt("Password"); err != nil {
			return err
		}
	}

	s, err := a.sessions.Login(ctx, session.Credentials{Email: *email, Password: *password}, *remember)
	switch {
	case err == session.ErrVerificationRequired:
		fmt.Fprintln(a.out, "A sign-in code has been sent to your email.")
		return a.screen(ctx, *email, transport.Login)
	case autherrors.KindOf(err) == autherrors.KindAccountNotVerified:
		fmt.Fprintln(a.out, autherrors.UserMessage(err))
		return a.verify(ctx, []string{"-email", *email, "-send"})
	case err != nil:
		return a.report(err)
	}

	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", s.User.FullName, s.User.RoleKind())
	_, err = routing.Redirect(ctx, a, s.User.Role)
	return err
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	reg := transport.RegisterRequest{}
	fs.StringVar(&reg.Email, "email", "", "account email")
	fs.StringVar(&reg.Password, "password", "", "password (prompted when empty)")
	fs.StringVar(&reg.FullName, "name", "", "full name")
	fs.StringVar(&reg.PhoneNumber, "phone", "", "phone number in E.164 form")
	fs.StringVar(&reg.Role, "role", "TENANT", "LANDLORD, TENANT, BUSINESS or CARETAKER")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if reg.Email == "" {
		if reg.Email, err = a.prompt("Email"); err != nil {
			return err
		}
	}
	if reg.Password == "" {
		if reg.Password, err = a.prompt("Password"); err != nil {
			return err
		}
	}

	resp, err := a.sessions.Register(ctx, reg)
	if err != nil {
		return a.report(err)
	}
	if !resp.Success {
		return a.report(autherrors.New(autherrors.KindUnknown, resp.Message))
	}
	return a.screen(ctx, reg.Email, transport.Registration)
}

func (a *app) verify(ctx context.Context, args []string) error {
	fs := newFlagSet("verify")
	email := fs.String("email", "", "account email")
	kind := fs.String("type", string(transport.Registration), "registration or login")
	send := fs.Bool("send", false, "request a fresh code first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	verificationType := transport.VerificationType(strings.ToLower(*kind))
	if verificationType == transport.PasswordReset || !verificationType.Valid() {
		return fmt.Errorf("unsupported verification type %q", *kind)
	}
	if *email == "" {
		return errors.New("-email is required")
	}
	if *send {
		resp, err := a.transport.RequestOTP(ctx, *email, verificationType)
		if err != nil {
			return a.report(err)
		}
		fmt.Fprintln(a.out, resp.Message)
	}
	return a.screen(ctx, *email, verificationType)
}

func (a *app) reset(ctx context.Context, args []string) error {
	fs := newFlagSet("reset")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = a.prompt("Email"); err != nil {
			return err
		}
	}
	if _, err := a.resetFlow.Request(ctx, *email); err != nil {
		return a.report(err)
	}
	if err := a.screen(ctx, *email, transport.PasswordReset); err != nil {
		return err
	}

	if _, err := a.resetFlow.Begin(ctx); err != nil {
		return a.report(err)
	}
	for {
		password, err := a.prompt("New password")
		if err != nil {
			return err
		}
		confirm, err := a.prompt("Confirm password")
		if err != nil {
			return err
		}
		err = a.resetFlow.Reset(ctx, password, confirm)
		if err == nil {
			fmt.Fprintln(a.out, "Password updated. You can now sign in.")
			return a.Navigate(ctx, routing.RouteLogin)
		}
		if autherrors.KindOf(err) != autherrors.KindMalformedInput {
			a.resetFlow.Restart(ctx)
			return a.report(err)
		}
		fmt.Fprintln(a.out, autherrors.UserMessage(err))
	}
}

func (a *app) status(ctx context.Context) error {
	user := a.sessions.CurrentUser()
	if user == nil || !a.sessions.IsAuthenticated(ctx) {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>, role %s\n", user.FullName, user.Email, user.RoleKind())
	fmt.Fprintf(a.out, "Home: %s\n", routing.Resolve(user.Role))
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	fs := newFlagSet("logout")
	wait := fs.Bool("wait", false, "wait for the server to end the session before clearing it locally")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *wait {
		a.sessions.Logout(ctx)
	} else {
		a.sessions.LogoutAsync(ctx)
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

// screen runs a verification screen on the terminal until the code is
// accepted or the user gives up.
func (a *app) screen(ctx context.Context, email string, kind transport.VerificationType) error {
	m, err := otp.NewMachine(otp.ConfigFrom(a.cfg, email, kind), a.transport, a.completion, otp.WithContext(ctx))
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Fprintf(a.out, "Enter the 7-character code sent to %s.\nType \"resend\" for a new code or leave empty to cancel.\n", email)
	for {
		line, err := a.prompt("Code")
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "":
			return errCancelled
		case "resend":
			if err := m.Resend(ctx); err != nil {
				fmt.Fprintln(a.out, a.resendMessage(m, err))
				continue
			}
			fmt.Fprintln(a.out, m.Snapshot().Message)
			continue
		}

		m.Paste(line)
		err = m.Submit(ctx)
		s := m.Snapshot()
		if s.State.Finished() {
			if err != nil {
				return a.report(err)
			}
			return nil
		}
		if err != nil {
			fmt.Fprintln(a.out, autherrors.UserMessage(err))
		} else if s.Message != "" {
			fmt.Fprintln(a.out, s.Message)
		}
		if s.CanResend {
			fmt.Fprintln(a.out, "You can request a new code with \"resend\".")
		}
	}
}

func (a *app) resendMessage(m *otp.Machine, err error) string {
	if errors.Is(err, otp.ErrResendCooldown) {
		return fmt.Sprintf("You can request a new code in %ds.", m.Snapshot().ResendIn)
	}
	return autherrors.UserMessage(err)
}

func (a *app) report(err error) error {
	fmt.Fprintln(a.out, autherrors.UserMessage(err))
	return err
}
