// Package routing decides where a signed-in user lands, based on their role.
package routing

import (
	"context"

	"github.com/jrsteele09/rental-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	RouteLogin         = "/login"
	RouteDashboard     = "/dashboard"
	RouteResetPassword = "/reset-password"
	RouteForgot        = "/forgot-password"
)

type destination struct {
	primary      string
	alternatives []string
}

// destinations is indexed by users.Role and sized by users.Count, so a role
// outside the table cannot be indexed.
var destinations = [users.Count]destination{
	users.RoleUnknown: {
		primary: RouteDashboard,
	},
	users.RoleLandlord: {
		primary:      "/landlord/dashboard",
		alternatives: []string{"/landlord", "/landlord/properties"},
	},
	users.RoleTenant: {
		primary:      "/tenant/dashboard",
		alternatives: []string{"/tenant", "/tenant/rentals"},
	},
	users.RoleBusiness: {
		primary:      "/business/dashboard",
		alternatives: []string{"/business"},
	},
	users.RoleCaretaker: {
		primary:      "/caretaker/dashboard",
		alternatives: []string{"/caretaker", "/caretaker/tasks"},
	},
	users.RoleAdmin: {
		primary:      "/admin/dashboard",
		alternatives: []string{"/admin"},
	},
}

// Resolve returns the landing route for a role string. Unknown and empty
// roles land on the generic dashboard.
func Resolve(role string) string {
	return destinations[users.ParseRole(role)].primary
}

// Alternatives returns the routes tried, in order, when the primary route
// refuses the user.
func Alternatives(role string) []string {
	alts := destinations[users.ParseRole(role)].alternatives
	return append([]string(nil), alts...)
}

// Chain is the full ordered list Redirect walks: primary, alternatives, login.
func Chain(role string) []string {
	d := destinations[users.ParseRole(role)]
	chain := make([]string, 0, len(d.alternatives)+2)
	chain = append(chain, d.primary)
	chain = append(chain, d.alternatives...)
	return append(chain, RouteLogin)
}

// Navigator moves the user to a route. It returns an error when the route
// refuses them, for example because of a guard.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route string) error

func (f NavigatorFunc) Navigate(ctx context.Context, route string) error {
	return f(ctx, route)
}

// Redirect walks Chain(role) and stops at the first route that accepts.
func Redirect(ctx context.Context, nav Navigator, role string) (string, error) {
	var lastErr error
	for _, route := range Chain(role) {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, "[Redirect] cancelled")
		}
		err := nav.Navigate(ctx, route)
		if err == nil {
			return route, nil
		}
		log.Debug().Err(err).Str("route", route).Str("role", role).Msg("route refused")
		lastErr = err
	}
	return "", errors.Wrap(lastErr, "[Redirect] no route accepted")
}
