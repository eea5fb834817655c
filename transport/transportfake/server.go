package transportfake

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/transport/httptransport"
	"github.com/rs/zerolog/log"
)

// Handler serves the Backend over the JSON API the HTTP client speaks. A
// rejected verify answers 400 with a {success:false} body; the other code
// endpoints answer 200.
func Handler(b *Backend) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(httptransport.PathLogin, b.handleLogin)
	r.Post(httptransport.PathRegister, b.handleRegister)
	r.Post(httptransport.PathRequestOTP, b.handleRequestOTP)
	r.Post(httptransport.PathVerifyOTP, b.handleVerifyOTP)
	r.Post(httptransport.PathResendOTP, b.handleResendOTP)
	r.Post(httptransport.PathReset, b.handleReset)
	r.Post(httptransport.PathLogout, b.handleLogout)
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("fake backend request")
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req httptransport.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := b.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, httptransport.LoginResponse{
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
		Role:         resp.Role,
		Message:      resp.Message,
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req httptransport.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := b.Register(r.Context(), transport.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Role:        req.Role,
	})
	writeStatus(w, resp, err)
}

func (b *Backend) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req httptransport.OTPRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := b.RequestOTP(r.Context(), req.Email, transport.VerificationType(req.Type))
	writeStatus(w, resp, err)
}

func (b *Backend) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req httptransport.OTPRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := b.ResendOTP(r.Context(), req.Email, transport.VerificationType(req.Type))
	writeStatus(w, resp, err)
}

func (b *Backend) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req httptransport.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := b.VerifyOTP(r.Context(), req.Email, req.OTPCode, transport.VerificationType(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, httptransport.StatusResponse{
		Success:      resp.Success,
		Message:      resp.Message,
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	})
}

func (b *Backend) handleReset(w http.ResponseWriter, r *http.Request) {
	var req httptransport.ResetRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := b.ResetPassword(r.Context(), req.Email, req.OTPCode, req.NewPassword)
	writeStatus(w, resp, err)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, httptransport.ErrorResponse{Error: "missing_token"})
		return
	}
	if err := b.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, httptransport.ErrorResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func writeStatus(w http.ResponseWriter, resp *transport.OTPResponse, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, httptransport.StatusResponse{Success: resp.Success, Message: resp.Message})
}

var kindStatus = map[autherrors.Kind]int{
	autherrors.KindInvalidCredentials:   http.StatusUnauthorized,
	autherrors.KindAccountLocked:        http.StatusLocked,
	autherrors.KindAccountNotVerified:   http.StatusForbidden,
	autherrors.KindRateLimited:          http.StatusTooManyRequests,
	autherrors.KindMalformedInput:       http.StatusBadRequest,
	autherrors.KindInvalidOrExpiredCode: http.StatusBadRequest,
	autherrors.KindNetworkUnreachable:   http.StatusServiceUnavailable,
}

func writeError(w http.ResponseWriter, err error) {
	status, ok := kindStatus[autherrors.KindOf(err)]
	if !ok {
		status = http.StatusInternalServerError
	}
	var authErr *autherrors.Error
	if autherrors.As(err, &authErr) && authErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(authErr.RetryAfter.Round(time.Second)/time.Second)))
	}
	body := httptransport.ErrorResponse{
		Message: autherrors.UserMessage(err),
		Field:   autherrors.FieldOf(err),
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
