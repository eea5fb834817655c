// Package httptransport talks to the rental backend's auth API over
// JSON/HTTP and classifies failures at the boundary, so callers only ever see
// *errors.Error kinds.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

var _ transport.Transport = (*Client)(nil)

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. with httptest's.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[httptransport New] base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*transport.LoginResponse, error) {
	var resp LoginResponse
	if err := c.post(ctx, PathLogin, "", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &transport.LoginResponse{
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
		Role:         resp.Role,
		Message:      resp.Message,
	}, nil
}

func (c *Client) Register(ctx context.Context, reg transport.RegisterRequest) (*transport.OTPResponse, error) {
	req := RegisterRequest{
		Email:       reg.Email,
		Password:    reg.Password,
		FullName:    reg.FullName,
		PhoneNumber: reg.PhoneNumber,
		Role:        reg.Role,
	}
	return c.status(ctx, PathRegister, req)
}

func (c *Client) RequestOTP(ctx context.Context, email string, kind transport.VerificationType) (*transport.OTPResponse, error) {
	return c.status(ctx, PathRequestOTP, OTPRequest{Email: email, Type: string(kind)})
}

func (c *Client) ResendOTP(ctx context.Context, email string, kind transport.VerificationType) (*transport.OTPResponse, error) {
	return c.status(ctx, PathResendOTP, OTPRequest{Email: email, Type: string(kind)})
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string, kind transport.VerificationType) (*transport.VerifyResponse, error) {
	var resp StatusResponse
	err := c.post(ctx, PathVerifyOTP, "", VerifyRequest{Email: email, OTPCode: code, Type: string(kind)}, &resp)
	if err != nil {
		if rejected, ok := asRejection(err); ok {
			return &transport.VerifyResponse{Success: false, Message: rejected.Message}, nil
		}
		return nil, err
	}
	return &transport.VerifyResponse{
		Success:      resp.Success,
		Message:      resp.Message,
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}, nil
}

func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) (*transport.OTPResponse, error) {
	return c.status(ctx, PathReset, ResetRequest{Email: email, OTPCode: code, NewPassword: newPassword})
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.post(ctx, PathLogout, token, struct{}{}, nil)
}

// status calls an endpoint answering {success, message}. A rejection the
// server expresses as a 4xx with that body is returned as a response.
func (c *Client) status(ctx context.Context, path string, body any) (*transport.OTPResponse, error) {
	var resp StatusResponse
	if err := c.post(ctx, path, "", body, &resp); err != nil {
		if rejected, ok := asRejection(err); ok {
			return &transport.OTPResponse{Success: false, Message: rejected.Message}, nil
		}
		return nil, err
	}
	return &transport.OTPResponse{Success: resp.Success, Message: resp.Message}, nil
}

// rejection is a non-2xx answer that still carried {success:false}.
type rejection struct {
	Message string
	err     error
}

func (r *rejection) Error() string {
	return r.err.Error()
}

func (r *rejection) Unwrap() error {
	return r.err
}

func asRejection(err error) (*rejection, bool) {
	var r *rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "[post] failed to encode %s request", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "[post] failed to build %s request", path)
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(headerRequestID, requestID)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	logger := log.With().Str("request_id", requestID).Str("path", path).Logger()
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("request failed")
		return autherrors.WithCause(autherrors.KindNetworkUnreachable, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return autherrors.WithCause(autherrors.KindNetworkUnreachable, "", err)
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(started)).Msg("request complete")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return autherrors.WithCause(autherrors.KindUnknown, "", errors.Wrapf(err, "[post] failed to decode %s response", path))
		}
		return nil
	}
	return classify(resp, data)
}

// classify turns a non-2xx answer into an *errors.Error, or a rejection when
// the body is a {success:false} status.
func classify(resp *http.Response, data []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(data, &body)
	message := body.text()
	lower := strings.ToLower(message)

	var err *autherrors.Error
	switch status := resp.StatusCode; {
	case status == http.StatusUnauthorized:
		err = &autherrors.Error{Kind: autherrors.KindInvalidCredentials, Message: message, Field: body.Field}
	case status == http.StatusLocked,
		status == http.StatusForbidden && strings.Contains(lower, "lock"):
		err = &autherrors.Error{Kind: autherrors.KindAccountLocked, Message: message}
	case status == http.StatusForbidden && strings.Contains(lower, "verif"):
		err = &autherrors.Error{Kind: autherrors.KindAccountNotVerified, Message: message}
	case status == http.StatusTooManyRequests:
		err = &autherrors.Error{Kind: autherrors.KindRateLimited, Message: message, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		err = &autherrors.Error{Kind: autherrors.KindMalformedInput, Message: message, Field: body.Field}
	case status >= 500:
		err = &autherrors.Error{Kind: autherrors.KindUnknown}
	default:
		err = &autherrors.Error{Kind: autherrors.KindUnknown, Message: message}
	}
	err.Err = errors.Errorf("http status %d", resp.StatusCode)

	if body.Success != nil && !*body.Success && status4xx(resp.StatusCode) &&
		err.Kind != autherrors.KindRateLimited && err.Kind != autherrors.KindAccountLocked {
		return &rejection{Message: message, err: err}
	}
	return err
}

func status4xx(code int) bool {
	return code >= 400 && code < 500
}

// retryAfter reads a Retry-After header in seconds or as an HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
