// Package api holds the transport-neutral request handlers. HTTP and Lambda
// entrypoints adapt their own request types to Request and back.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

const (
	DefaultAllowOrigin = "http://localhost:3000"
	allowHeaders       = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,X-API-Key"
)

type Request struct {
	HTTPMethod            string
	QueryStringParameters map[string]string
	Body                  string
}

func (r Request) Query(key string) string {
	if r.QueryStringParameters == nil {
		return ""
	}
	return strings.TrimSpace(r.QueryStringParameters[key])
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HeaderSource is implemented by handlers whose fixed response headers a
// transport needs for errors it raises before calling Handle.
type HeaderSource interface {
	ResponseHeaders() map[string]string
}

type Config struct {
	AllowOrigin        string
	ExposeErrorDetails bool
	TableName          string
	// Timeout bounds each request's store call; zero disables it.
	Timeout time.Duration
}

// Headers returns the fixed cross-origin headers for a handler family.
func (c Config) Headers(methods string) map[string]string {
	origin := c.AllowOrigin
	if origin == "" {
		origin = DefaultAllowOrigin
	}
	return map[string]string{
		"Content-Type":                     "application/json",
		"Access-Control-Allow-Origin":      origin,
		"Access-Control-Allow-Headers":     allowHeaders,
		"Access-Control-Allow-Methods":     methods,
		"Access-Control-Allow-Credentials": "false",
	}
}

func (c Config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}

func preflight(headers map[string]string) Response {
	return Response{StatusCode: http.StatusOK, Headers: headers, Body: ""}
}

func jsonResponse(status int, headers map[string]string, v any, exposeDetails bool) Response {
	b, err := json.Marshal(v)
	if err != nil {
		return ErrorResponse(apperrors.Storage("Internal server error", err), headers, exposeDetails)
	}
	return Response{StatusCode: status, Headers: headers, Body: string(b)}
}

// ErrorResponse renders err as a JSON error body with its mapped status.
func ErrorResponse(err error, headers map[string]string, exposeDetails bool) Response {
	appErr := apperrors.As(err)
	b, mErr := json.Marshal(apperrors.Payload(appErr, exposeDetails))
	if mErr != nil {
		b = []byte(`{"error":"Internal server error"}`)
	}
	return Response{StatusCode: appErr.Code, Headers: headers, Body: string(b)}
}
