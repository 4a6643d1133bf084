package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mlusby/temperature-monitor/internal/readings"
)

const (
	writeMethods = "OPTIONS,POST"
	readMethods  = "OPTIONS,GET"
)

// StoreReading accepts POSTed readings. GET reports health.
type StoreReading struct {
	Writer *readings.Writer
	Config Config
	Now    func() time.Time
}

func (h *StoreReading) ResponseHeaders() map[string]string { return h.Config.Headers(writeMethods) }

type healthBody struct {
	Message   string    `json:"message"`
	TableName string    `json:"tableName"`
	Timestamp time.Time `json:"timestamp"`
}

type storedBody struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (h *StoreReading) Handle(ctx context.Context, req Request) Response {
	headers := h.ResponseHeaders()
	switch req.HTTPMethod {
	case http.MethodOptions:
		return preflight(headers)
	case http.MethodGet:
		now := time.Now
		if h.Now != nil {
			now = h.Now
		}
		return jsonResponse(http.StatusOK, headers, healthBody{
			Message:   "Store Reading Lambda is healthy",
			TableName: h.Config.TableName,
			Timestamp: now().UTC(),
		}, h.Config.ExposeErrorDetails)
	}

	in, err := readings.DecodeReading([]byte(req.Body))
	if err != nil {
		return ErrorResponse(err, headers, h.Config.ExposeErrorDetails)
	}

	ctx, cancel := h.Config.withTimeout(ctx)
	defer cancel()
	id, err := h.Writer.Write(ctx, in)
	if err != nil {
		return ErrorResponse(err, headers, h.Config.ExposeErrorDetails)
	}
	return jsonResponse(http.StatusCreated, headers, storedBody{Message: "Reading stored successfully", ID: id}, h.Config.ExposeErrorDetails)
}

type GetReadings struct {
	Reader *readings.Reader
	Config Config
}

func (h *GetReadings) ResponseHeaders() map[string]string { return h.Config.Headers(readMethods) }

func (h *GetReadings) Handle(ctx context.Context, req Request) Response {
	headers := h.ResponseHeaders()
	if req.HTTPMethod == http.MethodOptions {
		return preflight(headers)
	}

	ctx, cancel := h.Config.withTimeout(ctx)
	defer cancel()
	out, err := h.Reader.Read(ctx, req.Query("sessionId"))
	if err != nil {
		return ErrorResponse(err, headers, h.Config.ExposeErrorDetails)
	}
	slog.Debug("readings retrieved", "session_id", out.SessionID, "count", out.TotalReadings)
	return jsonResponse(http.StatusOK, headers, out, h.Config.ExposeErrorDetails)
}

type ListSessions struct {
	Lister *readings.Lister
	Config Config
}

func (h *ListSessions) ResponseHeaders() map[string]string { return h.Config.Headers(readMethods) }

func (h *ListSessions) Handle(ctx context.Context, req Request) Response {
	headers := h.ResponseHeaders()
	if req.HTTPMethod == http.MethodOptions {
		return preflight(headers)
	}

	limit, _ := strconv.Atoi(req.Query("limit"))
	cursor := req.Query("cursor")
	if cursor == "" {
		// Older clients send the raw, percent-encoded continuation key.
		if legacy := req.Query("lastEvaluatedKey"); legacy != "" {
			if raw, err := url.QueryUnescape(legacy); err == nil {
				cursor = readings.EncodeCursor([]byte(raw))
			} else {
				cursor = legacy
			}
		}
	}

	ctx, cancel := h.Config.withTimeout(ctx)
	defer cancel()
	page, err := h.Lister.List(ctx, limit, cursor)
	if err != nil {
		return ErrorResponse(err, headers, h.Config.ExposeErrorDetails)
	}
	slog.Debug("sessions listed", "count", page.TotalReturned, "has_more", page.HasMore)
	return jsonResponse(http.StatusOK, headers, page, h.Config.ExposeErrorDetails)
}
