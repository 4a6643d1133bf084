package main

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mlusby/temperature-monitor/internal/api"
)

type proxyFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// proxy adapts an api.Handler to API Gateway proxy integration events.
func proxy(h api.Handler) proxyFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		body := req.Body
		if req.IsBase64Encoded && body != "" {
			// An undecodable body is passed on and rejected as invalid JSON.
			if raw, err := base64.StdEncoding.DecodeString(body); err == nil {
				body = string(raw)
			}
		}

		method := req.HTTPMethod
		if method == "" {
			method = req.RequestContext.HTTPMethod
		}
		if method == "" {
			method = http.MethodGet
		}

		resp := h.Handle(ctx, api.Request{
			HTTPMethod:            method,
			QueryStringParameters: req.QueryStringParameters,
			Body:                  body,
		})
		return toProxy(resp), nil
	}
}

func toProxy(r api.Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: r.StatusCode, Headers: r.Headers, Body: r.Body}
}
