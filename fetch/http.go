package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/eak1mov/go-tileflow/runloop"
)

// HTTPService fetches resources over HTTP(S).
type HTTPService struct {
	loop      *runloop.Loop
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

func NewHTTPService(loop *runloop.Loop, opts ...Option) *HTTPService {
	c := newConfig(opts)
	return &HTTPService{
		loop:      loop,
		client:    c.Client,
		userAgent: c.UserAgent,
		logger:    c.Logger,
	}
}

func (s *HTTPService) Fetch(res Resource, callback func(Response)) *Request {
	return Start(s.loop, func(ctx context.Context) Response {
		return s.get(ctx, res)
	}, callback)
}

func (s *HTTPService) get(ctx context.Context, res Resource) Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return Response{Status: StatusError, Message: err.Error()}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Response{Status: StatusError, Message: err.Error()}
	}
	defer resp.Body.Close()

	s.logger.Debug("tileflow: http response", "url", res.URL, "kind", res.Kind, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Response{Status: StatusNotFound, Message: "HTTP status code 404"}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Response{Status: StatusError, Message: fmt.Sprintf("HTTP status code %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Status: StatusError, Message: err.Error()}
	}
	return Response{Status: StatusSuccessful, Data: data}
}
