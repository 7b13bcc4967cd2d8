// Package sender реализует транспорт до бэкенда поверх net/http с
// хранилищем cookie и Circuit Breaker.
package sender

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"authpipe/internal/sessiond/resilience"
	"authpipe/pkg/logger"
)

// Константы для логирования и ошибок.
const (
	LogBackendUnavailable = "backend unavailable"

	ErrCreateCookieJar = "failed to create cookie jar"
	ErrRewindBody      = "failed to rewind request body"
	ErrSend            = "failed to send request to backend"
)

// UserAgent отправляется со всеми запросами.
const UserAgent = "sessiond/1.0"

// ErrBackendUnavailable - бэкенд ответил 502, 503 или 504.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Sender отправляет запросы бэкенду. Cookie ответов, включая refresh
// cookie, сохраняются в хранилище и прикладываются к следующим запросам.
type Sender struct {
	client *http.Client
	policy *resilience.Policy
}

// New создает Sender с таймаутом запроса timeout.
func New(policy *resilience.Policy, timeout time.Duration) (*Sender, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrCreateCookieJar, err)
	}

	return &Sender{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		policy: policy,
	}, nil
}

// Jar возвращает хранилище cookie.
func (s *Sender) Jar() http.CookieJar {
	return s.client.Jar
}

// Send выполняет запрос под защитой Circuit Breaker. Идемпотентные запросы
// повторяются при сетевых ошибках и недоступности бэкенда. Если бэкенд
// недоступен и повторы исчерпаны, возвращается его последний ответ.
func (s *Sender) Send(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	retryable := isIdempotent(req.Method) && rewindable(req)

	var resp *http.Response
	attempt := 0

	err := s.policy.Execute(ctx, req.Method+" "+req.URL.Path, retryable, func() error {
		if resp != nil {
			_ = resp.Body.Close()
			resp = nil
		}

		outgoing, err := prepare(req, attempt)
		attempt++
		if err != nil {
			return err
		}

		r, err := s.client.Do(outgoing)
		if err != nil {
			return err
		}
		resp = r

		if isUnavailable(r.StatusCode) {
			return fmt.Errorf("%w: status %d", ErrBackendUnavailable, r.StatusCode)
		}
		return nil
	})

	if resp != nil && (err == nil || errors.Is(err, ErrBackendUnavailable)) {
		if err != nil {
			logger.Log(ctx).Warn(ctx, LogBackendUnavailable, zap.Int("status", resp.StatusCode))
		}
		return resp, nil
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	return nil, fmt.Errorf("%s: %w", ErrSend, err)
}

func prepare(req *http.Request, attempt int) (*http.Request, error) {
	out := req
	if attempt > 0 {
		out = req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ErrRewindBody, err)
			}
			out.Body = body
		}
	}
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", UserAgent)
	}
	return out, nil
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func isUnavailable(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
