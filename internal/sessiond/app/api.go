package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"authpipe/internal/sessiond/domain/entities"
)

// Ошибки API.
var (
	ErrNotJSON = errors.New("response is not json")
)

const (
	errReadResponse   = "failed to read response body"
	errDecodeResponse = "failed to decode response"
)

// Requester выполняет аутентифицированный запрос.
type Requester interface {
	Request(ctx context.Context, method, url string, body any) (*http.Response, error)
}

// Payload - тело успешного ответа.
type Payload struct {
	Status int
	Header http.Header
	Raw    []byte
	// JSON сообщает, что Raw - корректный JSON. Иначе тело считается текстом.
	JSON bool
}

// Text возвращает тело ответа строкой.
func (p *Payload) Text() string {
	if p == nil {
		return ""
	}
	return string(p.Raw)
}

// Decode разбирает JSON тело в v.
func (p *Payload) Decode(v any) error {
	if p == nil || !p.JSON {
		return ErrNotJSON
	}
	if err := json.Unmarshal(p.Raw, v); err != nil {
		return fmt.Errorf("%s: %w", errDecodeResponse, err)
	}
	return nil
}

// API предоставляет методы HTTP с единым контрактом: успешный ответ
// возвращается как *Payload (nil для пустого тела), неуспешный - как *entities.APIError.
type API struct {
	requester Requester
}

// NewAPI создает API поверх requester.
func NewAPI(requester Requester) *API {
	return &API{requester: requester}
}

// Get выполняет GET запрос.
func (a *API) Get(ctx context.Context, url string) (*Payload, error) {
	return a.Do(ctx, http.MethodGet, url, nil)
}

// Post выполняет POST запрос.
func (a *API) Post(ctx context.Context, url string, body any) (*Payload, error) {
	return a.Do(ctx, http.MethodPost, url, body)
}

// Put выполняет PUT запрос.
func (a *API) Put(ctx context.Context, url string, body any) (*Payload, error) {
	return a.Do(ctx, http.MethodPut, url, body)
}

// Patch выполняет PATCH запрос.
func (a *API) Patch(ctx context.Context, url string, body any) (*Payload, error) {
	return a.Do(ctx, http.MethodPatch, url, body)
}

// Delete выполняет DELETE запрос.
func (a *API) Delete(ctx context.Context, url string) (*Payload, error) {
	return a.Do(ctx, http.MethodDelete, url, nil)
}

// Do выполняет запрос произвольным методом.
func (a *API) Do(ctx context.Context, method, url string, body any) (*Payload, error) {
	resp, err := a.requester.Request(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errReadResponse, err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, newAPIError(resp.StatusCode, raw)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	return &Payload{
		Status: resp.StatusCode,
		Header: resp.Header,
		Raw:    raw,
		JSON:   json.Valid(raw),
	}, nil
}

// Decode выполняет запрос и разбирает JSON ответ в T. Для пустого тела возвращает nil.
func Decode[T any](ctx context.Context, api *API, method, url string, body any) (*T, error) {
	payload, err := api.Do(ctx, method, url, body)
	if err != nil || payload == nil {
		return nil, err
	}

	var out T
	if err := payload.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// newAPIError строит ошибку из тела ответа: сообщение берется из error,
// затем из message, затем из текста статуса. Машинный код в error (например,
// QUOTA_EXCEEDED) уходит в Code, а в Message остается текст из message, если
// он есть. Error() выводит оба.
func newAPIError(status int, raw []byte) *entities.APIError {
	apiErr := &entities.APIError{Status: status}

	var body entities.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Text()
		apiErr.Code = body.Sentinel()
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
