package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authpipe/internal/sessiond/domain/entities"
)

// Ошибки разбора ответа с токеном.
var (
	ErrEmptyAccessToken = errors.New("token grant has no access token")
	ErrUnknownLifetime  = errors.New("token grant has no usable expiry")
)

const errDecodeGrant = "failed to decode token grant"

var jwtParser = jwt.NewParser()

// decodeGrant читает TokenGrant из тела ответа и вычисляет срок жизни токена.
// Если сервер не прислал expiresIn, срок берется из claim exp самого JWT.
func decodeGrant(body io.Reader, now time.Time) (string, time.Duration, error) {
	var grant entities.TokenGrant
	if err := json.NewDecoder(body).Decode(&grant); err != nil {
		return "", 0, fmt.Errorf("%s: %w", errDecodeGrant, err)
	}
	if grant.AccessToken == "" {
		return "", 0, ErrEmptyAccessToken
	}

	if grant.ExpiresIn > 0 {
		return grant.AccessToken, time.Duration(grant.ExpiresIn) * time.Second, nil
	}

	lifetime, err := lifetimeFromJWT(grant.AccessToken, now)
	if err != nil {
		return "", 0, err
	}
	return grant.AccessToken, lifetime, nil
}

// lifetimeFromJWT читает exp без проверки подписи: клиент не владеет ключом,
// значение нужно только для планирования обновления.
func lifetimeFromJWT(token string, now time.Time) (time.Duration, error) {
	parsed, _, err := jwtParser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnknownLifetime, err)
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, ErrUnknownLifetime
	}
	return exp.Sub(now), nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// drainAndClose дочитывает тело, чтобы соединение вернулось в пул.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
