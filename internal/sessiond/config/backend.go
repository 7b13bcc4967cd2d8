package config

import (
	"net/url"
	"strings"
	"time"
)

// BackendConfig описывает REST бэкенд и его эндпоинты аутентификации.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url" env:"SESSIOND_BACKEND_URL" env-default:"http://localhost:8080" validate:"required,url"`
	RefreshPath    string        `yaml:"refresh_path" env:"SESSIOND_BACKEND_REFRESH_PATH" env-default:"/api/auth/refresh" validate:"required,startswith=/"`
	LoginPath      string        `yaml:"login_path" env:"SESSIOND_BACKEND_LOGIN_PATH" env-default:"/api/auth/login" validate:"required,startswith=/"`
	LogoutPath     string        `yaml:"logout_path" env:"SESSIOND_BACKEND_LOGOUT_PATH" env-default:"/api/auth/logout" validate:"required,startswith=/"`
	MePath         string        `yaml:"me_path" env:"SESSIOND_BACKEND_ME_PATH" env-default:"/api/auth/me" validate:"required,startswith=/"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SESSIOND_BACKEND_REQUEST_TIMEOUT" env-default:"15s" validate:"gt=0"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"SESSIOND_BACKEND_REFRESH_TIMEOUT" env-default:"10s" validate:"gt=0"`
}

// Endpoint возвращает абсолютный URL пути на бэкенде.
func (c *BackendConfig) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// BaseURLParsed возвращает разобранный BaseURL.
func (c *BackendConfig) BaseURLParsed() (*url.URL, error) {
	return url.Parse(c.BaseURL)
}
