package config

import "time"

// AuthConfig содержит параметры жизненного цикла токена и навигации.
type AuthConfig struct {
	ExpiryBuffer      time.Duration `yaml:"expiry_buffer" env:"SESSIOND_AUTH_EXPIRY_BUFFER" env-default:"60s" validate:"gte=0"`
	BanRedirectDelay  time.Duration `yaml:"ban_redirect_delay" env:"SESSIOND_AUTH_BAN_REDIRECT_DELAY" env-default:"3s" validate:"gte=0"`
	LoginPage         string        `yaml:"login_page" env:"SESSIOND_AUTH_LOGIN_PAGE" env-default:"/html/login.html" validate:"required"`
	HomePage          string        `yaml:"home_page" env:"SESSIOND_AUTH_HOME_PAGE" env-default:"/index.html" validate:"required"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" env:"SESSIOND_AUTH_KEEPALIVE_INTERVAL" env-default:"30s" validate:"gte=0"`
	IdentityTTL       time.Duration `yaml:"identity_ttl" env:"SESSIOND_AUTH_IDENTITY_TTL" env-default:"5m" validate:"gt=0"`
	Email             string        `yaml:"email" env:"SESSIOND_AUTH_EMAIL" validate:"omitempty,email"`
	Password          string        `yaml:"-" env:"SESSIOND_AUTH_PASSWORD"`
}

// KeepaliveEnabled сообщает, включено ли фоновое продление сессии.
func (c *AuthConfig) KeepaliveEnabled() bool {
	return c.KeepaliveInterval > 0
}
