package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"authpipe/internal/sessiond/app"
	"authpipe/internal/sessiond/config"
)

// ErrNoPassword - пароль не задан в окружении, а stdin не терминал.
var ErrNoPassword = errors.New("password is not configured and stdin is not a terminal")

// readPassword и isTerminal подменяются в тестах.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// credentials возвращает данные для входа. Пароль берется из конфигурации
// или запрашивается без эха в терминале.
func credentials(cfg *config.AuthConfig, prompt io.Writer) (app.Credentials, error) {
	creds := app.Credentials{Email: cfg.Email, Password: cfg.Password}
	if creds.Password != "" {
		return creds, nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return creds, ErrNoPassword
	}

	if _, err := fmt.Fprintf(prompt, "Password for %s: ", creds.Email); err != nil {
		return creds, err
	}
	password, err := readPassword(fd)
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return creds, fmt.Errorf("failed to read password: %w", err)
	}

	creds.Password = strings.TrimRight(string(password), "\r\n")
	return creds, nil
}
