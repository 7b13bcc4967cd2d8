// Package ui описывает порты взаимодействия с пользователем.
package ui

import "context"

// Level - важность уведомления.
type Level string

// Уровни уведомлений.
const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier показывает пользователю короткое сообщение.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

// Navigator переводит пользователя на другую страницу.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}
