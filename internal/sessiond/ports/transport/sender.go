// Package transport описывает порт сетевого транспорта до бэкенда.
package transport

import "net/http"

// Sender выполняет HTTP запрос. Реализация отвечает за хранилище cookie,
// через которое передается refresh токен.
type Sender interface {
	Send(req *http.Request) (*http.Response, error)
}

// SenderFunc позволяет использовать функцию как Sender.
type SenderFunc func(req *http.Request) (*http.Response, error)

// Send вызывает f(req).
func (f SenderFunc) Send(req *http.Request) (*http.Response, error) {
	return f(req)
}
