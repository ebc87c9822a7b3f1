package domain

import "encoding/json"

// Op — нормализованная операция события изменения.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpUnknown Op = "unknown"
)

// Имена коллекций, по которым рассылаются события изменений.
const (
	CollectionRequests = "event_requests"
	CollectionUsers    = "users"
	CollectionMessages = "messages"
)

// PushPayload — сырое сообщение push-канала в том виде, в каком его пишет
// сервер. Тег операции здесь произвольный (INSERT/UPDATE/DELETE от хранилища),
// клиент обязан нормализовать его в Op. Old заполняется только для update
// и содержит предыдущую версию записи.
type PushPayload struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	Record     json.RawMessage `json:"record"`
	Old        json.RawMessage `json:"old,omitempty"`
}

// ChangeEvent — нормализованное событие изменения, единственная форма,
// в которой события попадают в локальные хранилища.
type ChangeEvent struct {
	Op         Op              `json:"operation"`
	Collection string          `json:"collection"`
	Entity     json.RawMessage `json:"entity"`
	Prev       json.RawMessage `json:"prev,omitempty"`
}
