package domain

import "fmt"

// Status — состояние жизненного цикла заявки.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusReviewing Status = "Reviewing"
	StatusAccepted  Status = "Accepted"
	StatusRejected  Status = "Rejected"
)

// ParseStatus преобразует строку в Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusReviewing, StatusAccepted, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal сообщает, является ли состояние конечным.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransition проверяет допустимость перехода. Из Open разрешён прямой
// переход в Accepted/Rejected, через Reviewing проходить не обязательно.
// Из конечных состояний переходов нет.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusOpen:
		return to == StatusReviewing || to == StatusAccepted || to == StatusRejected
	case StatusReviewing:
		return to == StatusAccepted || to == StatusRejected
	}
	return false
}

// InvalidTransitionError возвращается при попытке недопустимого перехода,
// в том числе любой мутации конечного состояния.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// EventRequest — заявка клиента на организацию события.
type EventRequest struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Date    string `json:"date"` // календарная дата, YYYY-MM-DD
	Status  Status `json:"status"`
	OwnerID string `json:"owner_id"`
}
