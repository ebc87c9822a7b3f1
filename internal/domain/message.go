package domain

// Message — сообщение, адресованное роли. Счётчик непрочитанных строится
// по полям RecipientRole и IsRead.
type Message struct {
	ID            int64  `json:"id"`
	RecipientRole Role   `json:"recipient_role"`
	Body          string `json:"body"`
	IsRead        bool   `json:"is_read"`
}
