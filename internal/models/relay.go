package models

import "time"

// PropertyState состояние документа на relay-сервере:
// слияние всех принятых обновлений
type PropertyState struct {
	UpdatedAt time.Time
	ID        DocumentID
	UserID    string // автор последнего принятого обновления
	State     []byte
	Revision  int64
}

// RelayMessage запись журнала рассылки. Журнал читают клиенты
// резервного режима опроса, курсор - Seq.
type RelayMessage struct {
	CreatedAt time.Time
	Origin    string // clientId отправителя, пусто для HTTP доставки
	Payload   []byte
	Seq       int64
}
