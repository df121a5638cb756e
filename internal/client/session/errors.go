package session

import "errors"

var (
	// ErrSessionClosed операция над закрытой сессией
	ErrSessionClosed = errors.New("session is closed")

	// ErrAlreadyOpen документ уже открыт в этом процессе
	ErrAlreadyOpen = errors.New("document is already open")

	// ErrReservedField поле управляется сессией и не может быть записано напрямую
	ErrReservedField = errors.New("field is reserved")

	// ErrInvalidValue значение поля нельзя сохранить и сравнить
	ErrInvalidValue = errors.New("invalid field value")

	// ErrUnresolvedConflict синхронизация невозможна до разрешения конфликта
	ErrUnresolvedConflict = errors.New("document has an unresolved conflict")

	// ErrNoEndpoint не задан endpoint доставки
	ErrNoEndpoint = errors.New("sync endpoint is not configured")
)
