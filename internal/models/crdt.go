package models

// FieldEntry представляет LWW-регистр одного поля документа.
// Побеждает запись с большим Lamport timestamp, при равенстве - с большим NodeID.
type FieldEntry struct {
	NodeID    string `cbor:"n"` // NodeID идентификатор узла, записавшего эту версию
	Value     Value  `cbor:"v"` // Value текущее значение поля
	Timestamp int64  `cbor:"t"` // Timestamp Lamport timestamp записи
	Deleted   bool   `cbor:"d,omitempty"`
}

// IsNewerThan сравнивает две версии поля по правилу LWW (Last-Write-Wins):
// 1. Сначала сравнивается Timestamp (больший выигрывает)
// 2. При равных Timestamp сравнивается NodeID (лексикографически)
func (e *FieldEntry) IsNewerThan(other *FieldEntry) bool {
	if e.Timestamp > other.Timestamp {
		return true
	}
	if e.Timestamp < other.Timestamp {
		return false
	}
	// Timestamps равны - сравниваем NodeID для детерминизма
	return e.NodeID > other.NodeID
}

// Clone создает глубокую копию версии поля
func (e *FieldEntry) Clone() *FieldEntry {
	return &FieldEntry{
		NodeID:    e.NodeID,
		Value:     e.Value.Clone(),
		Timestamp: e.Timestamp,
		Deleted:   e.Deleted,
	}
}
