package crdt

import (
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

// Document представляет реплицируемый документ: LWW-Element-Map, где каждое
// поле - отдельный LWW-регистр (timestamp Лампорта + nodeID).
// Слияние коммутативно, ассоциативно и идемпотентно.
type Document struct {
	fields map[string]*models.FieldEntry
	clock  *LamportClock
	mu     sync.RWMutex
}

// NewDocument создает пустой документ для узла nodeID
func NewDocument(nodeID string) *Document {
	return &Document{
		fields: make(map[string]*models.FieldEntry),
		clock:  NewLamportClock(nodeID),
	}
}

// Decode восстанавливает документ из снимка.
// Ошибка формата возвращается как *EncodingError.
func Decode(data []byte, nodeID string) (*Document, error) {
	state, err := decodeState(data)
	if err != nil {
		return nil, err
	}

	doc := NewDocument(nodeID)
	for name, entry := range state.Fields {
		doc.fields[name] = entry.Clone()
	}
	doc.clock.Observe(state.Clock)

	return doc, nil
}

// Txn набор изменений, применяемых одной транзакцией.
// Все записи транзакции получают один и тот же timestamp.
type Txn struct {
	doc       *Document
	nodeID    string
	timestamp int64
	changed   bool
}

// Set записывает значение поля
func (tx *Txn) Set(name string, value models.Value) {
	tx.doc.fields[name] = &models.FieldEntry{
		NodeID:    tx.nodeID,
		Value:     value.Clone(),
		Timestamp: tx.timestamp,
	}
	tx.changed = true
}

// Delete помечает поле как удаленное (tombstone)
func (tx *Txn) Delete(name string) {
	entry := &models.FieldEntry{
		NodeID:    tx.nodeID,
		Timestamp: tx.timestamp,
		Deleted:   true,
	}
	if existing, ok := tx.doc.fields[name]; ok {
		entry.Value = existing.Value.Clone()
	}
	tx.doc.fields[name] = entry
	tx.changed = true
}

// Clear помечает все живые поля как удаленные
func (tx *Txn) Clear() {
	for name, entry := range tx.doc.fields {
		if !entry.Deleted {
			tx.Delete(name)
		}
	}
}

// Transact применяет fn атомарно: наблюдатели документа видят либо
// состояние до транзакции, либо после. Возвращает true, если что-то изменилось.
func (d *Document) Transact(fn func(tx *Txn)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &Txn{
		doc:       d,
		nodeID:    d.clock.NodeID(),
		timestamp: d.clock.Tick(),
	}
	fn(tx)

	return tx.changed
}

// Merge объединяет документ с другим по правилу LWW.
// Возвращает количество полей, которые были обновлены.
func (d *Document) Merge(other *Document) int {
	if other == d {
		return 0
	}

	other.mu.RLock()
	incoming := make(map[string]*models.FieldEntry, len(other.fields))
	for name, entry := range other.fields {
		incoming[name] = entry.Clone()
	}
	remoteClock := other.clock.Now()
	other.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	updated := 0
	for name, entry := range incoming {
		existing, exists := d.fields[name]

		// Если поля нет или входящая версия новее - принимаем
		if !exists || entry.IsNewerThan(existing) {
			d.fields[name] = entry
			updated++
		}

		d.clock.Observe(entry.Timestamp)
	}
	d.clock.Observe(remoteClock)

	return updated
}

// Apply декодирует обновление и сливает его в документ
func (d *Document) Apply(update []byte) (int, error) {
	remote, err := Decode(update, "")
	if err != nil {
		return 0, err
	}
	return d.Merge(remote), nil
}

// Encode возвращает полный снимок состояния (state-based sync)
func (d *Document) Encode() ([]byte, error) {
	d.mu.RLock()
	state := &wireState{
		Fields:  make(map[string]*models.FieldEntry, len(d.fields)),
		Clock:   d.clock.Now(),
		Version: snapshotVersion,
	}
	for name, entry := range d.fields {
		state.Fields[name] = entry.Clone()
	}
	d.mu.RUnlock()

	return encodeState(state)
}

// View возвращает плоское представление живых полей
func (d *Document) View() models.Fields {
	d.mu.RLock()
	defer d.mu.RUnlock()

	view := make(models.Fields, len(d.fields))
	for name, entry := range d.fields {
		if !entry.Deleted {
			view[name] = entry.Value.Clone()
		}
	}
	return view
}

// Get возвращает значение поля, если оно существует и не удалено
func (d *Document) Get(name string) (models.Value, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.fields[name]
	if !ok || entry.Deleted {
		return models.Value{}, false
	}
	return entry.Value.Clone(), true
}

// NodeID возвращает идентификатор узла-владельца
func (d *Document) NodeID() string {
	return d.clock.NodeID()
}
