package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// DocumentID непрозрачный стабильный идентификатор одной записи
type DocumentID string

// Well-known поля, которые сессия проставляет сама
const (
	FieldID         = "id"
	FieldModifiedAt = "modifiedAt"
	FieldModifiedBy = "modifiedBy"
	FieldResolvedAt = "resolvedAt"
	FieldResolvedBy = "resolvedBy"
)

// ValueKind тип значения поля документа
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindList   ValueKind = "list"
)

// Value представляет значение поля документа: строка, число или список строк.
// Используется tagged union вместо any, чтобы merge и сравнение конфликтов
// оставались типизированными.
type Value struct {
	Kind ValueKind `cbor:"k"`
	Str  string    `cbor:"s,omitempty"`
	List []string  `cbor:"l,omitempty"`
	Num  float64   `cbor:"n,omitempty"`
}

// String создает строковое значение
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number создает числовое значение
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// List создает значение-список строк
func List(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{Kind: KindList, List: list}
}

// Equal сравнивает значения по содержимому
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindList:
		return slices.Equal(v.List, other.List)
	default:
		return true
	}
}

// Clone создает глубокую копию значения
func (v Value) Clone() Value {
	if v.List != nil {
		list := make([]string, len(v.List))
		copy(list, v.List)
		v.List = list
	}
	return v
}

// String возвращает человекочитаемое представление (для CLI)
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindList:
		return strings.Join(v.List, ",")
	default:
		return ""
	}
}

// MarshalJSON кодирует значение как обычный JSON scalar или массив
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

// UnmarshalJSON принимает строку, число или массив строк
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case []any:
		items := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("list item %d is not a string", i)
			}
			items = append(items, s)
		}
		*v = List(items...)
	default:
		return fmt.Errorf("unsupported value type %T", raw)
	}
	return nil
}

// ParseValue разбирает значение из CLI аргумента:
// конечное число -> number, строка с запятыми -> list, иначе string
func ParseValue(s string) Value {
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return Number(n)
	}
	if strings.Contains(s, ",") {
		return List(strings.Split(s, ",")...)
	}
	return String(s)
}

// Fields плоское представление документа: имя поля -> значение
type Fields map[string]Value

// Clone создает глубокую копию
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v.Clone()
	}
	return out
}

// Equal сравнивает два представления по значению
func (f Fields) Equal(other Fields) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys возвращает имена полей в отсортированном порядке
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
