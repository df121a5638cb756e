package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/iudanet/docsync/internal/models"
)

// FieldNamePattern определяет допустимый формат имени поля документа
// Латинские буквы, цифры, '_', '-', '.'; первая - буква
var FieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.\-]{0,63}$`)

const (
	// MaxDocumentIDLen максимальная длина идентификатора документа в байтах
	MaxDocumentIDLen = 128
)

// ValidateDocumentID проверяет идентификатор документа.
// Идентификатор становится сегментом URL при доставке, поэтому '/' запрещен.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	if len(id) > MaxDocumentIDLen {
		return fmt.Errorf("document id must not exceed %d bytes", MaxDocumentIDLen)
	}

	if strings.Contains(id, "/") {
		return fmt.Errorf("document id must not contain '/'")
	}

	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return fmt.Errorf("document id must not contain control characters")
	}

	return nil
}

// ValidateFieldName проверяет имя поля документа
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}

	if !FieldNamePattern.MatchString(name) {
		return fmt.Errorf("field name %q must start with a letter and contain only letters, digits, '_', '-', '.' (max 64)", name)
	}

	return nil
}

// ValidateValue проверяет значение поля: известный тип и конечное число.
// NaN не равен сам себе, поэтому одинаковые состояния сравнивались бы как разные.
func ValidateValue(value models.Value) error {
	switch value.Kind {
	case models.KindString, models.KindList:
		return nil
	case models.KindNumber:
		if math.IsNaN(value.Num) || math.IsInf(value.Num, 0) {
			return fmt.Errorf("number value must be finite, got %v", value.Num)
		}
		return nil
	case "":
		return fmt.Errorf("value kind cannot be empty")
	default:
		return fmt.Errorf("unknown value kind %q", value.Kind)
	}
}
