package crdt

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/validation"
)

const snapshotVersion = 1

// wireState формат снимка документа на диске и в сети
type wireState struct {
	Fields  map[string]*models.FieldEntry `cbor:"f"`
	Clock   int64                         `cbor:"c"`
	Version int                           `cbor:"v"`
}

// детерминированный режим: одинаковое состояние дает одинаковые байты
var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func encodeState(state *wireState) ([]byte, error) {
	data, err := encMode.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*wireState, error) {
	if len(data) == 0 {
		return nil, &EncodingError{Err: fmt.Errorf("empty payload")}
	}

	var state wireState
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, &EncodingError{Err: err}
	}
	if state.Version != snapshotVersion {
		return nil, &EncodingError{Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)}
	}

	for name, entry := range state.Fields {
		if entry == nil {
			return nil, &EncodingError{Err: fmt.Errorf("field %q has no entry", name)}
		}
		if entry.Deleted {
			continue
		}
		if err := validation.ValidateValue(entry.Value); err != nil {
			return nil, &EncodingError{Err: fmt.Errorf("field %q: %w", name, err)}
		}
	}

	return &state, nil
}
