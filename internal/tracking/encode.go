// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/adiadia/tracker/internal/domain"
)

// encodeValue renders v as JSON. A nil v yields a nil message.
func encodeValue(v any) (json.RawMessage, error) {
	switch raw := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if raw == nil {
			return nil, nil
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: invalid raw JSON", domain.ErrEncoding)
		}
		return compact(raw)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	return data, nil
}

func compact(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	return buf.Bytes(), nil
}
