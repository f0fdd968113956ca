// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/trackertime"
)

// resolveID accepts a declared id or a declared name such as ET_LOGIN.
func resolveID(reg *registry.Registry, arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.Atoi(arg); err == nil {
		return id, nil
	}

	ids, err := reg.IDs()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if name, ok := reg.Name(id); ok && name == arg {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", reg.Kind(), arg)
}

func resolveIDs(reg *registry.Registry, args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := resolveID(reg, arg)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// jsonValue turns a flag value into a raw JSON message. Empty and
// literal null both mean "no value".
func jsonValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: %q is not valid JSON", domain.ErrEncoding, raw)
	}
	return json.RawMessage(raw), nil
}

// bound picks an encoded timestamp over unix seconds, falling back to def.
func bound(name, unix, encoded string, def trackertime.Timestamp) (trackertime.Timestamp, error) {
	switch {
	case unix != "" && encoded != "":
		return "", fmt.Errorf("--%s and --%s-ts are mutually exclusive", name, name)
	case encoded != "":
		return trackertime.Parse(encoded)
	case unix != "":
		return trackertime.FromUnixString(unix)
	}
	return def, nil
}

func userIDs(raw []int64) []domain.UserID {
	out := make([]domain.UserID, 0, len(raw))
	for _, id := range raw {
		out = append(out, domain.UserID(id))
	}
	return out
}

func compactJSON(raw json.RawMessage) string {
	if raw == nil {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
