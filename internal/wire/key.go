package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KeyType is the two-letter prefix of a composite key.
type KeyType string

// Known entity key prefixes.
const (
	KeyAssignee    KeyType = "AS"
	KeyStatus      KeyType = "ST"
	KeyUnitModel   KeyType = "UM"
	KeyRepairOrder KeyType = "RO"
	KeyRepairUnit  KeyType = "RU"
)

// ErrInvalidKey is returned when a composite key string cannot be decoded.
var ErrInvalidKey = errors.New("invalid composite key")

var knownKeyTypes = map[KeyType]struct{}{
	KeyAssignee:    {},
	KeyStatus:      {},
	KeyUnitModel:   {},
	KeyRepairOrder: {},
	KeyRepairUnit:  {},
}

// Key encodes an entity type and numeric id as a composite key string,
// e.g. Key(KeyRepairOrder, 7) == "RO-7".
func Key(t KeyType, id int64) string {
	return fmt.Sprintf("%s-%d", t, id)
}

// ParseKey decodes a composite key string. It is the inverse of Key for all
// valid (type, positive id) pairs. Malformed input (wrong segment count,
// unknown prefix, non-numeric or non-positive id) returns ErrInvalidKey; it
// never panics.
func ParseKey(s string) (KeyType, int64, error) {
	prefix, idPart, found := strings.Cut(s, "-")
	if !found || prefix == "" || idPart == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	// A second separator means the id segment is not purely numeric.
	if strings.Contains(idPart, "-") {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	t := KeyType(prefix)
	if _, ok := knownKeyTypes[t]; !ok {
		return "", 0, fmt.Errorf("%w: unknown prefix %q", ErrInvalidKey, prefix)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	return t, id, nil
}
