package requery

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Key is the canonical identifier for one logical query. Keys built from
// equal part sequences compare equal regardless of construction path, so they
// always resolve to the same cache slot. The zero Key is invalid.
type Key struct {
	canonical string
}

// NewKey canonicalizes an ordered sequence of primitive parts (strings,
// booleans, integers, floats) into a Key. Unsupported part types return a
// configuration error.
func NewKey(parts ...any) (Key, error) {
	if len(parts) == 0 {
		return Key{}, newConfigurationError("query key needs at least one part", nil)
	}

	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteByte('/')
		}
		seg, err := canonicalSegment(part)
		if err != nil {
			return Key{}, err
		}
		b.WriteString(seg)
	}
	return Key{canonical: b.String()}, nil
}

// MustKey is like NewKey but panics on invalid parts. Intended for key
// literals known to be valid at compile time.
func MustKey(parts ...any) Key {
	k, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

// KeyFromString rebuilds a Key from its canonical string form, as produced by
// String. Used when restoring dehydrated queries.
func KeyFromString(canonical string) (Key, error) {
	if canonical == "" {
		return Key{}, newConfigurationError("canonical key must not be empty", nil)
	}
	return Key{canonical: canonical}, nil
}

// canonicalSegment renders one key part with a type tag so that, for example,
// the string "1" and the integer 1 never collide.
func canonicalSegment(part any) (string, error) {
	switch v := part.(type) {
	case string:
		return "s" + strconv.Quote(v), nil
	case bool:
		return "b:" + strconv.FormatBool(v), nil
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10), nil
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10), nil
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10), nil
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10), nil
	case int64:
		return "i:" + strconv.FormatInt(v, 10), nil
	case uint:
		return "u:" + strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return "u:" + strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return "u:" + strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return "u:" + strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return "u:" + strconv.FormatUint(v, 10), nil
	case float32:
		return "f:" + strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", newConfigurationError(
			fmt.Sprintf("unsupported key part type %T", part), nil)
	}
}

// String returns the canonical string form of the key.
func (k Key) String() string {
	return k.canonical
}

// IsZero reports whether the key is the invalid zero value.
func (k Key) IsZero() bool {
	return k.canonical == ""
}

// Hash returns a stable 64-bit hash of the canonical form.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(k.canonical))
	return h.Sum64()
}
