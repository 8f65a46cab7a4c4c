package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultMultiplier = 37
	defaultHashcode   = 17
)

// Key is an ordered, append-only fingerprint of a statement invocation.
// Two keys are equal when they accumulated the same canonical components in the same order.
type Key struct {
	multiplier uint64
	hashcode   uint64
	checksum   uint64
	count      int
	components []string
	serializer KeySerializer
	frozen     bool
}

// NullKey is a sentinel key that refuses updates. It never matches a real key.
var NullKey = &Key{multiplier: defaultMultiplier, hashcode: defaultHashcode, frozen: true}

// NewKey returns an empty key using the default component serializer.
func NewKey() *Key {
	return NewKeyWithSerializer(NewDefaultKeySerializer())
}

// NewKeyWithSerializer returns an empty key that canonicalises components with serializer.
func NewKeyWithSerializer(serializer KeySerializer) *Key {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return &Key{
		multiplier: defaultMultiplier,
		hashcode:   defaultHashcode,
		serializer: serializer,
	}
}

// Update appends one component and returns the key.
// Updating NullKey is a no-op.
func (k *Key) Update(component any) *Key {
	if k.frozen {
		return k
	}

	canonical := k.serializer.SerializeComponent(component)
	base := xxhash.Sum64String(canonical)

	k.count++
	k.checksum += base
	base *= uint64(k.count)

	k.hashcode = k.multiplier*k.hashcode + base
	k.components = append(k.components, canonical)
	return k
}

// UpdateAll appends every component in order.
func (k *Key) UpdateAll(components ...any) *Key {
	for _, c := range components {
		k.Update(c)
	}
	return k
}

// Hash returns the running hash.
func (k *Key) Hash() uint64 {
	return k.hashcode
}

// Count returns the number of components appended so far.
func (k *Key) Count() int {
	return k.count
}

// Equal reports whether both keys accumulated the identical ordered component sequence.
func (k *Key) Equal(other *Key) bool {
	if k == other {
		return true
	}
	if k == nil || other == nil {
		return false
	}
	if k.hashcode != other.hashcode || k.checksum != other.checksum || k.count != other.count {
		return false
	}
	for i := range k.components {
		if k.components[i] != other.components[i] {
			return false
		}
	}
	return true
}

// String returns the canonical fingerprint used as the storage key in maps and shared caches.
func (k *Key) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(k.hashcode, 16))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(k.checksum, 16))
	for _, c := range k.components {
		b.WriteString(KeySeparator)
		b.WriteString(c)
	}
	return b.String()
}

// Clone returns an independent copy that can keep growing without affecting k.
func (k *Key) Clone() *Key {
	clone := *k
	clone.components = append([]string(nil), k.components...)
	clone.frozen = false
	if clone.serializer == nil {
		clone.serializer = NewDefaultKeySerializer()
	}
	return &clone
}
