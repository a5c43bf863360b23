// Package ulid provides prefixed, sortable identifiers for linkmark entities
// built on github.com/oklog/ulid/v2.
//
// ULIDs are lexicographically sortable by creation time, which makes them a
// good fit for primary keys in the local SQLite store. A short prefix keeps
// IDs self-describing in logs and sync payloads.
package ulid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the different entity families
const (
	// PrefixLink is used for link IDs
	PrefixLink = "lnk"

	// PrefixCollection is used for collection IDs
	PrefixCollection = "col"

	// PrefixOperation is used for sync operation IDs
	PrefixOperation = "op"

	// PrefixSync is used for sync log IDs
	PrefixSync = "sync"

	// PrefixSetting is used for setting IDs
	PrefixSetting = "set"

	// PrefixSeparator separates the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// Generate creates a new bare ULID string with the current timestamp.
func Generate() string {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyLock.Unlock()
	return id.String()
}

// GenerateWithPrefix creates a new ULID string with the given prefix,
// in the form "prefix-01AN4Z07BY79KA1307SR9X4MV3".
func GenerateWithPrefix(prefix string) string {
	if prefix == "" {
		return Generate()
	}
	return prefix + PrefixSeparator + Generate()
}

// Validate checks whether a string is a valid (optionally prefixed) ULID.
func Validate(id string) bool {
	raw := id
	if i := strings.Index(id, PrefixSeparator); i >= 0 {
		raw = id[i+1:]
	}
	_, err := ulid.Parse(raw)
	return err == nil
}

// Time returns the timestamp component of an (optionally prefixed) ULID.
func Time(id string) (time.Time, error) {
	raw := id
	if i := strings.Index(id, PrefixSeparator); i >= 0 {
		raw = id[i+1:]
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// LinkID generates a new ULID with the link prefix
func LinkID() string {
	return GenerateWithPrefix(PrefixLink)
}

// CollectionID generates a new ULID with the collection prefix
func CollectionID() string {
	return GenerateWithPrefix(PrefixCollection)
}

// OperationID generates a new ULID with the operation prefix
func OperationID() string {
	return GenerateWithPrefix(PrefixOperation)
}

// SyncID generates a new ULID with the sync log prefix
func SyncID() string {
	return GenerateWithPrefix(PrefixSync)
}

// SettingID generates a new ULID with the setting prefix
func SettingID() string {
	return GenerateWithPrefix(PrefixSetting)
}
