package blocktree

import (
	"bytes"
	"encoding/base64"
)

// Version is an opaque token identifying a point in one backend's change
// history. Tokens are totally ordered within the backend instance that
// issued them and are meaningless anywhere else; callers only pass them
// back to the same store (crdtstore additionally accepts tokens issued
// by earlier opens of the same persistent store).
type Version []byte

// IsZero reports whether v is the empty token, which WatchChangesSince
// interprets as "from the beginning".
func (v Version) IsZero() bool {
	return len(v) == 0
}

// Equal reports byte equality of two tokens.
func (v Version) Equal(o Version) bool {
	return bytes.Equal(v, o)
}

// String renders the token in base64 for logs and the CLI.
func (v Version) String() string {
	return base64.StdEncoding.EncodeToString(v)
}

// ParseVersion decodes a base64 token produced by Version.String.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return Version(b), nil
}
