package snapshot

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
)

// Diff computes an RFC 7386 merge patch turning document a into
// document b.
func Diff(a, b *Doc) ([]byte, error) {
	from, err := Encode(a)
	if err != nil {
		return nil, err
	}
	to, err := Encode(b)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(from, to)
	if err != nil {
		return nil, fmt.Errorf("diff snapshot: %w", err)
	}
	return patch, nil
}

// ApplyPatch applies a JSON patch to the document and returns the
// result. With rfc6902 the patch is an RFC 6902 operation list,
// otherwise an RFC 7386 merge patch. The patched document is validated
// before it is returned.
func ApplyPatch(d *Doc, patch []byte, rfc6902 bool) (*Doc, error) {
	data, err := Encode(d)
	if err != nil {
		return nil, err
	}
	var out []byte
	if rfc6902 {
		ops, err := jsonpatch.DecodePatch(patch)
		if err != nil {
			return nil, fmt.Errorf("apply patch: %w", err)
		}
		out, err = ops.Apply(data)
		if err != nil {
			return nil, fmt.Errorf("apply patch: %w", err)
		}
	} else {
		out, err = jsonpatch.MergePatch(data, patch)
		if err != nil {
			return nil, fmt.Errorf("apply patch: %w", err)
		}
	}
	return Decode(out)
}
