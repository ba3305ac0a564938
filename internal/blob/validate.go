package blob

import "github.com/aledsdavies/configmaton/internal/cerrors"

// corrupt builds the ImageCorrupt error used throughout the container
// Validate methods below.
func corrupt(format string, args ...any) *cerrors.Error {
	return cerrors.Newf(cerrors.ImageCorrupt, format, args...)
}

// CheckField validates that an n-byte, align-aligned field at off lies
// inside buf. Every container's Validate method is built out of calls to
// this and to CheckRef.
func CheckField(buf []byte, off, n, align uint64) error {
	if !Aligned(off, align) {
		return corrupt("misaligned field at offset %d (align %d)", off, align)
	}
	if !InBounds(buf, off, n) {
		return corrupt("field at offset %d (len %d) out of bounds (buf len %d)", off, n, len(buf))
	}
	return nil
}

// CheckRef validates a stored pointer: it must either be NullRef or refer
// to a word-aligned, in-bounds location.
func CheckRef(buf []byte, ref uint64) error {
	if ref == NullRef {
		return nil
	}
	return CheckField(buf, ref, WordSize, WordSize)
}
