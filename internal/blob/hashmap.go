package blob

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
)

// HashMap is an array of 2^power bucket-head pointers, each heading an
// intrusive list of Flagellum(key, val) nodes: open addressing
// by bucket, chaining by list within a bucket. It is what a sparse
// compiled character state's explicit_trans is — a byte fully expanded
// into its own (key, successor-vector) pair once the builder decides the
// guard it came from falls under the GuardSizeKeep cutoff.
//
// Byte-string keys hash with XxHash64 under a fixed seed, part of the
// image contract so producer and consumer agree on bucket placement.
// cespare/xxhash exposes no seed parameter (its Digest always starts from
// XXH64's default seed), so the seed is folded in by hashing seed||key
// instead of calling a seeded primitive directly. Images are not portable
// across implementations anyway, and every build and lookup in this
// module goes through the same HashBytes, so buckets stay internally
// consistent.
const HashSeed uint64 = 1234

// HashBytes hashes an arbitrary-length byte-string key.
func HashBytes(key []byte) uint64 {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], HashSeed)
	h := xxhash.New()
	h.Write(seed[:])
	h.Write(key)
	return h.Sum64()
}

// HashByte is the identity hash used for single-byte keys.
func HashByte(b byte) uint64 { return uint64(b) }

func ReserveHashMapHeader(r *Reserve, buckets uint64) {
	r.Add(WordSize, 1, WordSize)
	r.Add(WordSize, buckets, WordSize)
}

// WriteHashMap writes the bucket-count header and buckets bucket-head
// pointer slots, then calls writeBucket(i, w) once per bucket, in order,
// to serialize that bucket's Flagellum chain (typically via
// WriteIntrusiveList); each slot is back-patched to wherever writeBucket
// placed its chain (NullRef for an empty bucket): header, then the
// bucket-pointer array, then the non-empty buckets' contents.
func WriteHashMap(w *Writer, buckets uint64, writeBucket func(i uint64, w *Writer) uint64) uint64 {
	w.Align(WordSize)
	start := w.PutU64(buckets)
	slots := make([]uint64, buckets)
	for i := uint64(0); i < buckets; i++ {
		slots[i] = w.PutU64(0)
	}
	for i := uint64(0); i < buckets; i++ {
		head := writeBucket(i, w)
		w.PatchU64(slots[i], head)
	}
	return start
}

// HashMap is a read-only view of a HashMap at a given offset.
type HashMap struct {
	buf []byte
	off uint64
}

func NewHashMap(buf []byte, off uint64) HashMap { return HashMap{buf, off} }

func (m HashMap) Buckets() uint64 { return readU64(m.buf, m.off) }

func (m HashMap) BucketHead(i uint64) uint64 {
	return readU64(m.buf, m.off+WordSize+i*WordSize)
}

// Find hashes key with hash, indexes into the bucket array by hash %
// Buckets(), then walks that bucket's Flagellum chain for an exact key
// match. keyWidth is the fixed key width the bucket's Flagellum nodes were
// built with.
func (m HashMap) Find(key []byte, hash, keyWidth uint64) (uint64, bool) {
	buckets := m.Buckets()
	if buckets == 0 {
		return 0, false
	}
	off := m.BucketHead(hash % buckets)
	for off != NullRef {
		node := NewListNode(m.buf, off)
		f := NewFlagellum(m.buf, node.ValueOff(), keyWidth)
		if bytesEqual(f.Key(), key) {
			return f.Val(), true
		}
		off = node.Next()
	}
	return 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ValidateHashMap(buf []byte, off, keyWidth uint64, ref func(uint64) error) error {
	if err := CheckField(buf, off, WordSize, WordSize); err != nil {
		return err
	}
	buckets := readU64(buf, off)
	if err := CheckField(buf, off, WordSize+buckets*WordSize, WordSize); err != nil {
		return err
	}
	m := NewHashMap(buf, off)
	for i := uint64(0); i < buckets; i++ {
		head := m.BucketHead(i)
		err := ValidateIntrusiveList(buf, head, func(valueOff uint64) error {
			if err := ValidateFlagellum(buf, valueOff, keyWidth); err != nil {
				return err
			}
			if ref == nil {
				return nil
			}
			return ref(NewFlagellum(buf, valueOff, keyWidth).Val())
		})
		if err != nil {
			return err
		}
	}
	return nil
}
