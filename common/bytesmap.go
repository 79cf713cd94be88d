package common

// ByteSliceMap is a map keyed by byte slice content rather than identity.
// A PartitionShard uses one to count the distinct encoded routing-parameter
// values it has sent, for its high-cardinality diagnostic.
type ByteSliceMap struct {
	m map[string][]byte
}

func NewByteSliceMap() *ByteSliceMap {
	return &ByteSliceMap{m: make(map[string][]byte)}
}

func (b *ByteSliceMap) Put(k, v []byte) {
	b.m[ByteSliceToStringZeroCopy(k)] = v
}

func (b *ByteSliceMap) Get(k []byte) ([]byte, bool) {
	v, ok := b.m[ByteSliceToStringZeroCopy(k)]
	return v, ok
}

func (b *ByteSliceMap) Delete(k []byte) {
	delete(b.m, ByteSliceToStringZeroCopy(k))
}

func (b *ByteSliceMap) Len() int {
	return len(b.m)
}
