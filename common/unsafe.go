package common

import "unsafe"

// ByteSliceToStringZeroCopy reinterprets b as a string without copying.
// Callers must not mutate b afterwards - it's intended for short-lived map
// lookups and encoding, not for values that outlive their backing buffer.
func ByteSliceToStringZeroCopy(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToByteSliceZeroCopy reinterprets s as a byte slice without copying.
// The returned slice must not be mutated.
func StringToByteSliceZeroCopy(s string) []byte {
	if len(s) == 0 {
		return []byte{}
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
