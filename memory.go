package wasmosis

// Memory is a module's isolated memory arena. The kernel never hands a
// module a pointer into another module's arena; buffer transfers copy
// through Read and Write.
type Memory interface {
	// Read returns a copy of length bytes starting at offset.
	Read(offset, length uint32) ([]byte, error)
	// Write copies data into the arena at offset.
	Write(offset uint32, data []byte) error
	// Size returns the current arena size in bytes.
	Size() uint32
}

// InBounds reports whether [offset, offset+length) lies inside a memory of
// the given size.
func InBounds(offset, length, size uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(size)
}
