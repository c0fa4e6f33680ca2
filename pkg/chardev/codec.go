package chardev

import (
	"encoding/binary"
	"fmt"
)

// ValueSize is the wire size of one stack value.
const ValueSize = 4

// byteOrder matches the host order of the x86 driver the wire format comes from.
var byteOrder = binary.LittleEndian

// EncodeValue writes v into the first ValueSize bytes of dst.
func EncodeValue(dst []byte, v int32) error {
	if len(dst) < ValueSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrCopyFault, ValueSize, len(dst))
	}

	byteOrder.PutUint32(dst, uint32(v))

	return nil
}

// DecodeValue reads one value from the first ValueSize bytes of src.
func DecodeValue(src []byte) (int32, error) {
	if len(src) < ValueSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrCopyFault, ValueSize, len(src))
	}

	return int32(byteOrder.Uint32(src)), nil
}

// AppendValue appends the wire form of v to dst.
func AppendValue(dst []byte, v int32) []byte {
	return byteOrder.AppendUint32(dst, uint32(v))
}
