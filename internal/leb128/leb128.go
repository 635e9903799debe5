// Package leb128 decodes the variable-length integers used throughout the
// WebAssembly binary format.
package leb128

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow32 is returned when a varint exceeds 32 bits.
	ErrOverflow32 = errors.New("overflows a 32-bit integer")
	// ErrOverflow33 is returned when a varint exceeds 33 bits.
	ErrOverflow33 = errors.New("overflows a 33-bit integer")
	// ErrOverflow64 is returned when a varint exceeds 64 bits.
	ErrOverflow64 = errors.New("overflows a 64-bit integer")
	// ErrTruncated is returned when the input ends mid-varint.
	ErrTruncated = errors.New("truncated integer")
)

// LoadUint32 reads an unsigned 32-bit varint from the head of buf, returning
// the value and the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := LoadUint64(buf)
	if err != nil {
		return 0, 0, err
	} else if n > 5 || v > 0xffffffff {
		return 0, 0, ErrOverflow32
	}
	return uint32(v), n, nil
}

// LoadUint64 reads an unsigned 64-bit varint from the head of buf.
func LoadUint64(buf []byte) (ret uint64, n uint64, err error) {
	for shift := 0; shift < 70; shift += 7 {
		if int(n) >= len(buf) {
			return 0, 0, ErrTruncated
		}
		b := buf[n]
		n++
		if shift == 63 && b > 1 {
			return 0, 0, ErrOverflow64
		}
		ret |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return ret, n, nil
		}
	}
	return 0, 0, ErrOverflow64
}

// LoadInt32 reads a signed 32-bit varint from the head of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadSigned(buf, 32)
	if err != nil {
		if errors.Is(err, errOverflow) {
			err = ErrOverflow32
		}
		return 0, 0, err
	}
	return int32(v), n, nil
}

// LoadInt33 reads a signed 33-bit varint from the head of buf. The extra bit
// distinguishes negative block-type sentinels from type-section indexes.
func LoadInt33(buf []byte) (int64, uint64, error) {
	v, n, err := loadSigned(buf, 33)
	if err != nil {
		if errors.Is(err, errOverflow) {
			err = ErrOverflow33
		}
		return 0, 0, err
	}
	return v, n, nil
}

// LoadInt64 reads a signed 64-bit varint from the head of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	v, n, err := loadSigned(buf, 64)
	if err != nil {
		if errors.Is(err, errOverflow) {
			err = ErrOverflow64
		}
		return 0, 0, err
	}
	return v, n, nil
}

var errOverflow = errors.New("leb128: overflow")

func loadSigned(buf []byte, bits int) (ret int64, n uint64, err error) {
	maxBytes := uint64((bits + 6) / 7)
	var shift int
	for {
		if int(n) >= len(buf) {
			return 0, 0, ErrTruncated
		}
		b := buf[n]
		n++
		if n > maxBytes {
			return 0, 0, fmt.Errorf("%w: more than %d bits", errOverflow, bits)
		}
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 != 0 {
			continue
		}
		if shift > bits {
			// The excess bits of the final byte must replicate the sign bit.
			used := bits - (shift - 7)
			payload := b & 0x7f
			excess := payload >> used
			if sign := payload >> (used - 1) & 1; sign == 0 && excess != 0 {
				return 0, 0, fmt.Errorf("%w: more than %d bits", errOverflow, bits)
			} else if sign == 1 && excess != 0x7f>>used {
				return 0, 0, fmt.Errorf("%w: more than %d bits", errOverflow, bits)
			}
		}
		if shift < 64 && b&0x40 != 0 {
			ret |= -1 << shift
		}
		return ret, n, nil
	}
}
