package wasm

import (
	"bytes"
	"math"
	"testing"
)

func TestULEB128(t *testing.T) {
	tests := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{math.MaxUint32, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}

	for _, tt := range tests {
		got := AppendULEB128(nil, tt.v)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AppendULEB128(%d) = %x, want %x", tt.v, got, tt.want)
		}
		v, n := ReadULEB128(got)
		if v != tt.v || n != len(got) {
			t.Errorf("ReadULEB128(%x) = %d, %d", got, v, n)
		}
	}
}

func TestSLEB128(t *testing.T) {
	tests := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xbf, 0x7f}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}

	for _, tt := range tests {
		got := AppendSLEB128(nil, tt.v)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AppendSLEB128(%d) = %x, want %x", tt.v, got, tt.want)
		}
		v, n := ReadSLEB128(got)
		if v != tt.v || n != len(got) {
			t.Errorf("ReadSLEB128(%x) = %d, %d", got, v, n)
		}
	}
}

func TestReadLEB128Truncated(t *testing.T) {
	if _, n := ReadULEB128([]byte{0x80, 0x80}); n != 0 {
		t.Errorf("expected truncation, consumed %d", n)
	}
	if _, n := ReadSLEB128(nil); n != 0 {
		t.Errorf("expected truncation, consumed %d", n)
	}
}
