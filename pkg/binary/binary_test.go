// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binary

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSize(t *testing.T) {
	if got, want := Size(uint32(10)), uintptr(4); got != want {
		t.Errorf("Got = %d, want = %d", got, want)
	}
	if got, want := Size(&outer{}), uintptr(1+2+4+8+1+2+4+8+20+3+4); got != want {
		t.Errorf("Got = %d, want = %d", got, want)
	}
}

type blank struct {
	A uint32
	_ uint32
}

func TestPanic(t *testing.T) {
	tests := []struct {
		name string
		f    func()
		want string
	}{
		{"Unmarshal non-pointer", func() { Unmarshal(make([]byte, 4), LittleEndian, uint32(5)) }, "invalid type: uint32"},
		{"Unmarshal int", func() { var x int; Unmarshal(make([]byte, 8), LittleEndian, &x) }, "invalid type: int"},
		{"Marshal slice", func() { Marshal(nil, LittleEndian, []int32{5}) }, "invalid type: []int32"},
		{"Unmarshal short buffer", func() { var x int32; Unmarshal(make([]byte, 2), LittleEndian, &x) }, "buffer is 2 bytes"},
		{"Unmarshal long buffer", func() { var x int32; Unmarshal(make([]byte, 50), LittleEndian, &x) }, "buffer is 50 bytes"},
		{"MarshalInto short buffer", func() { MarshalInto(make([]byte, 3), LittleEndian, uint32(1)) }, "buffer of 3 bytes too short"},
		{"blank field", func() { Size(&blank{}) }, "binary.blank._"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if got := fmt.Sprint(r); !strings.HasPrefix(got, test.want) {
					t.Errorf("Got recover() = %q, want prefix = %q", got, test.want)
				}
			}()
			test.f()
		})
	}
}

type inner struct {
	Field int32
}

type outer struct {
	Int8   int8
	Int16  int16
	Int32  int32
	Int64  int64
	Uint8  uint8
	Uint16 uint16
	Uint32 uint32
	Uint64 uint64

	Array  [5]int32
	Bytes  [3]byte
	Struct inner
}

func TestMarshalUnmarshal(t *testing.T) {
	want := outer{
		-1, 2, -3, 4, 5, 6, 7, 8,
		[5]int32{9, 10, 11, 12, 13},
		[3]byte{'a', 'b', 'c'},
		inner{-17},
	}
	buf := Marshal(nil, LittleEndian, &want)
	if got, want := uintptr(len(buf)), Size(&want); got != want {
		t.Fatalf("len(Marshal) = %d, want %d", got, want)
	}
	var got outer
	Unmarshal(buf, LittleEndian, &got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalByteOrder(t *testing.T) {
	type rec struct {
		A uint16
		B uint32
	}
	got := Marshal([]byte{0xff}, LittleEndian, rec{A: 0x0102, B: 0x03040506})
	want := []byte{0xff, 0x02, 0x01, 0x06, 0x05, 0x04, 0x03}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Marshal mismatch (-want +got):\n%s", diff)
	}
}

func TestUint32s(t *testing.T) {
	src := []uint32{1, 0, 0xdeadbeef, 42}
	buf := make([]byte, 16)
	PutUint32s(buf, LittleEndian, src)

	dst := make([]uint32, 4)
	if n := Uint32s(dst, LittleEndian, buf); n != 4 {
		t.Fatalf("Uint32s decoded %d values, want 4", n)
	}
	if diff := cmp.Diff(src, dst); diff != "" {
		t.Errorf("Uint32s mismatch (-want +got):\n%s", diff)
	}

	short := make([]uint32, 2)
	if n := Uint32s(short, LittleEndian, buf); n != 2 || short[1] != 0 {
		t.Errorf("Uint32s into short slice = %d %v", n, short)
	}
}

func BenchmarkMarshalUnmarshal(b *testing.B) {
	b.ReportAllocs()

	in := outer{Int32: 3, Array: [5]int32{9, 10, 11, 12, 13}}
	buf := make([]byte, Size(&in))
	var out outer

	for i := 0; i < b.N; i++ {
		MarshalInto(buf, LittleEndian, &in)
		Unmarshal(buf, LittleEndian, &out)
	}
}
