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

// Package binary translates between fixed-layout records and their on-disk
// byte representation.
//
// Records are composed of fixed-width signed and unsigned integers, byte
// arrays, arrays of the former and nested structs. Fields are laid out in
// declaration order with no implicit padding, which is what on-disk formats
// such as ext2 expect. Blank (_) fields are not supported: reserved areas
// must be named so that they survive a decode/encode cycle unchanged.
package binary

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// LittleEndian is the same as encoding/binary.LittleEndian.
//
// It is included here as a convenience.
var LittleEndian = binary.LittleEndian

// Marshal appends the encoding of data to buf and returns the result.
//
// data may be a pointer, but cannot contain pointers.
func Marshal(buf []byte, order binary.ByteOrder, data any) []byte {
	v := reflect.Indirect(reflect.ValueOf(data))
	start := len(buf)
	buf = append(buf, make([]byte, sizeof(v))...)
	encode(buf[start:], order, v)
	return buf
}

// MarshalInto encodes data into the first Size(data) bytes of dst.
func MarshalInto(dst []byte, order binary.ByteOrder, data any) {
	v := reflect.Indirect(reflect.ValueOf(data))
	if n := sizeof(v); uintptr(len(dst)) < n {
		panic(fmt.Sprintf("buffer of %d bytes too short for %s (%d bytes)", len(dst), v.Type(), n))
	}
	encode(dst, order, v)
}

func encode(buf []byte, order binary.ByteOrder, v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Uint8:
		buf[0] = uint8(v.Uint())
		return buf[1:]
	case reflect.Int8:
		buf[0] = uint8(v.Int())
		return buf[1:]
	case reflect.Uint16:
		order.PutUint16(buf, uint16(v.Uint()))
		return buf[2:]
	case reflect.Int16:
		order.PutUint16(buf, uint16(v.Int()))
		return buf[2:]
	case reflect.Uint32:
		order.PutUint32(buf, uint32(v.Uint()))
		return buf[4:]
	case reflect.Int32:
		order.PutUint32(buf, uint32(v.Int()))
		return buf[4:]
	case reflect.Uint64:
		order.PutUint64(buf, v.Uint())
		return buf[8:]
	case reflect.Int64:
		order.PutUint64(buf, uint64(v.Int()))
		return buf[8:]
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			n := v.Len()
			reflect.Copy(reflect.ValueOf(buf[:n]), v)
			return buf[n:]
		}
		for i := 0; i < v.Len(); i++ {
			buf = encode(buf, order, v.Index(i))
		}
		return buf
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			checkField(t, i)
			buf = encode(buf, order, v.Field(i))
		}
		return buf
	default:
		panic("invalid type: " + v.Type().String())
	}
}

// Unmarshal decodes buf into data, which must be a pointer. len(buf) must be
// exactly Size(data).
func Unmarshal(buf []byte, order binary.ByteOrder, data any) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Ptr {
		panic("invalid type: " + v.Type().String())
	}
	v = v.Elem()
	if n := sizeof(v); uintptr(len(buf)) != n {
		panic(fmt.Sprintf("buffer is %d bytes, %s needs %d", len(buf), v.Type(), n))
	}
	decode(buf, order, v)
}

func decode(buf []byte, order binary.ByteOrder, v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Uint8:
		v.SetUint(uint64(buf[0]))
		return buf[1:]
	case reflect.Int8:
		v.SetInt(int64(int8(buf[0])))
		return buf[1:]
	case reflect.Uint16:
		v.SetUint(uint64(order.Uint16(buf)))
		return buf[2:]
	case reflect.Int16:
		v.SetInt(int64(int16(order.Uint16(buf))))
		return buf[2:]
	case reflect.Uint32:
		v.SetUint(uint64(order.Uint32(buf)))
		return buf[4:]
	case reflect.Int32:
		v.SetInt(int64(int32(order.Uint32(buf))))
		return buf[4:]
	case reflect.Uint64:
		v.SetUint(order.Uint64(buf))
		return buf[8:]
	case reflect.Int64:
		v.SetInt(int64(order.Uint64(buf)))
		return buf[8:]
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			n := v.Len()
			reflect.Copy(v, reflect.ValueOf(buf[:n]))
			return buf[n:]
		}
		for i := 0; i < v.Len(); i++ {
			buf = decode(buf, order, v.Index(i))
		}
		return buf
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			checkField(t, i)
			buf = decode(buf, order, v.Field(i))
		}
		return buf
	default:
		panic("invalid type: " + v.Type().String())
	}
}

// Size returns the number of bytes Marshal produces for v.
func Size(v any) uintptr {
	return sizeof(reflect.Indirect(reflect.ValueOf(v)))
}

func sizeof(v reflect.Value) uintptr {
	return typeSize(v.Type())
}

func typeSize(t reflect.Type) uintptr {
	switch t.Kind() {
	case reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32:
		return 4
	case reflect.Int64, reflect.Uint64:
		return 8
	case reflect.Array:
		return uintptr(t.Len()) * typeSize(t.Elem())
	case reflect.Struct:
		var size uintptr
		for i := 0; i < t.NumField(); i++ {
			checkField(t, i)
			size += typeSize(t.Field(i).Type)
		}
		return size
	default:
		panic("invalid type: " + t.String())
	}
}

func checkField(t reflect.Type, i int) {
	if f := t.Field(i); !f.IsExported() {
		panic(fmt.Sprintf("%s.%s: unexported or blank field cannot round-trip", t, f.Name))
	}
}

// Uint32s decodes buf as a packed array of 32-bit values into dst and returns
// the number of values decoded.
func Uint32s(dst []uint32, order binary.ByteOrder, buf []byte) int {
	n := len(buf) / 4
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = order.Uint32(buf[i*4:])
	}
	return n
}

// PutUint32s encodes src as a packed array of 32-bit values into buf.
func PutUint32s(buf []byte, order binary.ByteOrder, src []uint32) {
	for i, x := range src {
		order.PutUint32(buf[i*4:], x)
	}
}
