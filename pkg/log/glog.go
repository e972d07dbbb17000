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

package log

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog.
type GoogleEmitter struct {
	// Emitter is the underlying emitter.
	Emitter
}

// glogTime is the timestamp layout of a glog header, less the level letter.
const glogTime = "0102 15:04:05.000000"

// pid is the space-padded threadid component of the header. The glog package
// logger uses 7 columns; see glog.loggingT.formatHeader.
var pid = fmt.Sprintf("%7d", os.Getpid())

// levelLetters maps a Level to the first character of a header.
var levelLetters = [...]byte{Warning: 'W', Info: 'I', Debug: 'D'}

// caller returns the base name and line of the function depth frames above
// its caller, or "x", 0 if the stack is not that deep.
func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth + 2)
	if !ok {
		return "x", 0
	}
	if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
		file = file[slash+1:]
	}
	return file, line
}

// Emit emits the message, google-style.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg...
//
// where L is the level letter and threadid is the process ID.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var local [256]byte
	b := local[:0]

	if int(level) < len(levelLetters) {
		b = append(b, levelLetters[level])
	}
	b = timestamp.AppendFormat(b, glogTime)
	b = append(b, ' ')
	b = append(b, pid...)
	b = append(b, ' ')

	file, line := caller(depth)
	b = append(b, file...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(line), 10)
	b = append(b, "] "...)

	// The format is passed through so args are expanded once, downstream.
	b = append(b, strings.TrimSuffix(format, "\n")...)
	b = append(b, '\n')

	g.Emitter.Emit(depth+1, level, timestamp, string(b), args...)
}
