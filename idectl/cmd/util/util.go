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

// Package util groups helpers shared by idectl commands.
package util

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gvisor.dev/idedisk/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller of idectl and are also logged.
var ErrorLogger io.Writer

// Fatalf logs the same message as Errorf, and exits the process.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(128)
}

// Errorf logs an error to the log file and to ErrorLogger if set, and writes
// it to stderr.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	if ErrorLogger != nil {
		fmt.Fprintln(ErrorLogger, msg)
	}
	fmt.Fprintln(os.Stderr, msg)
}

// ParseUint32 parses a decimal, hex (0x) or octal (0) argument named what.
func ParseUint32(what, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return uint32(v), nil
}
