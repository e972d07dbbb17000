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
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: `"warning"`, want: Warning},
		{in: `"info"`, want: Info},
		{in: `"debug"`, want: Debug},
		{in: `0`, want: Warning},
		{in: `1`, want: Info},
		{in: `2`, want: Debug},
		{in: `3`, wantErr: true},
		{in: `"trace"`, wantErr: true},
	} {
		var lv Level
		err := json.Unmarshal([]byte(tc.in), &lv)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Unmarshal(%s) = %v, want error", tc.in, lv)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tc.in, err)
			continue
		}
		if lv != tc.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tc.in, lv, tc.want)
		}
		// Names round trip; integers come back as names.
		b, err := json.Marshal(lv)
		if err != nil {
			t.Errorf("Marshal(%v) failed: %v", lv, err)
			continue
		}
		var again Level
		if err := json.Unmarshal(b, &again); err != nil || again != lv {
			t.Errorf("round trip of %v through %s = %v, %v", lv, b, again, err)
		}
	}

	if _, err := Level(7).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON(7) succeeded, want error")
	}
}

func TestJSONEmitter(t *testing.T) {
	var out bytes.Buffer
	e := JSONEmitter{&Writer{Next: &out}}
	ts := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	e.Emit(0, Debug, ts, "block %d\n", 7)

	var got jsonLog
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &got); err != nil {
		t.Fatalf("output %q is not json: %v", out.String(), err)
	}
	if !strings.HasPrefix(got.Caller, "json_test.go:") {
		t.Errorf("caller = %q, want json_test.go:N", got.Caller)
	}
	want := jsonLog{Msg: "block 7", Level: Debug, Time: ts, Caller: got.Caller}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}
