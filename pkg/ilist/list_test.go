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

package ilist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testElement struct {
	Entry[*testElement]
	value int
}

func values(l *List[*testElement]) []int {
	var vs []int
	for e := l.Front(); e != nil; e = e.Next() {
		vs = append(vs, e.value)
	}
	return vs
}

func TestPushPop(t *testing.T) {
	var l List[*testElement]
	if !l.Empty() || l.PopFront() != nil {
		t.Fatalf("zero list is not empty")
	}
	es := make([]*testElement, 4)
	for i := range es {
		es[i] = &testElement{value: i}
	}
	l.PushBack(es[1])
	l.PushBack(es[2])
	l.PushFront(es[0])
	l.PushBack(es[3])
	if diff := cmp.Diff([]int{0, 1, 2, 3}, values(&l)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if l.Len() != 4 {
		t.Errorf("Len() = %d, want 4", l.Len())
	}
	if got := l.PopFront(); got != es[0] {
		t.Errorf("PopFront() = %v, want element 0", got)
	}
	if got := l.Front(); got != es[1] || got.Prev() != nil {
		t.Errorf("front not relinked after pop")
	}
}

func TestRemove(t *testing.T) {
	var l List[*testElement]
	es := make([]*testElement, 3)
	for i := range es {
		es[i] = &testElement{value: i}
		l.PushBack(es[i])
	}
	l.Remove(es[1])
	if diff := cmp.Diff([]int{0, 2}, values(&l)); diff != "" {
		t.Errorf("after removing middle (-want +got):\n%s", diff)
	}
	if l.Contains(es[1]) || !l.Contains(es[2]) {
		t.Errorf("Contains disagrees with list contents")
	}
	l.Remove(es[2])
	// The tail must follow the removal so that appends land after es[0].
	l.PushBack(es[1])
	if diff := cmp.Diff([]int{0, 1}, values(&l)); diff != "" {
		t.Errorf("append after removing last (-want +got):\n%s", diff)
	}
	l.Remove(es[0])
	l.Remove(es[1])
	if !l.Empty() || l.Front() != nil {
		t.Errorf("list not empty after removing everything")
	}
}
