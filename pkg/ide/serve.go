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

package ide

import (
	"context"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/idedisk/pkg/abi/ata"
)

// Lines are the interrupt lines of the two channels. A receive on a line is
// one interrupt. A nil line is never served.
type Lines [ata.NumChannels]<-chan struct{}

// Serve dispatches interrupts from lines to Interrupt until ctx is done. Each
// channel is served by its own goroutine, so completions on one channel never
// wait for the other.
func (d *Driver) Serve(ctx context.Context, lines Lines) error {
	g, ctx := errgroup.WithContext(ctx)
	for ch, line := range lines {
		ch, line := ch, line
		if line == nil {
			continue
		}
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-line:
					if !ok {
						return nil
					}
					d.Interrupt(ch)
				}
			}
		})
	}
	return g.Wait()
}
