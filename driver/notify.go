// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
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

package driver

// notifier is a coalescing, repeatable wakeup: the mutator loop calls
// Notify on every boundary-string arrival, and the compactor goroutine
// selects on C to run one compaction pass per wakeup. Multiple Notify
// calls before the wakeup is consumed collapse into one; unlike
// msync.Flag (a one-shot that cannot be reset for reuse — see gate.go's
// doc comment for the same gap), a notifier can be waited on again
// immediately after firing.
type notifier struct {
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{}, 1)}
}

// Notify wakes one pending or future receive on C. It never blocks.
func (n *notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a consumer selects on; each receive consumes
// exactly one pending wakeup.
func (n *notifier) C() <-chan struct{} { return n.ch }
