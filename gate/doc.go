// Copyright 2025 Poiesic Systems
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


// Package gate bounds how many embedding calls run at once.
//
// A Gate is a counting semaphore built on golang.org/x/sync/semaphore. One
// Gate is constructed per service and shared by every component that calls
// the embedding provider, so the bound is process-wide rather than per call.
// Waiters are admitted in FIFO order.
//
// A Gate is not reentrant. Holding a permit while calling code that also
// acquires from the same Gate can deadlock once all permits are held, so
// only the innermost provider-bearing unit of work should acquire.
package gate
