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

package ring0

import (
	"fmt"

	"github.com/rvkernel/rvkernel/pkg/sync"
)

// EmulatedHart is a Hart whose registers are plain fields. It enforces the
// ordering rules of address space switches by panicking on violations.
type EmulatedHart struct {
	mu sync.Mutex

	// +checklocks:mu
	satp uint64

	// +checklocks:mu
	interrupts bool

	// stale is set between a satp write and the following sfence.vma.
	//
	// +checklocks:mu
	stale bool

	// +checklocks:mu
	flushes uint64
}

// NewEmulatedHart returns a hart with interrupts enabled and translation off.
func NewEmulatedHart() *EmulatedHart {
	return &EmulatedHart{interrupts: true}
}

// DisableInterrupts implements Hart.DisableInterrupts.
func (h *EmulatedHart) DisableInterrupts() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	enabled := h.interrupts
	h.interrupts = false
	return enabled
}

// RestoreInterrupts implements Hart.RestoreInterrupts.
func (h *EmulatedHart) RestoreInterrupts(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if enabled && h.stale {
		panic(fmt.Sprintf("interrupts enabled with satp %#x installed but not fenced", h.satp))
	}
	h.interrupts = enabled
}

// WriteSATP implements Hart.WriteSATP.
func (h *EmulatedHart) WriteSATP(token uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupts {
		panic(fmt.Sprintf("satp %#x written with interrupts enabled", token))
	}
	h.satp = token
	h.stale = true
}

// SFenceVMA implements Hart.SFenceVMA.
func (h *EmulatedHart) SFenceVMA() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stale = false
	h.flushes++
}

// SATP returns the installed translation root.
func (h *EmulatedHart) SATP() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.satp
}

// Flushes returns the number of translation cache invalidations issued.
func (h *EmulatedHart) Flushes() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushes
}

// InterruptsEnabled reports whether interrupts are unmasked.
func (h *EmulatedHart) InterruptsEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupts
}
