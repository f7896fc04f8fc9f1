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

// Package ring0 provides the privileged hart operations used when switching
// address spaces.
package ring0

// Hart is one hardware thread executing in supervisor mode.
//
// All methods are synchronous and cannot be interrupted.
type Hart interface {
	// DisableInterrupts masks interrupts on the hart and reports whether
	// they were enabled before.
	DisableInterrupts() bool

	// RestoreInterrupts unmasks interrupts if enabled is true.
	RestoreInterrupts(enabled bool)

	// WriteSATP installs token as the translation root.
	WriteSATP(token uint64)

	// SFenceVMA discards every cached address translation.
	SFenceVMA()
}

// SwitchPageTables makes token the hart's translation root.
//
// The root install and the translation cache invalidation happen with
// interrupts masked, so nothing runs on the hart between them.
//
// Precondition: the calling code is identity-mapped in both the old and the
// new address space.
func SwitchPageTables(h Hart, token uint64) {
	enabled := h.DisableInterrupts()
	h.WriteSATP(token)
	h.SFenceVMA()
	h.RestoreInterrupts(enabled)
}
