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

// Package loadertest builds minimal executable images for tests.
package loadertest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	ehdrSize = 64
	phdrSize = 56
)

// Prog describes one program header and its file contents.
type Prog struct {
	Type  elf.ProgType
	Flags elf.ProgFlag
	Vaddr uint64
	Memsz uint64
	Data  []byte
}

// Build returns a RISC-V ELF executable with the given entry point and
// program headers. Each Prog's Data is placed in the file after the headers
// and becomes the segment's file contents.
func Build(entry uint64, progs []Prog) []byte {
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(progs)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	off := uint64(ehdrSize + phdrSize*len(progs))
	phdrs := make([]elf.Prog64, len(progs))
	for i, p := range progs {
		phdrs[i] = elf.Prog64{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Off:    off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Vaddr,
			Filesz: uint64(len(p.Data)),
			Memsz:  p.Memsz,
			Align:  0x1000,
		}
		off += uint64(len(p.Data))
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &hdr)
	binary.Write(&buf, binary.LittleEndian, phdrs)
	for _, p := range progs {
		buf.Write(p.Data)
	}
	return buf.Bytes()
}

// Load is shorthand for a PT_LOAD Prog.
func Load(flags elf.ProgFlag, vaddr, memsz uint64, data []byte) Prog {
	return Prog{
		Type:  elf.PT_LOAD,
		Flags: flags,
		Vaddr: vaddr,
		Memsz: memsz,
		Data:  data,
	}
}
