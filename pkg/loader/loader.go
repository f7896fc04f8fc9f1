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

// Package loader validates executable images and extracts what is needed to
// build an address space from them: the loadable segments and the entry point.
//
// Only 64-bit little-endian RISC-V ELF executables are accepted. Section and
// symbol tables are ignored.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
)

// elfMagic identifies an ELF file.
const elfMagic = "\x7fELF"

// Segment is one PT_LOAD program header.
type Segment struct {
	// Vaddr is the virtual address of the first byte of the segment.
	Vaddr hostarch.Addr

	// Memsz is the size of the segment in memory.
	Memsz uint64

	// Filesz is the number of bytes backed by the file. The remaining
	// Memsz-Filesz bytes are zero.
	Filesz uint64

	// Off is the file offset of the segment's data.
	Off uint64

	Read    bool
	Write   bool
	Execute bool
}

// End returns one past the last virtual address of the segment.
func (s Segment) End() hostarch.Addr {
	return s.Vaddr + hostarch.Addr(s.Memsz)
}

// String implements fmt.Stringer.String.
func (s Segment) String() string {
	perms := []byte("---")
	if s.Read {
		perms[0] = 'r'
	}
	if s.Write {
		perms[1] = 'w'
	}
	if s.Execute {
		perms[2] = 'x'
	}
	return fmt.Sprintf("[%v, %v) %s filesz=%#x off=%#x", s.Vaddr, s.End(), perms, s.Filesz, s.Off)
}

// Image is a validated executable.
type Image struct {
	// Entry is the initial program counter.
	Entry hostarch.Addr

	// Segments are the loadable segments in program header order.
	Segments []Segment

	data []byte
}

// FileBytes returns the on-file contents of s.
//
// Precondition: s is one of img.Segments.
func (img *Image) FileBytes(s Segment) []byte {
	return img.data[s.Off : s.Off+s.Filesz]
}

// Parse validates data as an executable image.
//
// Any error wraps linuxerr.ENOEXEC. data is retained by the returned Image and
// must not be modified.
func Parse(data []byte) (*Image, error) {
	if !bytes.HasPrefix(data, []byte(elfMagic)) {
		return nil, fmt.Errorf("bad magic: %w", linuxerr.ENOEXEC)
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		log.Infof("Error parsing ELF: %v", err)
		return nil, fmt.Errorf("%v: %w", err, linuxerr.ENOEXEC)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("unsupported class %v: %w", f.Class, linuxerr.ENOEXEC)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("unsupported byte order %v: %w", f.Data, linuxerr.ENOEXEC)
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("unsupported machine %v: %w", f.Machine, linuxerr.ENOEXEC)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("unsupported type %v: %w", f.Type, linuxerr.ENOEXEC)
	}

	img := &Image{
		Entry: hostarch.Addr(f.Entry),
		data:  data,
	}
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Filesz > p.Memsz {
			return nil, fmt.Errorf("segment %d: filesz %#x exceeds memsz %#x: %w", i, p.Filesz, p.Memsz, linuxerr.ENOEXEC)
		}
		if end := p.Off + p.Filesz; end < p.Off || end > uint64(len(data)) {
			return nil, fmt.Errorf("segment %d: file range [%#x, +%#x) exceeds image size %#x: %w", i, p.Off, p.Filesz, len(data), linuxerr.ENOEXEC)
		}
		vaddr := hostarch.Addr(p.Vaddr)
		if end, ok := vaddr.AddLength(p.Memsz); !ok || end > hostarch.MaxUserAddr {
			return nil, fmt.Errorf("segment %d: [%v, +%#x) is outside user memory: %w", i, vaddr, p.Memsz, linuxerr.ENOEXEC)
		}
		img.Segments = append(img.Segments, Segment{
			Vaddr:   vaddr,
			Memsz:   p.Memsz,
			Filesz:  p.Filesz,
			Off:     p.Off,
			Read:    p.Flags&elf.PF_R != 0,
			Write:   p.Flags&elf.PF_W != 0,
			Execute: p.Flags&elf.PF_X != 0,
		})
	}
	return img, nil
}
