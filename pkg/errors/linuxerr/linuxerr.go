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

// Package linuxerr contains syscall error codes exported as an error interface
// pointers. This allows for fast comparison and return operations comperable
// to unix.Errno constants.
package linuxerr

import (
	goerrors "errors"

	"github.com/rvkernel/rvkernel/pkg/errors"
	"golang.org/x/sys/unix"
)

// The errors used by the memory subsystem. They are semantically identical to
// the unix.Errno values they carry (e.g. unix.Errno(ENOMEM.Errno()) ==
// unix.ENOMEM), but are distinct *errors.Error values.
var (
	noError *errors.Error = nil
	ENOENT                = errors.New(unix.ENOENT, "no such file or directory")
	ENOEXEC               = errors.New(unix.ENOEXEC, "exec format error")
	ENOMEM                = errors.New(unix.ENOMEM, "out of memory")
	EFAULT                = errors.New(unix.EFAULT, "bad address")
	EEXIST                = errors.New(unix.EEXIST, "file exists")
	EINVAL                = errors.New(unix.EINVAL, "invalid argument")
)

var errnoMap = map[unix.Errno]*errors.Error{
	0:            noError,
	unix.ENOENT:  ENOENT,
	unix.ENOEXEC: ENOEXEC,
	unix.ENOMEM:  ENOMEM,
	unix.EFAULT:  EFAULT,
	unix.EEXIST:  EEXIST,
	unix.EINVAL:  EINVAL,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno.
func ErrorFromUnix(err unix.Errno) error {
	if e, ok := errnoMap[err]; ok {
		if e == noError {
			return nil
		}
		return e
	}
	return errors.New(err, err.Error())
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error. It looks through wrapped
// errors, so a value produced by fmt.Errorf("...: %w", ENOMEM) equals ENOMEM.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if goerrors.As(err, &unixErr) {
		return e.Errno() == unixErr
	}
	var linuxErr *errors.Error
	if goerrors.As(err, &linuxErr) {
		return e.Errno() == linuxErr.Errno()
	}
	return e == nil && err == nil
}
