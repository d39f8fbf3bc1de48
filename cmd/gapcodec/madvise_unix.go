//go:build unix

package main

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel a mapped input is read front to back once
func adviseSequential(b []byte) error {
	err := unix.Madvise(b, unix.MADV_SEQUENTIAL)
	if err != nil && err != syscall.ENOSYS {
		// not implemented by the kernel, mapping still works
		return err
	}
	return nil
}
