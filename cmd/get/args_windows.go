//go:build windows

package main

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// commandLineArgs splits the raw Windows command line with the shell's own
// rules so quoted paths containing spaces reach the flag parser intact.
// It falls back to fallback when the command line cannot be read.
func commandLineArgs(fallback []string) []string {
	cmdLine := windows.GetCommandLine()
	if cmdLine == nil {
		return fallback
	}
	var argc int32
	argv, err := windows.CommandLineToArgv(cmdLine, &argc)
	if err != nil || argv == nil || argc < 1 {
		return fallback
	}
	defer windows.LocalFree(windows.Handle(uintptr(unsafe.Pointer(argv))))

	args := make([]string, 0, argc-1)
	for _, p := range unsafe.Slice((**uint16)(unsafe.Pointer(argv)), argc)[1:] {
		if p != nil {
			args = append(args, windows.UTF16PtrToString(p))
		}
	}
	return args
}
