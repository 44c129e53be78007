//go:build !windows

package main

func commandLineArgs(fallback []string) []string { return fallback }
