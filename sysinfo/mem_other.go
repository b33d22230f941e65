//go:build !linux

package sysinfo

func physicalMemory() uint64 { return 0 }
