//go:build !linux

package npu

import "errors"

var errAffinity = errors.New("cpu affinity is only supported on linux")

func SetCPUAffinity(mask uintptr) error {
	return errAffinity
}

func GetCPUAffinity() (uintptr, error) {
	return 0, errAffinity
}
