package npu

import (
	"fmt"
	"math/bits"

	"golang.org/x/sys/unix"
)

// SetCPUAffinity restricts the process to the CPU cores set in mask
func SetCPUAffinity(mask uintptr) error {

	var set unix.CPUSet

	for cpu := 0; cpu < bits.UintSize; cpu++ {
		if mask&(1<<uint(cpu)) != 0 {
			set.Set(cpu)
		}
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity returns the CPU cores the process may run on
func GetCPUAffinity() (uintptr, error) {

	var set unix.CPUSet

	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	var mask uintptr

	for cpu := 0; cpu < bits.UintSize; cpu++ {
		if set.IsSet(cpu) {
			mask |= 1 << uint(cpu)
		}
	}

	return mask, nil
}
