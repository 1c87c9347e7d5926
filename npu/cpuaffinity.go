package npu

import (
	"fmt"
	"strings"
)

// CoreType selects a class of CPU cores on big.LITTLE Rockchip SoCs
type CoreType int

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// ParseCoreType converts "fast", "slow" or "all" into a CoreType
func ParseCoreType(s string) (CoreType, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return FastCores, nil
	case "slow":
		return SlowCores, nil
	case "all", "":
		return AllCores, nil
	}

	return AllCores, fmt.Errorf("unknown core type %q", s)
}

// platformMasks holds the CPU affinity masks of each supported SoC.  Chips
// without big cores map every type to all cores
var platformMasks = map[string]map[CoreType]uintptr{
	"rk3562": {SlowCores: 0b00001111, FastCores: 0b00001111, AllCores: 0b00001111},
	"rk3566": {SlowCores: 0b00001111, FastCores: 0b00001111, AllCores: 0b00001111},
	"rk3568": {SlowCores: 0b00001111, FastCores: 0b00001111, AllCores: 0b00001111},
	"rk3576": {SlowCores: 0b00001111, FastCores: 0b11110000, AllCores: 0b11111111},
	"rk3582": {SlowCores: 0b00001111, FastCores: 0b00110000, AllCores: 0b00111111},
	"rk3588": {SlowCores: 0b00001111, FastCores: 0b11110000, AllCores: 0b11111111},
}

// PlatformMask returns the CPU affinity mask for the core type of a platform
// such as rk3588
func PlatformMask(platform string, ct CoreType) (uintptr, error) {

	masks, ok := platformMasks[strings.ToLower(strings.TrimSpace(platform))]

	if !ok {
		return 0, fmt.Errorf("unknown platform: %s", platform)
	}

	mask, ok := masks[ct]

	if !ok {
		return 0, fmt.Errorf("unknown core type %d for platform %s", ct, platform)
	}

	return mask, nil
}

// CPUCoreMask builds an affinity mask from CPU core numbers, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// SetCPUAffinityByPlatform pins the process to the cores of the given type
// on the named platform
func SetCPUAffinityByPlatform(platform string, ct CoreType) error {

	mask, err := PlatformMask(platform, ct)

	if err != nil {
		return err
	}

	return SetCPUAffinity(mask)
}
