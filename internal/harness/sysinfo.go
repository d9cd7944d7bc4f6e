package harness

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo describes the grading host for the job_start event. Parts
// that cannot be read are left out.
func SystemInfo() string {
	var parts []string
	if h, err := host.Info(); err == nil {
		parts = append(parts, fmt.Sprintf("host: %s %s %s (kernel %s, %s)",
			h.Hostname, h.Platform, h.PlatformVersion, h.KernelVersion, h.KernelArch))
	}
	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		parts = append(parts, fmt.Sprintf("cpu: %s x%d", cpus[0].ModelName, len(cpus)))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		parts = append(parts, fmt.Sprintf("memory: %d MiB", vm.Total>>20))
	}
	return strings.Join(parts, "\n")
}
