package host

// Facts describes the machine and runtime the host process runs on.
type Facts struct {
	RuntimeVersion string `json:"runtime_version"` // Go runtime version
	OSName         string `json:"os_name"`         // ex: linux, windows
	OSArch         string `json:"os_arch"`         // ex: amd64, arm64
	OSVersion      string `json:"os_version"`      // kernel version, or platform version when unknown
	CoreCount      int    `json:"core_count"`      // logical cores

	// sent only with submitAdditionalMetrics
	Platform      string `json:"os_platform,omitempty"`     // ex: ubuntu 22.04
	CPUModel      string `json:"cpu_model,omitempty"`       // model name of the first CPU
	MemoryTotalMB uint64 `json:"memory_total_mb,omitempty"` // total memory in MB
}

type FactType string

const (
	FactRuntimeVersion FactType = "runtime_version"
	FactOSName         FactType = "os_name"
	FactOSArch         FactType = "os_arch"
	FactOSVersion      FactType = "os_version"
	FactCoreCount      FactType = "core_count"
	FactPlatform       FactType = "os_platform"
	FactCPUModel       FactType = "cpu_model"
	FactMemoryTotalMB  FactType = "memory_total_mb"
)

func (f FactType) String() string {
	return string(f)
}
