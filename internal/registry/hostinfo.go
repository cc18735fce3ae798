package registry

import (
	"strconv"

	"github.com/jaypipes/ghw"
)

// HostProbe reports vendor metadata for the built-in CPU provider.
type HostProbe func() (vendor string, metadata map[string]string)

// ProbeHost inspects the host CPU and graphics cards. Missing information is
// left out rather than reported as an error.
func ProbeHost() (string, map[string]string) {
	md := map[string]string{}
	vendor := ""
	if info, err := ghw.CPU(); err == nil && info != nil && len(info.Processors) > 0 {
		p := info.Processors[0]
		vendor = p.Vendor
		if p.Model != "" {
			md["cpu_model"] = p.Model
		}
		md["cpu_sockets"] = strconv.Itoa(len(info.Processors))
		md["cpu_cores"] = strconv.FormatUint(uint64(p.NumCores), 10)
	}
	if gpus, err := ghw.GPU(); err == nil && gpus != nil {
		md["gpu_count"] = strconv.Itoa(len(gpus.GraphicsCards))
		for i, card := range gpus.GraphicsCards {
			if card == nil || card.DeviceInfo == nil || card.DeviceInfo.Product == nil {
				continue
			}
			md["gpu"+strconv.Itoa(i)] = card.DeviceInfo.Product.Name
		}
	}
	return vendor, md
}
