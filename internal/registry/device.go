package registry

import "maps"

// CPUProviderName is the provider every host exposes without registration.
const CPUProviderName = "CPUExecutionProvider"

// Device identifies one execution provider available on the host.
// Values are snapshots taken by List; they are compared by Name.
type Device struct {
	// Provider name, e.g. OpenVINOExecutionProvider.
	Name string `json:"name" yaml:"name" toml:"name"`
	// Hardware or runtime vendor.
	Vendor string `json:"vendor,omitempty" yaml:"vendor" toml:"vendor"`
	// Native library that backs the provider, when registered from a manifest.
	Library string `json:"library,omitempty" yaml:"library" toml:"library"`
	// Free-form vendor metadata (device type, driver version, ...).
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata" toml:"metadata"`
}

// clone returns a copy that shares no map with d.
func (d Device) clone() Device {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

// Find returns the device with the given name.
func Find(devs []Device, name string) (Device, bool) {
	for _, d := range devs {
		if d.Name == name {
			return d.clone(), true
		}
	}
	return Device{}, false
}
