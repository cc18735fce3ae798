package artifact

import (
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// digestSuffixLen is how many hex characters of the name digest are kept
// when a device name had to be sanitized.
const digestSuffixLen = 12

// DeviceKey returns the file-name-safe form of a device name. Characters
// outside [A-Za-z0-9._-] become '_'; when that changed anything, a short
// digest of the raw name is appended so distinct names never share a key.
func DeviceKey(name string) string {
	var b strings.Builder
	changed := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			changed = true
		}
	}
	if name == "" {
		changed = true
	}
	if !changed {
		return b.String()
	}
	return b.String() + "-" + digest.FromString(name).Encoded()[:digestSuffixLen]
}

// CompiledPath returns modelFolder/<stem>_<key><ext> for base model file
// modelFile.
func CompiledPath(modelFolder, modelFile, deviceName string) string {
	ext := filepath.Ext(modelFile)
	stem := strings.TrimSuffix(filepath.Base(modelFile), ext)
	return filepath.Join(modelFolder, stem+"_"+DeviceKey(deviceName)+ext)
}
