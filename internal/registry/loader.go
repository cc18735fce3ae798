package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"epmgr/internal/common/fsutil"
)

// scanResult is the outcome of reading a providers directory.
type scanResult struct {
	devices    []Device
	incomplete []string         // manifests still being written by an installer
	invalid    map[string]error // manifests that could not be decoded
}

// LoadDir reads provider manifests (*.yaml, *.yml, *.json, *.toml) from dir,
// in file name order. A missing directory yields no devices.
func LoadDir(dir string) ([]Device, error) {
	res, err := scanDir(dir)
	if err != nil {
		return nil, err
	}
	return res.devices, nil
}

func scanDir(dir string) (scanResult, error) {
	res := scanResult{invalid: map[string]error{}}
	if strings.TrimSpace(dir) == "" {
		return res, nil
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return res, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return res, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, fsutil.IncompleteSuffix) {
			res.incomplete = append(res.incomplete, name)
			continue
		}
		p := filepath.Join(abs, name)
		dev, ok, err := decodeManifest(p)
		if !ok {
			continue
		}
		if err != nil {
			res.invalid[name] = err
			continue
		}
		res.devices = append(res.devices, dev)
	}
	return res, nil
}

// decodeManifest parses one manifest. ok is false for files that are not
// manifests at all (unknown extension).
func decodeManifest(path string) (Device, bool, error) {
	var dev Device
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json", ".toml":
	default:
		return dev, false, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return dev, true, err
	}
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &dev)
	case ".json":
		err = json.Unmarshal(b, &dev)
	case ".toml":
		err = toml.Unmarshal(b, &dev)
	}
	if err != nil {
		return dev, true, err
	}
	dev.Name = strings.TrimSpace(dev.Name)
	if dev.Name == "" {
		return dev, true, errors.New("manifest has no provider name")
	}
	return dev, true, nil
}
