// Package catalog loads VBUS specification files into a vbus.Catalog.
//
// The files follow the layout produced by converting the RESOL Service
// Center XML configuration to JSON:
//
//	{"vbusSpecification": {
//	    "device": [{"name": "DeltaSol BS Plus", "address": "0x4221", "mask": "0xFFFF"}],
//	    "packet": [{"source": "0x4221", "destination": "0x0010", "command": "0x0100",
//	                "field": [{"name": "Temperature sensor 1", "offset": "0",
//	                           "bitSize": "15", "factor": "0.1", "unit": " °C"}]}]}}
//
// Files ending in .yaml or .yml may use the same structure in YAML.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

type specFile struct {
	Spec struct {
		Devices []deviceEntry `json:"device" yaml:"device"`
		Packets []packetEntry `json:"packet" yaml:"packet"`
	} `json:"vbusSpecification" yaml:"vbusSpecification"`
}

type deviceEntry struct {
	Name    string     `json:"name" yaml:"name"`
	Address flexString `json:"address" yaml:"address"`
	Mask    flexString `json:"mask" yaml:"mask"`
}

type packetEntry struct {
	Source      flexString `json:"source" yaml:"source"`
	Destination flexString `json:"destination" yaml:"destination"`
	Command     flexString `json:"command" yaml:"command"`
	Fields      fieldList  `json:"field" yaml:"field"`
}

type fieldEntry struct {
	Name    string     `json:"name" yaml:"name"`
	Offset  flexString `json:"offset" yaml:"offset"`
	BitSize flexString `json:"bitSize" yaml:"bitSize"`
	Factor  flexString `json:"factor" yaml:"factor"`
	Unit    unit       `json:"unit" yaml:"unit"`
}

// Load reads files (relative to dir unless absolute) and merges their
// devices and packets, in order, into one catalog.
func Load(dir string, files []string) (*vbus.Catalog, error) {
	var (
		devices []vbus.DeviceSpec
		packets []vbus.PacketSpec
	)
	for _, name := range files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}
		d, p, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d...)
		packets = append(packets, p...)
	}
	c, err := vbus.NewCatalog(devices, packets)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}

// LoadFile parses one specification file.
func LoadFile(path string) ([]vbus.DeviceSpec, []vbus.PacketSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}
	var f specFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: cannot load spec %s: %w", path, err)
	}
	return f.convert(path)
}

func (f *specFile) convert(path string) ([]vbus.DeviceSpec, []vbus.PacketSpec, error) {
	devices := make([]vbus.DeviceSpec, 0, len(f.Spec.Devices))
	for _, d := range f.Spec.Devices {
		devices = append(devices, vbus.DeviceSpec{
			Name:    d.Name,
			Address: string(d.Address),
			Mask:    string(d.Mask),
		})
	}

	packets := make([]vbus.PacketSpec, 0, len(f.Spec.Packets))
	for i, p := range f.Spec.Packets {
		ps := vbus.PacketSpec{
			Source:      string(p.Source),
			Destination: string(p.Destination),
			Command:     string(p.Command),
		}
		for _, fe := range p.Fields {
			fs, err := fe.convert()
			if err != nil {
				return nil, nil, fmt.Errorf("catalog: %s: packet %d (%s): field %q: %w", path, i, ps.Source, fe.Name, err)
			}
			ps.Fields = append(ps.Fields, fs)
		}
		packets = append(packets, ps)
	}
	return devices, packets, nil
}

func (fe fieldEntry) convert() (vbus.FieldSpec, error) {
	fs := vbus.FieldSpec{
		Name:    fe.Name,
		Unit:    fe.Unit.Text,
		HasUnit: fe.Unit.Plain,
		Factor:  decimal.NewFromInt(1),
	}
	var err error
	if fs.Offset, err = strconv.Atoi(string(fe.Offset)); err != nil {
		return fs, fmt.Errorf("offset: %w", err)
	}
	if fs.BitSize, err = strconv.Atoi(string(fe.BitSize)); err != nil {
		return fs, fmt.Errorf("bitSize: %w", err)
	}
	if fe.Factor != "" {
		if fs.Factor, err = decimal.NewFromString(string(fe.Factor)); err != nil {
			return fs, fmt.Errorf("factor: %w", err)
		}
	}
	return fs, nil
}
