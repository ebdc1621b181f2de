package collector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/common/model"
)

const namespace = "nvsmi"

// ErrUnknownMetric is returned by Registry.Describe for names that were
// never registered.
var ErrUnknownMetric = errors.New("metric not in registry")

// ValueKind tells the normalizer how to interpret a raw nvidia-smi field
// and which unit suffix the exposed metric name carries.
type ValueKind int

const (
	// KindString keeps the raw text and is exposed through the info
	// pattern (constant 1 with the text as a label).
	KindString ValueKind = iota
	// KindIntegerRaw is a plain integer with no unit conversion.
	KindIntegerRaw
	// KindPercentRatio converts "97 %" style percentages to a 0..1 ratio.
	KindPercentRatio
	// KindMegabytesToBytes converts MiB readings to bytes.
	KindMegabytesToBytes
	// KindCelsius is an integer temperature in degrees Celsius.
	KindCelsius
	// KindWatts is a floating point power reading in Watts.
	KindWatts
	// KindHex is a hexadecimal identifier such as a PCI address part. The
	// original text is kept for display.
	KindHex
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindIntegerRaw:
		return "integer"
	case KindPercentRatio:
		return "ratio"
	case KindMegabytesToBytes:
		return "bytes"
	case KindCelsius:
		return "celsius"
	case KindWatts:
		return "watts"
	case KindHex:
		return "hex"
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// suffix is appended to the exposed metric name so the unit is part of
// the name, following Prometheus naming conventions.
func (k ValueKind) suffix() string {
	switch k {
	case KindString:
		return "_info"
	case KindIntegerRaw:
		return ""
	case KindPercentRatio:
		return "_ratio"
	case KindMegabytesToBytes:
		return "_bytes"
	case KindCelsius:
		return "_celsius"
	case KindWatts:
		return "_watts"
	case KindHex:
		return ""
	}
	return ""
}

// Descriptor describes a single nvidia-smi query field: the name passed
// to --query-gpu, the help text for the exposition output, how the value
// is interpreted, and whether it labels the device instead of producing
// a sample of its own.
type Descriptor struct {
	Name    string
	Help    string
	Kind    ValueKind
	AsLabel bool
}

// ExposedName is the full metric name written to the exposition output,
// with the namespace prefix and the unit suffix for the kind.
func (d Descriptor) ExposedName() string {
	return namespace + "_" + strings.ReplaceAll(d.Name, ".", "_") + d.Kind.suffix()
}

// LabelName is the label key used when the descriptor is a device label,
// or the extra label key carrying the raw text of a string metric.
func (d Descriptor) LabelName() string {
	return strings.ReplaceAll(d.Name, ".", "_")
}

// Registry holds the ordered set of descriptors for one collection pass.
// The order is the --query-gpu field order and therefore the CSV column
// order. A Registry is immutable after construction and safe for
// concurrent reads.
type Registry struct {
	descriptors []Descriptor
	byName      map[string]int
}

// NewRegistry validates the descriptor set and builds the lookup index.
// Names must be unique, exposed metric names must be unique and valid,
// and label keys must be valid Prometheus label names.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	byName := make(map[string]int, len(descriptors))
	exposed := make(map[string]string, len(descriptors))
	for i, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("descriptor %d has an empty name", i)
		}
		if _, ok := byName[d.Name]; ok {
			return nil, fmt.Errorf("duplicate metric name %s", d.Name)
		}
		byName[d.Name] = i

		// The rendered output is classic exposition text without name
		// quoting, so names must satisfy legacy validation regardless of
		// the library's global UTF-8 scheme.
		if !model.LabelName(d.LabelName()).IsValidLegacy() {
			return nil, fmt.Errorf("metric %s: label key %s is not a valid label name", d.Name, d.LabelName())
		}
		if d.AsLabel {
			continue
		}
		en := d.ExposedName()
		if !model.IsValidLegacyMetricName(en) {
			return nil, fmt.Errorf("metric %s: exposed name %s is not a valid metric name", d.Name, en)
		}
		if prev, ok := exposed[en]; ok {
			return nil, fmt.Errorf("metrics %s and %s both expose %s", prev, d.Name, en)
		}
		exposed[en] = d.Name
	}
	return &Registry{descriptors: descriptors, byName: byName}, nil
}

// MustNewRegistry is NewRegistry for compiled-in descriptor tables.
func MustNewRegistry(descriptors []Descriptor) *Registry {
	r, err := NewRegistry(descriptors)
	if err != nil {
		panic(err)
	}
	return r
}

// Describe returns the descriptor registered under name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("metric %s: %w", name, ErrUnknownMetric)
	}
	return r.descriptors[i], nil
}

// Descriptors returns the descriptors in registration order. The caller
// must not modify the returned slice.
func (r *Registry) Descriptors() []Descriptor {
	return r.descriptors
}

// Len reports the number of registered descriptors, which equals the
// expected field count of every data row.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// QueryFields returns the names in registration order, ready to be
// joined into a --query-gpu argument.
func (r *Registry) QueryFields() []string {
	fields := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		fields[i] = d.Name
	}
	return fields
}

// DefaultRegistry returns the stock GPU metric set. Device identity
// fields (serial, name, index and the PCI address parts) are labels
// attached to every sample of the same device.
func DefaultRegistry() *Registry {
	return MustNewRegistry([]Descriptor{
		{Name: "driver_version", Help: "NVIDIA display driver version", Kind: KindString},
		{Name: "gpu_serial", Help: "the serial number physically printed on the board", Kind: KindString, AsLabel: true},
		{Name: "gpu_name", Help: "official product name of the GPU", Kind: KindString, AsLabel: true},
		{Name: "index", Help: "zero-based index of the GPU as enumerated by the driver", Kind: KindIntegerRaw, AsLabel: true},
		{Name: "utilization.gpu", Help: "percent of time the GPU was busy", Kind: KindPercentRatio},
		{Name: "utilization.memory", Help: "percent of time GPU RAM was read / written", Kind: KindPercentRatio},
		{Name: "memory.total", Help: "total installed GPU RAM", Kind: KindMegabytesToBytes},
		{Name: "memory.free", Help: "total free GPU RAM", Kind: KindMegabytesToBytes},
		{Name: "memory.used", Help: "total GPU RAM allocated by active contexts", Kind: KindMegabytesToBytes},
		{Name: "temperature.gpu", Help: "core GPU temperature in degrees C", Kind: KindCelsius},
		{Name: "fan.speed", Help: "intended (NOT MEASURED!) fan speed in percent", Kind: KindIntegerRaw},
		{Name: "power.draw", Help: "power draw for the entire board in Watts", Kind: KindWatts},
		{Name: "power.limit", Help: "software power limit in Watts", Kind: KindWatts},
		{Name: "pci.domain", Help: "PCI domain number", Kind: KindHex, AsLabel: true},
		{Name: "pci.bus", Help: "PCI bus number", Kind: KindHex, AsLabel: true},
		{Name: "pci.device", Help: "PCI device number", Kind: KindHex, AsLabel: true},
		{Name: "pci.device_id", Help: "PCI vendor device id", Kind: KindHex, AsLabel: true},
		{Name: "pcie.link.gen.current", Help: "current PCI-E link generation", Kind: KindIntegerRaw},
		{Name: "pcie.link.gen.max", Help: "maximum PCI-E link generation possible with this GPU and system", Kind: KindIntegerRaw},
		{Name: "pcie.link.width.current", Help: "current PCI-E link width", Kind: KindIntegerRaw},
		{Name: "pcie.link.width.max", Help: "maximum PCI-E link width possible with this GPU and system configuration", Kind: KindIntegerRaw},
	})
}
