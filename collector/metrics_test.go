package collector

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorExposedName(t *testing.T) {
	tT := map[string]struct {
		descriptor Descriptor
		want       string
	}{
		"string kind gets info suffix": {
			descriptor: Descriptor{Name: "driver_version", Kind: KindString},
			want:       "nvsmi_driver_version_info",
		},
		"dots become underscores": {
			descriptor: Descriptor{Name: "pcie.link.gen.current", Kind: KindIntegerRaw},
			want:       "nvsmi_pcie_link_gen_current",
		},
		"ratio suffix": {
			descriptor: Descriptor{Name: "utilization.gpu", Kind: KindPercentRatio},
			want:       "nvsmi_utilization_gpu_ratio",
		},
		"bytes suffix": {
			descriptor: Descriptor{Name: "memory.total", Kind: KindMegabytesToBytes},
			want:       "nvsmi_memory_total_bytes",
		},
		"celsius suffix": {
			descriptor: Descriptor{Name: "temperature.gpu", Kind: KindCelsius},
			want:       "nvsmi_temperature_gpu_celsius",
		},
		"watts suffix": {
			descriptor: Descriptor{Name: "power.draw", Kind: KindWatts},
			want:       "nvsmi_power_draw_watts",
		},
		"hex keeps bare name": {
			descriptor: Descriptor{Name: "pci.device_id", Kind: KindHex},
			want:       "nvsmi_pci_device_id",
		},
	}

	for tName, test := range tT {
		t.Run(tName, func(t *testing.T) {
			assert.Equal(t, test.want, test.descriptor.ExposedName())
		})
	}
}

func TestDescriptorLabelName(t *testing.T) {
	d := Descriptor{Name: "pci.device_id", Kind: KindHex, AsLabel: true}
	assert.Equal(t, "pci_device_id", d.LabelName())
}

func TestNewRegistryValidation(t *testing.T) {
	tT := map[string]struct {
		descriptors   []Descriptor
		wantErrString string
	}{
		"valid set": {
			descriptors: []Descriptor{
				{Name: "memory.used", Help: "used", Kind: KindMegabytesToBytes},
				{Name: "gpu_serial", Help: "serial", Kind: KindString, AsLabel: true},
			},
		},
		"empty name rejected": {
			descriptors:   []Descriptor{{Kind: KindIntegerRaw}},
			wantErrString: "empty name",
		},
		"duplicate name rejected": {
			descriptors: []Descriptor{
				{Name: "fan.speed", Help: "a", Kind: KindIntegerRaw},
				{Name: "fan.speed", Help: "b", Kind: KindIntegerRaw},
			},
			wantErrString: "duplicate metric name fan.speed",
		},
		"colliding exposed names rejected": {
			descriptors: []Descriptor{
				{Name: "memory.used", Help: "a", Kind: KindIntegerRaw},
				{Name: "memory_used", Help: "b", Kind: KindIntegerRaw},
			},
			wantErrString: "both expose nvsmi_memory_used",
		},
		"invalid label characters rejected": {
			descriptors:   []Descriptor{{Name: "fan-speed", Help: "a", Kind: KindIntegerRaw}},
			wantErrString: "not a valid label name",
		},
	}

	for tName, test := range tT {
		t.Run(tName, func(t *testing.T) {
			r, err := NewRegistry(test.descriptors)
			if test.wantErrString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.wantErrString)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(test.descriptors), r.Len())
		})
	}
}

func TestRegistryDescribe(t *testing.T) {
	r := DefaultRegistry()

	d, err := r.Describe("memory.total")
	require.NoError(t, err)
	assert.Equal(t, KindMegabytesToBytes, d.Kind)
	assert.Equal(t, "nvsmi_memory_total_bytes", d.ExposedName())

	_, err = r.Describe("ecc.errors")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.Equal(t, 21, r.Len())

	// query order is the CSV column contract, starting at the driver
	// version and ending at the PCI-E link width
	fields := r.QueryFields()
	assert.Equal(t, "driver_version", fields[0])
	assert.Equal(t, "pcie.link.width.max", fields[len(fields)-1])

	var labelKeys []string
	for _, d := range r.Descriptors() {
		if d.AsLabel {
			labelKeys = append(labelKeys, d.LabelName())
		}
	}
	wantKeys := []string{"gpu_serial", "gpu_name", "index", "pci_domain", "pci_bus", "pci_device", "pci_device_id"}
	if diff := cmp.Diff(wantKeys, labelKeys); diff != "" {
		t.Errorf("label keys mismatch (-want +got):\n%s", diff)
	}
}
