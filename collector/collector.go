// Package collector normalizes raw nvidia-smi query output and renders
// it as Prometheus exposition text for the node_exporter textfile
// collector.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrFieldCount is returned when a data row does not line up with the
// registry's field list. A misaligned row would attach values to the
// wrong descriptors, so the pass fails instead of guessing.
var ErrFieldCount = errors.New("row field count does not match registry")

// Collector drives one collection pass: it walks the raw rows of a
// single nvidia-smi invocation, normalizes every field, assembles the
// per-device label set and folds the resulting records into a
// Collection.
type Collector struct {
	registry *Registry
	logger   *slog.Logger
}

func NewCollector(registry *Registry, logger *slog.Logger) *Collector {
	return &Collector{registry: registry, logger: logger}
}

// Collect processes the rows of one invocation and returns the filled
// collection plus the number of device rows seen. Blank rows are
// skipped and a leading header row is discarded. Any structural problem
// aborts the pass; the caller must not emit partial output.
func (c *Collector) Collect(rows [][]string) (*Collection, int, error) {
	coll := NewCollection()
	devices := 0
	headerChecked := false
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if !headerChecked {
			headerChecked = true
			if c.isHeaderRow(row) {
				c.logger.Debug("discarding header row", slog.Int("row", i))
				continue
			}
		}
		if err := c.collectRow(coll, i, row); err != nil {
			return nil, 0, err
		}
		devices++
	}
	return coll, devices, nil
}

func (c *Collector) collectRow(coll *Collection, idx int, row []string) error {
	if len(row) != c.registry.Len() {
		return fmt.Errorf("row %d has %d fields, expected %d: %w", idx, len(row), c.registry.Len(), ErrFieldCount)
	}

	descriptors := c.registry.Descriptors()
	instances := make([]Instance, len(row))
	for i, raw := range row {
		inst := Normalize(descriptors[i], raw)
		if !inst.Enabled {
			c.logger.Debug("field not usable, skipping",
				slog.String("metric", inst.Descriptor.Name),
				slog.String("raw", inst.Raw),
				slog.Int("row", idx))
		}
		instances[i] = inst
	}

	// The shared label set must be complete before any sample is
	// formatted. Labels without a usable value are left out entirely.
	var labels LabelSet
	for _, inst := range instances {
		if inst.Descriptor.AsLabel && inst.Enabled {
			labels = append(labels, LabelPair{Key: inst.Descriptor.LabelName(), Value: inst.renderLabel()})
		}
	}

	for _, inst := range instances {
		if inst.Descriptor.AsLabel {
			continue
		}
		if err := coll.Add(FormatInstance(inst, labels)); err != nil {
			return fmt.Errorf("row %d: %w", idx, err)
		}
	}
	return nil
}

// isHeaderRow reports whether row is the column header nvidia-smi
// prints before the first device. The first column is recognizable: it
// carries the first query field's name, possibly with a unit
// annotation such as "utilization.gpu [%]".
func (c *Collector) isHeaderRow(row []string) bool {
	if len(row) == 0 || c.registry.Len() == 0 {
		return false
	}
	first := strings.TrimSpace(row[0])
	name := c.registry.Descriptors()[0].Name
	return first == name || strings.HasPrefix(first, name+" [")
}

func isBlankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
