package collector

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// ErrHelpMismatch is returned when two records of the same exposed name
// carry different metadata. The exposition format allows HELP and TYPE
// only once per name, so this aborts the whole pass.
var ErrHelpMismatch = errors.New("conflicting metric metadata")

// LabelPair is a single key="value" element of a label set.
type LabelPair struct {
	Key   string
	Value string
}

// LabelSet is an ordered list of label pairs. Order is the registry's
// declaration order and is preserved verbatim in the output.
type LabelSet []LabelPair

var (
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
)

// String renders the set as it appears between the braces of a sample
// line, pairs joined by a comma and a space.
func (ls LabelSet) String() string {
	var b strings.Builder
	for i, p := range ls {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Key)
		b.WriteString(`="`)
		b.WriteString(labelEscaper.Replace(p.Value))
		b.WriteString(`"`)
	}
	return b.String()
}

// withExtra returns a copy of the set with one pair appended, leaving
// the receiver untouched so shared device labels stay reusable.
func (ls LabelSet) withExtra(key, value string) LabelSet {
	out := make(LabelSet, 0, len(ls)+1)
	out = append(out, ls...)
	return append(out, LabelPair{Key: key, Value: value})
}

// sample is one rendered sample of a record: its labels, the exact
// value text for the output and the numeric value for the Gatherer
// bridge.
type sample struct {
	labels LabelSet
	value  string
	num    float64
}

// Record groups the samples of one exposed metric name together with
// the metadata emitted once per name. Every metric this program
// produces is a gauge.
type Record struct {
	ExposedName string
	Help        string
	samples     []sample
}

// FormatInstance renders one normalized instance into a single-sample
// record carrying the shared device labels. Disabled instances yield
// nil, which Collection.Add treats as a no-op. String metrics follow
// the info pattern: constant value 1 with the text appended as an
// extra label.
func FormatInstance(inst Instance, labels LabelSet) *Record {
	if !inst.Enabled {
		return nil
	}
	d := inst.Descriptor
	ls := labels
	if d.Kind == KindString {
		ls = labels.withExtra(d.LabelName(), inst.Text)
	}
	return &Record{
		ExposedName: d.ExposedName(),
		Help:        d.Help,
		samples:     []sample{{labels: ls, value: inst.renderValue(), num: inst.Value()}},
	}
}

// Collection accumulates records across device rows, de-duplicating
// metadata per exposed name while preserving first-seen order. It is
// written by a single goroutine per pass; rows are appended
// sequentially so the final output order stays deterministic.
type Collection struct {
	order   []string
	records map[string]*Record
}

func NewCollection() *Collection {
	return &Collection{records: make(map[string]*Record)}
}

// Add merges a record. The first record of a name fixes its metadata;
// later records must match byte for byte or the pass fails.
func (c *Collection) Add(rec *Record) error {
	if rec == nil {
		return nil
	}
	existing, ok := c.records[rec.ExposedName]
	if !ok {
		c.records[rec.ExposedName] = rec
		c.order = append(c.order, rec.ExposedName)
		return nil
	}
	if existing.Help != rec.Help {
		return fmt.Errorf("metric %s: %w: help %q vs %q", rec.ExposedName, ErrHelpMismatch, rec.Help, existing.Help)
	}
	existing.samples = append(existing.samples, rec.samples...)
	return nil
}

// AddGauge appends a standalone gauge such as the collector's own
// telemetry, going through the same metadata checks as device metrics.
// Whole numbers are written without a decimal point.
func (c *Collection) AddGauge(name, help string, labels LabelSet, value float64) error {
	text := strconv.FormatFloat(value, 'f', -1, 64)
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		text = strconv.FormatInt(int64(value), 10)
	}
	return c.Add(&Record{
		ExposedName: name,
		Help:        help,
		samples:     []sample{{labels: labels, value: text, num: value}},
	})
}

// Names returns the exposed metric names in first-seen order.
func (c *Collection) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// SampleCount reports the total number of sample lines across all
// records.
func (c *Collection) SampleCount() int {
	n := 0
	for _, rec := range c.records {
		n += len(rec.samples)
	}
	return n
}

// WriteTo renders the whole collection as exposition text: per metric a
// HELP line, a TYPE line and all its samples, metrics in first-seen
// order, every line newline-terminated.
func (c *Collection) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range c.order {
		rec := c.records[name]
		var b strings.Builder
		b.WriteString("# HELP ")
		b.WriteString(rec.ExposedName)
		b.WriteString(" ")
		b.WriteString(helpEscaper.Replace(rec.Help))
		b.WriteString("\n# TYPE ")
		b.WriteString(rec.ExposedName)
		b.WriteString(" gauge\n")
		for _, s := range rec.samples {
			b.WriteString(rec.ExposedName)
			if len(s.labels) > 0 {
				b.WriteString("{")
				b.WriteString(s.labels.String())
				b.WriteString("}")
			}
			b.WriteString(" ")
			b.WriteString(s.value)
			b.WriteString("\n")
		}
		n, err := io.WriteString(w, b.String())
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("writing metric %s: %w", rec.ExposedName, err)
		}
	}
	return total, nil
}

// Gather implements the prometheus.Gatherer contract over the collected
// records, letting standard tooling consume a pass without re-parsing
// text. Families are sorted by name as gatherers are expected to do;
// the text output keeps first-seen order regardless.
func (c *Collection) Gather() ([]*dto.MetricFamily, error) {
	families := make([]*dto.MetricFamily, 0, len(c.order))
	for _, name := range c.order {
		rec := c.records[name]
		mf := &dto.MetricFamily{
			Name: ptrTo(rec.ExposedName),
			Help: ptrTo(rec.Help),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, s := range rec.samples {
			m := &dto.Metric{Gauge: &dto.Gauge{Value: ptrTo(s.num)}}
			for _, p := range s.labels {
				m.Label = append(m.Label, &dto.LabelPair{
					Name:  ptrTo(p.Key),
					Value: ptrTo(p.Value),
				})
			}
			mf.Metric = append(mf.Metric, m)
		}
		families = append(families, mf)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	return families, nil
}

func ptrTo[T any](v T) *T {
	return &v
}
