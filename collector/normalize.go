package collector

import (
	"strconv"
	"strings"
)

// notSupported is printed by nvidia-smi for fields the installed driver
// or hardware does not implement.
const notSupported = "[Not Supported]"

// bytesPerMiB converts nvidia-smi memory readings, which are MiB.
const bytesPerMiB = 1048576

// Instance is one descriptor's observation in one device row. Instances
// are built fresh for every row and never reused. A disabled instance
// produced no usable value and is skipped by the formatter.
type Instance struct {
	Descriptor Descriptor
	// Raw is the field text after whitespace trimming, kept for logging.
	Raw     string
	Enabled bool

	// The typed value, populated according to Descriptor.Kind. Text
	// carries string values verbatim and hex values in their original
	// base; Int additionally holds the numeric value of hex fields.
	Text  string
	Int   int64
	Float float64
}

// Normalize interprets one raw CSV field according to its descriptor.
// Empty fields, the not-supported sentinel and values that fail to parse
// all yield a disabled instance; these are expected on older driver and
// hardware generations and are never errors.
func Normalize(d Descriptor, raw string) Instance {
	inst := Instance{Descriptor: d, Raw: strings.TrimSpace(raw)}
	if inst.Raw == "" || inst.Raw == notSupported {
		return inst
	}
	if d.Kind == KindString {
		inst.Text = inst.Raw
		inst.Enabled = true
		return inst
	}

	// Numeric fields arrive with a unit suffix ("97 %", "16130 MiB").
	// Only the token before the first space is the value.
	tok := inst.Raw
	if i := strings.IndexByte(tok, ' '); i >= 0 {
		tok = tok[:i]
	}

	switch d.Kind {
	case KindIntegerRaw, KindCelsius:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return inst
		}
		inst.Int = v
	case KindPercentRatio:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return inst
		}
		inst.Float = v / 100.0
	case KindMegabytesToBytes:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return inst
		}
		inst.Int = v * bytesPerMiB
	case KindWatts:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return inst
		}
		inst.Float = v
	case KindHex:
		v, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return inst
		}
		inst.Int = v
		inst.Text = tok
	default:
		return inst
	}
	inst.Enabled = true
	return inst
}

// Value returns the sample value as a float64 for numeric consumers.
// String metrics follow the info pattern and are always 1.
func (in Instance) Value() float64 {
	switch in.Descriptor.Kind {
	case KindString:
		return 1
	case KindIntegerRaw, KindCelsius, KindMegabytesToBytes, KindHex:
		return float64(in.Int)
	case KindPercentRatio, KindWatts:
		return in.Float
	}
	return 0
}

// renderValue returns the exposition text of the sample value. Integer
// kinds never carry a decimal point, float kinds always do, and hex
// values keep the base they were reported in.
func (in Instance) renderValue() string {
	switch in.Descriptor.Kind {
	case KindString:
		return "1"
	case KindIntegerRaw, KindCelsius, KindMegabytesToBytes:
		return strconv.FormatInt(in.Int, 10)
	case KindPercentRatio, KindWatts:
		return formatFloat(in.Float)
	case KindHex:
		return in.Text
	}
	return ""
}

// renderLabel returns the text used when the instance fills a label.
func (in Instance) renderLabel() string {
	switch in.Descriptor.Kind {
	case KindString, KindHex:
		return in.Text
	case KindIntegerRaw, KindCelsius, KindMegabytesToBytes:
		return strconv.FormatInt(in.Int, 10)
	case KindPercentRatio, KindWatts:
		return formatFloat(in.Float)
	}
	return ""
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
