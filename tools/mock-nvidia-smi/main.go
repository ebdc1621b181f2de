// Command mock-nvidia-smi impersonates nvidia-smi on machines without
// GPUs, for developing and testing nvsmi-prometheus-textfile and its
// cron/systemd wiring. It understands the --query-gpu/--format=csv
// invocation the exporter issues and renders canned device data for
// the requested fields.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/imcf/nvsmi-prometheus-textfile/collector"
)

// Device is one simulated GPU. Fields the profile leaves out are
// reported as [Not Supported], which is handy for testing how the
// exporter copes with older hardware.
type Device struct {
	Fields map[string]string `yaml:"fields"`
}

// Profile is a canned fleet of devices loaded from YAML.
type Profile struct {
	Devices []Device `yaml:"devices"`
}

// Config holds the simulation knobs.
type Config struct {
	ProfileFile   string
	ResponseDelay time.Duration
	FailureRate   float64
}

// defaultDevice is a single Tesla M10 with every field populated.
var defaultDevice = Device{Fields: map[string]string{
	"driver_version":          "440.100",
	"gpu_serial":              "0322918011111",
	"gpu_name":                "Tesla M10",
	"index":                   "0",
	"utilization.gpu":         "23 %",
	"utilization.memory":      "5 %",
	"memory.total":            "16130 MiB",
	"memory.free":             "16000 MiB",
	"memory.used":             "130 MiB",
	"temperature.gpu":         "36",
	"fan.speed":               "40 %",
	"power.draw":              "30.65 W",
	"power.limit":             "150.00 W",
	"pci.domain":              "0x0",
	"pci.bus":                 "0x00",
	"pci.device":              "0x04",
	"pci.device_id":           "0x13B210DE",
	"pcie.link.gen.current":   "3",
	"pcie.link.gen.max":       "3",
	"pcie.link.width.current": "16",
	"pcie.link.width.max":     "16",
}}

func main() {
	var config Config
	flag.StringVar(&config.ProfileFile, "profile", "", "YAML file with simulated devices (defaults to one Tesla M10)")
	flag.DurationVar(&config.ResponseDelay, "delay", 0, "Sleep before answering, to exercise query timeouts")
	flag.Float64Var(&config.FailureRate, "failure-rate", 0, "Probability of simulating a lost GPU (0..1)")
	queryGPU := flag.String("query-gpu", "", "Comma separated field list, as the real tool takes it")
	format := flag.String("format", "", "Output format, csv or csv,noheader")
	flag.Parse()

	if config.ResponseDelay > 0 {
		time.Sleep(config.ResponseDelay)
	}
	if config.FailureRate > 0 && rand.Float64() < config.FailureRate {
		fmt.Println("Unable to determine the device handle for GPU 0000:00:04.0: GPU is lost.")
		os.Exit(15)
	}

	if *queryGPU == "" {
		fmt.Println("mock-nvidia-smi only implements --query-gpu with --format=csv")
		os.Exit(2)
	}
	noHeader := false
	switch *format {
	case "csv":
	case "csv,noheader":
		noHeader = true
	default:
		fmt.Printf("Invalid format %q, only csv is mocked.\n", *format)
		os.Exit(2)
	}

	registry := collector.DefaultRegistry()
	fields := strings.Split(*queryGPU, ",")
	descriptors := make([]collector.Descriptor, 0, len(fields))
	for _, f := range fields {
		d, err := registry.Describe(strings.TrimSpace(f))
		if err != nil {
			fmt.Printf("Field %q is not a valid field to query.\n", f)
			os.Exit(2)
		}
		descriptors = append(descriptors, d)
	}

	devices := []Device{defaultDevice}
	if config.ProfileFile != "" {
		profile, err := loadProfile(config.ProfileFile)
		if err != nil {
			log.Fatalf("failed to load profile: %v", err)
		}
		devices = profile.Devices
	}

	if !noHeader {
		fmt.Println(headerLine(descriptors))
	}
	for _, dev := range devices {
		fmt.Println(deviceLine(descriptors, dev))
	}
}

func loadProfile(filename string) (*Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	if len(profile.Devices) == 0 {
		return nil, fmt.Errorf("profile %s defines no devices", filename)
	}
	return &profile, nil
}

// headerLine mimics the column header the real tool prints: the field
// name plus a unit annotation where the value carries one.
func headerLine(descriptors []collector.Descriptor) string {
	cols := make([]string, len(descriptors))
	for i, d := range descriptors {
		cols[i] = d.Name + headerUnit(d.Kind)
	}
	return strings.Join(cols, ", ")
}

func headerUnit(kind collector.ValueKind) string {
	switch kind {
	case collector.KindPercentRatio:
		return " [%]"
	case collector.KindMegabytesToBytes:
		return " [MiB]"
	case collector.KindWatts:
		return " [W]"
	}
	return ""
}

func deviceLine(descriptors []collector.Descriptor, dev Device) string {
	cols := make([]string, len(descriptors))
	for i, d := range descriptors {
		value, ok := dev.Fields[d.Name]
		if !ok {
			value = "[Not Supported]"
		}
		cols[i] = value
	}
	return strings.Join(cols, ", ")
}
