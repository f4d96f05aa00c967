// Package sysinfo describes the device for the provisioning page and
// telemetry payloads.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Descriptor is served as GET /system. Probes that fail leave their fields
// empty and record the failure in Errors.
type Descriptor struct {
	Description     string            `json:"device-description"`
	RuntimeVersion  string            `json:"runtime-version"`
	Hostname        string            `json:"hostname"`
	OS              string            `json:"os"`
	Arch            string            `json:"arch"`
	Platform        string            `json:"platform,omitempty"`
	Kernel          string            `json:"kernel,omitempty"`
	UptimeSeconds   uint64            `json:"uptime-seconds,omitempty"`
	MemoryTotal     uint64            `json:"memory-total,omitempty"`
	MemoryAvailable uint64            `json:"memory-available,omitempty"`
	CollectedAt     time.Time         `json:"collected-at"`
	Errors          map[string]string `json:"errors,omitempty"`
}

// Collector gathers a Descriptor with every probe bounded by a timeout.
type Collector struct {
	timeout     time.Duration
	description string
	modelPath   string
}

func NewCollector(description string, timeout time.Duration) *Collector {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Collector{
		timeout:     timeout,
		description: description,
		modelPath:   "/proc/device-tree/model",
	}
}

// Collect runs all probes in parallel.
func (c *Collector) Collect(ctx context.Context) *Descriptor {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	d := &Descriptor{
		Description:    c.description,
		RuntimeVersion: runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		CollectedAt:    time.Now().UTC(),
	}

	var (
		mu   sync.Mutex
		errs = map[string]string{}
		wg   sync.WaitGroup
	)
	probes := []struct {
		name string
		fn   func(context.Context, *Descriptor, *sync.Mutex) error
	}{
		{"host", probeHost},
		{"memory", probeMemory},
		{"model", c.probeModel},
	}
	for _, probe := range probes {
		wg.Add(1)
		go func(name string, fn func(context.Context, *Descriptor, *sync.Mutex) error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs[name] = fmt.Sprintf("panic: %v", r)
					mu.Unlock()
				}
			}()
			if err := fn(ctx, d, &mu); err != nil {
				mu.Lock()
				errs[name] = err.Error()
				mu.Unlock()
			}
		}(probe.name, probe.fn)
	}
	wg.Wait()

	if len(errs) > 0 {
		d.Errors = errs
	}
	return d
}

func probeHost(ctx context.Context, d *Descriptor, mu *sync.Mutex) error {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	d.Hostname = info.Hostname
	d.Kernel = info.KernelVersion
	d.UptimeSeconds = info.Uptime
	d.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	return nil
}

func probeMemory(ctx context.Context, d *Descriptor, mu *sync.Mutex) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	d.MemoryTotal = vm.Total
	d.MemoryAvailable = vm.Available
	return nil
}

// probeModel prefers the board model from the device tree as description.
func (c *Collector) probeModel(_ context.Context, d *Descriptor, mu *sync.Mutex) error {
	if c.description != "" {
		return nil
	}
	data, err := os.ReadFile(c.modelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	d.Description = strings.TrimRight(string(data), "\x00\n ")
	return nil
}
