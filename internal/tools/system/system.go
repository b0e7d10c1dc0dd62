// Package system provides the system_info tool: CPU, memory, disk, uptime,
// and the busiest processes. Results are cached briefly since the model
// often asks twice in one turn.
package system

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"hearth/internal/safety"
	"hearth/internal/tools"
)

const (
	cacheTTL     = 30 * time.Second
	topProcesses = 5
)

type collector struct {
	mu       sync.Mutex
	cached   string
	cachedAt time.Time
	now      func() time.Time
}

// New builds the system_info tool.
func New() *tools.Tool {
	c := &collector{now: time.Now}
	return &tools.Tool{
		Name:        "system_info",
		Description: "Report CPU, memory, disk usage, uptime, and the busiest processes on this machine.",
		InputSchema: tools.ObjectSchema(nil),
		Handler:     c.handle,
		DefaultTier: safety.TierAuto,
	}
}

func (c *collector) handle(ctx context.Context, input tools.Input) (string, error) {
	c.mu.Lock()
	if c.cached != "" && c.now().Sub(c.cachedAt) < cacheTTL {
		out := c.cached
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	out, err := collect(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cached = out
	c.cachedAt = c.now()
	c.mu.Unlock()
	return out, nil
}

func collect(ctx context.Context) (string, error) {
	var b strings.Builder

	if info, err := host.InfoWithContext(ctx); err == nil {
		up := time.Duration(info.Uptime) * time.Second
		fmt.Fprintf(&b, "host: %s (%s %s), up %s\n",
			info.Hostname, info.Platform, info.PlatformVersion, formatUptime(up))
	}

	if pcts, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false); err == nil && len(pcts) > 0 {
		counts, _ := cpu.CountsWithContext(ctx, true)
		fmt.Fprintf(&b, "cpu: %.1f%% across %d cores\n", pcts[0], counts)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fmt.Fprintf(&b, "memory: %.1f%% used (%s of %s)\n",
			vm.UsedPercent, formatBytes(vm.Used), formatBytes(vm.Total))
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		fmt.Fprintf(&b, "disk /: %.1f%% used (%s free of %s)\n",
			du.UsedPercent, formatBytes(du.Free), formatBytes(du.Total))
	}

	if top := topByCPU(ctx); top != "" {
		b.WriteString("top processes by cpu:\n")
		b.WriteString(top)
	}

	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return "", fmt.Errorf("no system metrics available")
	}
	return out, nil
}

func topByCPU(ctx context.Context) string {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return ""
	}

	type procStat struct {
		pid  int32
		name string
		cpu  float64
	}
	stats := make([]procStat, 0, len(procs))
	for _, p := range procs {
		pct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			name = "?"
		}
		stats = append(stats, procStat{pid: p.Pid, name: name, cpu: pct})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].cpu > stats[j].cpu })

	var b strings.Builder
	for i, s := range stats {
		if i >= topProcesses {
			break
		}
		fmt.Fprintf(&b, "  %d %s %.1f%%\n", s.pid, s.name, s.cpu)
	}
	return b.String()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
