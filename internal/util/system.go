package util

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

func IsRoot() bool {
	return os.Geteuid() == 0
}

func HasSystemctl() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func ServiceIsActive(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || !HasSystemctl() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", name)
	var out bytes.Buffer
	cmd.Stdout = &out
	_ = cmd.Run()
	return strings.TrimSpace(out.String()) == "active"
}

// PlatformProbe collects the diagnostic text attached to scan errors. The
// probe runs once, on first use; later calls return the cached text.
type PlatformProbe struct {
	Adapter string
	Backend string

	once sync.Once
	text string
}

func NewPlatformProbe(adapter, backend string) *PlatformProbe {
	return &PlatformProbe{Adapter: adapter, Backend: backend}
}

func (p *PlatformProbe) String() string {
	if p == nil {
		return ""
	}
	p.once.Do(func() {
		p.text = probePlatform(context.Background(), p.Adapter, p.Backend)
	})
	return p.text
}

func probePlatform(ctx context.Context, adapter, backend string) string {
	fields := []string{
		"os=" + runtime.GOOS,
		"arch=" + runtime.GOARCH,
		fmt.Sprintf("root=%t", IsRoot()),
	}
	if backend != "" {
		fields = append(fields, "backend="+backend)
	}
	if adapter != "" {
		fields = append(fields, "adapter="+adapter)
		_, err := os.Stat("/sys/class/bluetooth/" + adapter)
		fields = append(fields, fmt.Sprintf("adapter_present=%t", err == nil))
	}
	if runtime.GOOS == "linux" {
		fields = append(fields, fmt.Sprintf("bluetooth_service_active=%t", ServiceIsActive(ctx, "bluetooth")))
	}
	return strings.Join(fields, " ")
}
