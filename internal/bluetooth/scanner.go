package bluetooth

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	tg "tinygo.org/x/bluetooth"

	"blescan/internal/logging"
)

// TinyGoSource scans through tinygo.org/x/bluetooth in callback mode.
// Results arrive on the stack's own goroutine and are forwarded to emit.
type TinyGoSource struct {
	AdapterID string
}

func NewTinyGoSource(adapterID string) *TinyGoSource {
	return &TinyGoSource{AdapterID: strings.TrimSpace(adapterID)}
}

func (s *TinyGoSource) Name() string { return "tinygo" }

func (s *TinyGoSource) Start(ctx context.Context, emit func(RawEvent)) (ScanHandle, error) {
	var adapter *tg.Adapter
	if s.AdapterID == "" {
		adapter = tg.DefaultAdapter
	} else {
		adapter = tg.NewAdapter(s.AdapterID)
	}
	if err := adapter.Enable(); err != nil {
		return nil, NewStartupError("enable adapter "+s.adapterLabel(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewStartupError("scan cancelled before start", err)
	}

	h := &tinyGoHandle{adapter: adapter, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		err := adapter.Scan(func(_ *tg.Adapter, res tg.ScanResult) {
			emit(s.rawEvent(res))
		})
		h.mu.Lock()
		if !h.stopping && err != nil {
			h.err = err
		}
		h.mu.Unlock()
	}()

	logging.Debug("tinygo scan started", zap.String("adapter", s.adapterLabel()))
	return h, nil
}

func (s *TinyGoSource) adapterLabel() string {
	if s.AdapterID == "" {
		return "default"
	}
	return s.AdapterID
}

func (s *TinyGoSource) rawEvent(res tg.ScanResult) RawEvent {
	addr := res.Address.String()
	rssi := int(res.RSSI)
	ev := RawEvent{
		Address: addr,
		RSSI:    &rssi,
	}

	if name := res.LocalName(); name != "" {
		ev.LocalName = &name
	}
	for _, u := range res.ServiceUUIDs() {
		ev.ServiceUUIDs = append(ev.ServiceUUIDs, u.String())
	}
	for _, m := range res.ManufacturerData() {
		ev.ManufacturerData = append(ev.ManufacturerData, ManufacturerEntry{
			CompanyID: int(m.CompanyID),
			Data:      append([]byte(nil), m.Data...),
		})
	}
	for _, sd := range res.ServiceData() {
		ev.ServiceData = append(ev.ServiceData, ServiceDataEntry{
			UUID: sd.UUID.String(),
			Data: append([]byte(nil), sd.Data...),
		})
	}
	if b := res.Bytes(); len(b) > 0 {
		ev.AdvBytes = append([]byte(nil), b...)
	}

	class := ClassifyAddress(addr, res.Address.IsRandom())
	ev.Platform = map[string]any{
		"source":          "tinygo.org/x/bluetooth",
		"adapter":         s.adapterLabel(),
		"address_type":    class.Type,
		"address_subtype": class.Subtype,
	}
	return ev
}

type tinyGoHandle struct {
	adapter *tg.Adapter
	done    chan struct{}

	mu       sync.Mutex
	stopping bool
	err      error

	stopOnce sync.Once
	stopErr  error
}

func (h *tinyGoHandle) Stop() error {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopping = true
		h.mu.Unlock()

		select {
		case <-h.done:
			// scan already ended on its own
		default:
			if h.stopErr = h.adapter.StopScan(); h.stopErr == nil {
				<-h.done
			}
		}
	})
	return h.stopErr
}

func (h *tinyGoHandle) Done() <-chan struct{} { return h.done }

func (h *tinyGoHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
