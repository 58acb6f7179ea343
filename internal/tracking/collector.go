package tracking

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPermissionDenied = errors.New("positioning permission denied")
	ErrNoFix            = errors.New("no position fix available")
)

// CaptureInterval is the fixed fix cadence. There is deliberately no
// movement threshold behind it.
const CaptureInterval = 5 * time.Minute

// PositionProvider abstracts one platform positioning source (satellite,
// network). CurrentPosition returns ErrNoFix when the provider is enabled
// but has nothing to report, and ErrPermissionDenied when positioning
// authorization is missing.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Collector delivers periodic position fixes to the controller. Arm reports
// ErrPermissionDenied exactly once when authorization is missing at
// activation; permission lost later is reported through onErr.
type Collector interface {
	Arm(onFix func(Position), onErr func(error)) error
	Disarm()
}

// ProviderCollector polls providers at a fixed cadence. There is no
// distance filter: the cadence is a heartbeat of presence, not a path
// recorder. A tick where no provider answers yields nothing.
type ProviderCollector struct {
	providers []PositionProvider
	interval  time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewProviderCollector(interval time.Duration, providers ...PositionProvider) *ProviderCollector {
	return &ProviderCollector{providers: providers, interval: interval}
}

func (p *ProviderCollector) Arm(onFix func(Position), onErr func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return errors.New("collector already armed")
	}

	// Probe once so a missing authorization fails the activation rather
	// than a later tick. A successful probe doubles as the first fix.
	pos, err := p.poll(context.Background())
	if errors.Is(err, ErrPermissionDenied) {
		return ErrPermissionDenied
	}

	stop := make(chan struct{})
	p.stop = stop

	go func() {
		if err == nil {
			onFix(pos)
		}
		p.loop(stop, onFix, onErr)
	}()
	return nil
}

func (p *ProviderCollector) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *ProviderCollector) loop(stop chan struct{}, onFix func(Position), onErr func(error)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pos, err := p.poll(context.Background())
			if errors.Is(err, ErrPermissionDenied) {
				onErr(err)
				return
			}
			if err != nil {
				continue
			}
			onFix(pos)
		}
	}
}

// poll asks each provider in order and takes the first fix that answers.
// Only when every provider reports a missing authorization does the poll
// count as permission denied.
func (p *ProviderCollector) poll(ctx context.Context) (Position, error) {
	if len(p.providers) == 0 {
		return Position{}, ErrNoFix
	}

	denied := 0
	for _, provider := range p.providers {
		pos, err := provider.CurrentPosition(ctx)
		if err == nil {
			if pos.RecordedAt.IsZero() {
				pos.RecordedAt = timeNow()
			}
			return pos, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			denied++
		}
	}
	if denied == len(p.providers) {
		return Position{}, ErrPermissionDenied
	}
	return Position{}, ErrNoFix
}

// PushCollector adapts a callback-style platform bridge: the device layer
// pushes fixes over the ingest endpoint and the collector forwards them
// while armed. Pushes while disarmed are dropped.
type PushCollector struct {
	mu    sync.Mutex
	onFix func(Position)
	onErr func(error)
}

func NewPushCollector() *PushCollector {
	return &PushCollector{}
}

func (p *PushCollector) Arm(onFix func(Position), onErr func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onFix != nil {
		return errors.New("collector already armed")
	}
	p.onFix = onFix
	p.onErr = onErr
	return nil
}

func (p *PushCollector) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFix = nil
	p.onErr = nil
}

// Push forwards one fix; reports whether a shift was listening.
func (p *PushCollector) Push(pos Position) bool {
	p.mu.Lock()
	onFix := p.onFix
	p.mu.Unlock()
	if onFix == nil {
		return false
	}
	if pos.RecordedAt.IsZero() {
		pos.RecordedAt = timeNow()
	}
	onFix(pos)
	return true
}

// PushError forwards a bridge-reported failure, e.g. a revoked
// positioning authorization.
func (p *PushCollector) PushError(err error) bool {
	p.mu.Lock()
	onErr := p.onErr
	p.mu.Unlock()
	if onErr == nil {
		return false
	}
	onErr(err)
	return true
}
