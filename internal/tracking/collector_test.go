package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedProvider struct {
	mu  sync.Mutex
	pos Position
	err error
}

func (p *scriptedProvider) CurrentPosition(_ context.Context) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return Position{}, p.err
	}
	return p.pos, nil
}

func (p *scriptedProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type fixSink struct {
	mu    sync.Mutex
	fixes []Position
	errs  []error
}

func (s *fixSink) onFix(pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes = append(s.fixes, pos)
}

func (s *fixSink) onErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *fixSink) fixCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fixes)
}

func (s *fixSink) errCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func TestCollectorArmDeniedWithoutPermission(t *testing.T) {
	p := &scriptedProvider{err: ErrPermissionDenied}
	col := NewProviderCollector(5*time.Millisecond, p)

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied at arm, got %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	if sink.fixCount() != 0 {
		t.Fatalf("denied collector must not deliver fixes")
	}
}

func TestCollectorDeliversFixes(t *testing.T) {
	p := &scriptedProvider{pos: Position{Lat: 12.9, Lng: 77.6}}
	col := NewProviderCollector(5*time.Millisecond, p)
	defer col.Disarm()

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if sink.fixCount() < 2 {
		t.Fatalf("expected probe fix plus periodic fixes, got %d", sink.fixCount())
	}
	sink.mu.Lock()
	first := sink.fixes[0]
	sink.mu.Unlock()
	if first.Lat != 12.9 || first.RecordedAt.IsZero() {
		t.Fatalf("unexpected fix %+v", first)
	}
}

func TestCollectorFirstAnsweringProviderWins(t *testing.T) {
	down := &scriptedProvider{err: ErrNoFix}
	up := &scriptedProvider{pos: Position{Lat: 1, Lng: 2}}
	col := NewProviderCollector(5*time.Millisecond, down, up)
	defer col.Disarm()

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.fixes) == 0 || sink.fixes[0].Lat != 1 {
		t.Fatalf("expected fix from the answering provider")
	}
}

func TestCollectorSilentWhenNoProviderAnswers(t *testing.T) {
	p := &scriptedProvider{err: ErrNoFix}
	col := NewProviderCollector(5*time.Millisecond, p)
	defer col.Disarm()

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("no-fix providers must arm silently, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if sink.fixCount() != 0 || sink.errCount() != 0 {
		t.Fatalf("expected silence, got %d fixes %d errs", sink.fixCount(), sink.errCount())
	}
}

func TestCollectorNoProvidersConfigured(t *testing.T) {
	col := NewProviderCollector(5 * time.Millisecond)
	defer col.Disarm()

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm without providers: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	if sink.fixCount() != 0 {
		t.Fatalf("expected no fixes without providers")
	}
}

func TestCollectorPermissionLostLater(t *testing.T) {
	p := &scriptedProvider{pos: Position{Lat: 12.9, Lng: 77.6}}
	col := NewProviderCollector(5*time.Millisecond, p)
	defer col.Disarm()

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm: %v", err)
	}
	time.Sleep(12 * time.Millisecond)
	p.setErr(ErrPermissionDenied)
	time.Sleep(30 * time.Millisecond)

	if sink.errCount() != 1 {
		t.Fatalf("expected the permission loss reported exactly once, got %d", sink.errCount())
	}
}

func TestCollectorDisarmStopsDelivery(t *testing.T) {
	p := &scriptedProvider{pos: Position{Lat: 12.9, Lng: 77.6}}
	col := NewProviderCollector(5*time.Millisecond, p)

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm: %v", err)
	}
	time.Sleep(12 * time.Millisecond)
	col.Disarm()
	time.Sleep(5 * time.Millisecond) // let any in-flight tick land
	seen := sink.fixCount()

	time.Sleep(30 * time.Millisecond)
	if sink.fixCount() != seen {
		t.Fatalf("fixes delivered after disarm")
	}

	// re-arm works for a fresh shift
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("re-arm: %v", err)
	}
	col.Disarm()
}

func TestPushCollector(t *testing.T) {
	col := NewPushCollector()
	sink := &fixSink{}

	if col.Push(Position{Lat: 1}) {
		t.Fatalf("push while disarmed must be dropped")
	}

	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := col.Arm(sink.onFix, sink.onErr); err == nil {
		t.Fatalf("expected error on double arm")
	}
	if !col.Push(Position{Lat: 12.9, Lng: 77.6}) {
		t.Fatalf("push while armed must be accepted")
	}
	if sink.fixCount() != 1 {
		t.Fatalf("expected 1 fix, got %d", sink.fixCount())
	}
	sink.mu.Lock()
	recorded := sink.fixes[0].RecordedAt
	sink.mu.Unlock()
	if recorded.IsZero() {
		t.Fatalf("expected recorded_at defaulted")
	}

	if !col.PushError(ErrPermissionDenied) {
		t.Fatalf("expected error forwarded while armed")
	}
	if sink.errCount() != 1 {
		t.Fatalf("expected 1 error, got %d", sink.errCount())
	}

	col.Disarm()
	if col.Push(Position{Lat: 1}) || col.PushError(ErrPermissionDenied) {
		t.Fatalf("pushes after disarm must be dropped")
	}
}

func TestCollectorDoubleArm(t *testing.T) {
	p := &scriptedProvider{pos: Position{Lat: 1, Lng: 1}}
	col := NewProviderCollector(time.Minute, p)
	defer col.Disarm()

	sink := &fixSink{}
	if err := col.Arm(sink.onFix, sink.onErr); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := col.Arm(sink.onFix, sink.onErr); err == nil {
		t.Fatalf("expected error on double arm")
	}
}
