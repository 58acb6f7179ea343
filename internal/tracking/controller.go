package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-fieldforce/internal/shared/geo"
	"backend-fieldforce/internal/store"
	"backend-fieldforce/internal/stream"
	"backend-fieldforce/internal/syncer"
)

// Policy constants. The low-battery threshold and the stale-session cutoff
// are deliberate hardcoded policy, not configuration.
const (
	lowBatteryPct     = 5
	staleSessionAfter = 24 * time.Hour
)

type intervals struct {
	Battery   time.Duration
	Status    time.Duration
	Sync      time.Duration
	StopGrace time.Duration
}

var defaultIntervals = intervals{
	Battery:   30 * time.Second,
	Status:    30 * time.Second,
	Sync:      2 * time.Minute,
	StopGrace: 200 * time.Millisecond,
}

var timeNow = time.Now

var ErrNoActiveShift = errors.New("no active shift to stop")

// BatteryReader abstracts the platform battery gauge.
type BatteryReader interface {
	BatteryPercent(ctx context.Context) (int, error)
}

// SampleStore is the slice of the persistent local store the controller
// needs. *store.Store satisfies it.
type SampleStore interface {
	SaveSample(ctx context.Context, input store.Sample) (store.Sample, error)
	PendingSamples(ctx context.Context, employeeID string) ([]store.Sample, error)
	MarkSynced(ctx context.Context, ids []string) error
	PendingCount(ctx context.Context, employeeID string) (int, error)
	LastSample(ctx context.Context, employeeID string) (store.Sample, bool, error)
	SaveEmergencyCheckout(ctx context.Context, input store.EmergencyCheckout) (store.EmergencyCheckout, error)
	ClearEmployeeData(ctx context.Context, employeeID string) (int64, error)
}

// SessionKeeper holds the durable session record. *store.SessionStore
// satisfies it.
type SessionKeeper interface {
	Save(ctx context.Context, rec store.SessionRecord) error
	Load(ctx context.Context) (store.SessionRecord, bool, error)
	Clear(ctx context.Context) error
}

type Deps struct {
	Store     SampleStore
	Sessions  SessionKeeper
	Gateway   syncer.Gateway
	Hub       *stream.Hub
	Collector Collector
	Battery   BatteryReader
}

// Controller owns the shift lifecycle. All session state is mutated from a
// single event-loop goroutine: public methods post onto the queue and wait,
// collector callbacks and scheduler duties post and return. Nothing else
// touches the state, so no lock guards it.
type Controller struct {
	deps      Deps
	intervals intervals

	queue     chan func()
	closed    chan struct{}
	closeOnce sync.Once

	state          string
	employeeID     string
	employeeName   string
	checkInTime    time.Time
	lastSampleTime time.Time
	lastFix        *store.Sample
	batteryPct     int
	distanceKm     float64
	sched          *Scheduler
}

func NewController(deps Deps) *Controller {
	c := &Controller{
		deps:      deps,
		intervals: defaultIntervals,
		queue:     make(chan func(), 64),
		closed:    make(chan struct{}),
		state:     StateInactive,
	}
	go c.run()
	return c
}

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.queue:
			fn()
		case <-c.closed:
			return
		}
	}
}

// do posts fn onto the event loop and waits for it to complete.
func (c *Controller) do(fn func()) {
	done := make(chan struct{})
	select {
	case c.queue <- func() { fn(); close(done) }:
	case <-c.closed:
		return
	}
	select {
	case <-done:
	case <-c.closed:
	}
}

// post enqueues fn without waiting; used by timer and sensor callbacks.
func (c *Controller) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.closed:
	}
}

func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Start begins a shift. Calling it while a shift is active is a no-op, not
// an error. A missing positioning authorization fails the start.
func (c *Controller) Start(employeeID, employeeName string) error {
	var err error
	c.do(func() { err = c.startShift(employeeID, employeeName) })
	return err
}

func (c *Controller) startShift(employeeID, employeeName string) error {
	if c.state == StateActive {
		log.Printf("start ignored: shift already active for %s", c.employeeID)
		return nil
	}
	if c.state != StateInactive {
		return nil
	}

	c.state = StateActivating
	c.employeeID = employeeID
	c.employeeName = employeeName
	c.checkInTime = timeNow()
	c.lastSampleTime = time.Time{}
	c.lastFix = nil
	c.batteryPct = 0
	c.distanceKm = 0
	c.persistSession()

	if c.deps.Collector != nil {
		if err := c.deps.Collector.Arm(c.collectorFix, c.collectorErr); err != nil {
			log.Printf("start shift for %s failed: %v", employeeID, err)
			c.clearSession()
			c.resetToInactive()
			return err
		}
	}

	c.startScheduler()
	c.state = StateActive
	log.Printf("shift started for %s (%s)", employeeID, employeeName)
	c.publishStatus()
	return nil
}

// Stop ends the active shift on the employee's behalf.
func (c *Controller) Stop(checkOutData string) error {
	var err error
	c.do(func() {
		if c.state != StateActive && c.state != StateActivating {
			err = ErrNoActiveShift
			return
		}
		if checkOutData != "" {
			log.Printf("checkout data for %s: %s", c.employeeID, checkOutData)
		}
		c.stopShift(ReasonUserCheckout)
	})
	return err
}

// stopShift is the single teardown path for every kind of shift end. Once
// entered, no duty may re-arm and late collector callbacks are ignored.
func (c *Controller) stopShift(reason string) {
	c.state = StateDeactivating
	if c.deps.Collector != nil {
		c.deps.Collector.Disarm()
	}
	if c.sched != nil {
		c.sched.Stop()
		c.sched = nil
	}
	c.clearSession()
	// final observable status update before resources go away
	c.publishStatus()
	time.Sleep(c.intervals.StopGrace)
	log.Printf("shift stopped for %s (%s)", c.employeeID, reason)
	c.resetToInactive()
}

func (c *Controller) resetToInactive() {
	c.state = StateInactive
	c.employeeID = ""
	c.employeeName = ""
	c.checkInTime = time.Time{}
	c.lastSampleTime = time.Time{}
	c.lastFix = nil
	c.distanceKm = 0
	c.sched = nil
}

// RestoreOnProcessStart resumes a persisted session after a process
// restart. Sessions older than the staleness cutoff are discarded.
func (c *Controller) RestoreOnProcessStart() error {
	var err error
	c.do(func() { err = c.restore() })
	return err
}

func (c *Controller) restore() error {
	if c.state != StateInactive {
		return nil
	}
	c.state = StateRestoring

	rec, found, err := c.deps.Sessions.Load(context.Background())
	if err != nil {
		c.state = StateInactive
		return err
	}
	if !found || !rec.IsActive {
		c.state = StateInactive
		return nil
	}
	if timeNow().Sub(rec.CheckInTime) >= staleSessionAfter {
		log.Printf("discarding stale session for %s (checked in %s)", rec.EmployeeID, rec.CheckInTime)
		c.clearSession()
		c.state = StateInactive
		return nil
	}

	c.employeeID = rec.EmployeeID
	c.employeeName = rec.EmployeeName
	c.checkInTime = rec.CheckInTime
	c.lastSampleTime = rec.LastSampleTime
	c.lastFix = nil
	c.distanceKm = 0

	if c.deps.Collector != nil {
		if err := c.deps.Collector.Arm(c.collectorFix, c.collectorErr); err != nil {
			// the session was live when authorization went away, so this
			// ends as an emergency, not a failed start
			c.state = StateActive
			c.emergencyCheckout(store.ReasonPermissionDenied)
			return nil
		}
	}

	c.startScheduler()
	c.state = StateActive
	log.Printf("resumed shift for %s (checked in %s)", c.employeeID, c.checkInTime)
	c.publishStatus()
	return nil
}

// HandleTermination is the environment's teardown hook: the process is
// going away without a user checkout, so an active shift ends as an
// emergency before shutdown proceeds.
func (c *Controller) HandleTermination() {
	c.do(func() {
		if c.state == StateActive {
			c.emergencyCheckout(store.ReasonServiceTerminated)
		}
	})
}

func (c *Controller) startScheduler() {
	sched := NewScheduler(c.post)
	sched.Arm(Duty{Name: "battery", Interval: c.intervals.Battery, Run: c.batteryTick})
	sched.Arm(Duty{Name: "status", Interval: c.intervals.Status, Run: c.statusTick})
	sched.Arm(Duty{Name: "sync", Interval: c.intervals.Sync, Run: c.syncTick})
	c.sched = sched
}

func (c *Controller) collectorFix(pos Position) {
	c.post(func() { c.handleFix(pos) })
}

func (c *Controller) collectorErr(err error) {
	c.post(func() {
		if errors.Is(err, ErrPermissionDenied) {
			c.emergencyCheckout(store.ReasonPermissionDenied)
		}
	})
}

func (c *Controller) handleFix(pos Position) {
	if c.state != StateActive {
		return
	}

	pct := c.batteryPct
	if c.deps.Battery != nil {
		if v, err := c.deps.Battery.BatteryPercent(context.Background()); err == nil {
			pct = v
		}
	}

	sample, err := c.deps.Store.SaveSample(context.Background(), store.Sample{
		EmployeeID: c.employeeID,
		Lat:        pos.Lat,
		Lng:        pos.Lng,
		AccuracyM:  pos.AccuracyM,
		BatteryPct: pct,
		RecordedAt: pos.RecordedAt,
	})
	if err != nil {
		log.Printf("sample write failed: %v", err)
		return
	}

	if c.lastFix != nil {
		c.distanceKm += geo.HaversineKm(c.lastFix.Lat, c.lastFix.Lng, sample.Lat, sample.Lng)
	}
	c.lastFix = &sample
	c.lastSampleTime = sample.RecordedAt
	c.batteryPct = pct
	c.persistSession()

	c.syncTick()
	c.publishStatus()
}

func (c *Controller) batteryTick() {
	if c.state != StateActive {
		return
	}
	if c.deps.Battery == nil {
		return
	}
	pct, err := c.deps.Battery.BatteryPercent(context.Background())
	if err != nil {
		log.Printf("battery read failed: %v", err)
		return
	}
	c.batteryPct = pct
	if pct < lowBatteryPct {
		c.emergencyCheckout(store.ReasonBatteryLow)
	}
}

func (c *Controller) statusTick() {
	if c.state != StateActive {
		return
	}
	c.publishStatus()
}

// syncTick uploads the pending sample batch. Any failure leaves the batch
// PENDING for the next tick; there is no backoff.
func (c *Controller) syncTick() {
	if c.state != StateActive || c.deps.Gateway == nil {
		return
	}
	ctx := context.Background()

	samples, err := c.deps.Store.PendingSamples(ctx, c.employeeID)
	if err != nil {
		log.Printf("pending samples read failed: %v", err)
		return
	}
	if len(samples) == 0 {
		return
	}
	if err := c.deps.Gateway.Upload(ctx, samples); err != nil {
		log.Printf("sync upload failed, will retry: %v", err)
		return
	}

	ids := make([]string, 0, len(samples))
	for _, smp := range samples {
		ids = append(ids, smp.ID)
	}
	if err := c.deps.Store.MarkSynced(ctx, ids); err != nil {
		log.Printf("mark synced failed: %v", err)
	}
}

func (c *Controller) emergencyCheckout(reason string) {
	if c.state != StateActive {
		return
	}

	ec := store.EmergencyCheckout{
		EmployeeID: c.employeeID,
		Reason:     reason,
		OccurredAt: timeNow(),
	}
	last := c.lastFix
	if last == nil {
		if smp, ok, err := c.deps.Store.LastSample(context.Background(), c.employeeID); err == nil && ok {
			last = &smp
		}
	}
	if last != nil {
		ec.LastLat = &last.Lat
		ec.LastLng = &last.Lng
		ec.AccuracyM = &last.AccuracyM
		ec.BatteryPct = &last.BatteryPct
	}

	if _, err := c.deps.Store.SaveEmergencyCheckout(context.Background(), ec); err != nil {
		log.Printf("emergency checkout record failed: %v", err)
	}
	log.Printf("emergency checkout for %s (%s)", c.employeeID, reason)
	c.stopShift(reason)
}

// Status reports the current snapshot; safe from any state.
func (c *Controller) Status() StatusSnapshot {
	var snap StatusSnapshot
	c.do(func() { snap = c.snapshot() })
	return snap
}

func (c *Controller) PendingCount(ctx context.Context, employeeID string) (int, error) {
	return c.deps.Store.PendingCount(ctx, employeeID)
}

func (c *Controller) ClearData(ctx context.Context, employeeID string) (int64, error) {
	return c.deps.Store.ClearEmployeeData(ctx, employeeID)
}

func (c *Controller) snapshot() StatusSnapshot {
	now := timeNow()
	snap := StatusSnapshot{
		State:           c.state,
		BatteryPct:      c.batteryPct,
		SinceLastFixSec: -1,
		Title:           "Off shift",
		Body:            "Not tracking",
	}
	if c.state != StateActive && c.state != StateDeactivating {
		return snap
	}

	snap.IsActive = c.state == StateActive
	snap.EmployeeID = c.employeeID
	snap.EmployeeName = c.employeeName
	snap.CheckInTime = c.checkInTime
	snap.DurationSec = int64(now.Sub(c.checkInTime).Seconds())
	snap.DistanceM = c.distanceKm * 1000

	lastUpdate := "no update yet"
	if !c.lastSampleTime.IsZero() {
		snap.SinceLastFixSec = int64(now.Sub(c.lastSampleTime).Seconds())
		lastUpdate = fmt.Sprintf("last update %s ago", formatShort(now.Sub(c.lastSampleTime)))
	}

	if snap.IsActive {
		snap.Title = "On shift: " + c.employeeName
		snap.Body = fmt.Sprintf("Active for %s • %s • battery %d%%",
			formatShort(now.Sub(c.checkInTime)), lastUpdate, c.batteryPct)
	} else {
		snap.Title = "Checking out: " + c.employeeName
		snap.Body = "Shift ending"
	}
	return snap
}

func (c *Controller) publishStatus() {
	if c.deps.Hub == nil || c.employeeID == "" {
		return
	}
	payload, err := json.Marshal(c.snapshot())
	if err != nil {
		return
	}
	c.deps.Hub.Publish(c.employeeID, payload)
}

func (c *Controller) persistSession() {
	rec := store.SessionRecord{
		IsActive:       true,
		EmployeeID:     c.employeeID,
		EmployeeName:   c.employeeName,
		CheckInTime:    c.checkInTime,
		LastSampleTime: c.lastSampleTime,
	}
	if err := c.deps.Sessions.Save(context.Background(), rec); err != nil {
		log.Printf("session persist failed: %v", err)
	}
}

func (c *Controller) clearSession() {
	if err := c.deps.Sessions.Clear(context.Background()); err != nil {
		log.Printf("session clear failed: %v", err)
	}
}
