// Package orchestrator wires the feed, fallback generator, history, and
// renderer together behind one session object.
package orchestrator

import (
	"context"
	"iter"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/observatory/config"
	"github.com/coachpo/observatory/internal/feed"
	"github.com/coachpo/observatory/internal/history"
	"github.com/coachpo/observatory/internal/observability"
	"github.com/coachpo/observatory/internal/rest"
	"github.com/coachpo/observatory/internal/schema"
	"github.com/coachpo/observatory/internal/sim"
)

// Notification is a one-shot user-facing message produced by a manual
// action. Failures are surfaced exactly once and never retried.
type Notification struct {
	ID   string
	Text string
	Err  error
	Time time.Time
}

// UpdateListener receives every applied snapshot together with the history
// series and the feed state current at the time of the update. The series is
// a detached restartable view; ranging it never touches live state.
type UpdateListener func(snap *schema.Snapshot, series iter.Seq[schema.HistoryPoint], state feed.State)

// Options configures an orchestrator session.
type Options struct {
	Config   config.Config
	OnUpdate UpdateListener
	OnNotify func(Notification)
	Metrics  *observability.FeedMetrics
	// Rand seeds the fallback generator; nil uses a fixed seed.
	Rand *rand.Rand
	// Now overrides the history timestamp clock; nil uses time.Now.
	Now func() time.Time
}

// Orchestrator owns the single current snapshot and the history buffer.
// Both are mutated only by its serialized update path; renderers read
// copies.
type Orchestrator struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	feed      *feed.Manager
	restc     *rest.Client
	generator *sim.Generator
	hist      *history.Buffer
	now       func() time.Time

	mu      sync.Mutex
	current *schema.Snapshot

	wg conc.WaitGroup
}

// New constructs an orchestrator session. Nothing runs until Start.
func New(ctx context.Context, opts Options) *Orchestrator {
	sessionCtx, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		ctx:       sessionCtx,
		cancel:    cancel,
		opts:      opts,
		restc:     rest.NewClient(opts.Config.Feed.RESTBaseURL, opts.Config.Feed.HTTPTimeout),
		generator: sim.NewGenerator(opts.Rand),
		hist:      history.NewBuffer(opts.Config.History.Capacity),
		now:       opts.Now,
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.feed = feed.NewManager(sessionCtx, feed.Options{
		URL:               opts.Config.Feed.WSURL,
		HeartbeatInterval: opts.Config.Feed.HeartbeatInterval,
		ReconnectDelay:    opts.Config.Feed.ReconnectDelay,
		HandshakeTimeout:  opts.Config.Feed.HandshakeTimeout,
		OnSnapshot:        o.apply,
		Metrics:           opts.Metrics,
	})
	return o
}

// Start seeds the initial snapshot, connects the feed, and begins the
// fallback timer.
func (o *Orchestrator) Start() {
	o.seedInitial()
	o.feed.Connect()
	o.wg.Go(o.fallbackLoop)
}

// Close tears down the feed, the fallback timer, and joins the action
// goroutines.
func (o *Orchestrator) Close() {
	o.cancel()
	o.feed.Close()
	o.wg.Wait()
}

// Current returns a copy of the current snapshot.
func (o *Orchestrator) Current() *schema.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.Clone()
}

// History returns a copy of the charted series, oldest first.
func (o *Orchestrator) History() []schema.HistoryPoint {
	return o.hist.Points()
}

// Series returns a detached restartable view of the charted series, oldest
// first. Renderers repaint from it outside any lock.
func (o *Orchestrator) Series() iter.Seq[schema.HistoryPoint] {
	return o.hist.Series()
}

// FeedState reports the live connection state.
func (o *Orchestrator) FeedState() feed.State {
	return o.feed.State()
}

// Trigger fires a trigger action. It returns immediately; the outcome is
// surfaced as a notification.
func (o *Orchestrator) Trigger() {
	o.wg.Go(func() {
		result, err := o.restc.Trigger(o.ctx)
		if err != nil {
			o.notify(Notification{Text: "trigger failed", Err: err})
			return
		}
		o.notify(Notification{Text: "evolution triggered for generation " + strconv.FormatUint(result.Generation, 10)})
	})
}

// Reset fires a reset action. On success the history buffer is cleared and
// the snapshot is re-seeded the same way startup seeds it.
func (o *Orchestrator) Reset() {
	o.wg.Go(func() {
		result, err := o.restc.Reset(o.ctx)
		if err != nil {
			o.notify(Notification{Text: "reset failed", Err: err})
			return
		}
		snap, serr := o.restc.Status(o.ctx)
		if serr != nil {
			snap = o.generator.Seed()
		}
		o.applyFresh(snap)
		o.notify(Notification{Text: "reset complete: " + result.Message})
	})
}

// seedInitial fetches the current status over REST, degrading to a
// synthetic seed when the feed is unavailable.
func (o *Orchestrator) seedInitial() {
	snap, err := o.restc.Status(o.ctx)
	if err != nil {
		observability.Log().Info("status fetch failed, seeding simulation",
			observability.F("error", err))
		snap = o.generator.Seed()
	}
	o.apply(snap)
}

// fallbackLoop synthesizes one generation per interval while no live feed
// is open. The live feed and the generator are never both active.
func (o *Orchestrator) fallbackLoop() {
	ticker := time.NewTicker(o.opts.Config.Feed.FallbackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if o.feed.State() == feed.StateOpen {
				continue
			}
			o.mu.Lock()
			current := o.current
			o.mu.Unlock()
			if o.applySynthetic(o.generator.Tick(current)) {
				o.opts.Metrics.RecordFallbackTick(o.ctx)
			}
		}
	}
}

// apply is the single update path: replace the current snapshot, append a
// history point, then notify the render listener with detached copies.
func (o *Orchestrator) apply(snap *schema.Snapshot) {
	o.commit(snap, false, false)
}

// applyFresh restarts the series: the history clear and the first new point
// land in one critical section so no tick can interleave between them.
func (o *Orchestrator) applyFresh(snap *schema.Snapshot) {
	o.commit(snap, true, false)
}

// applySynthetic commits a fallback generation. It reports whether the
// snapshot landed; it does not when the live feed opened after the tick was
// scheduled, keeping the generator inactive whenever the feed is open.
func (o *Orchestrator) applySynthetic(snap *schema.Snapshot) bool {
	return o.commit(snap, false, true)
}

func (o *Orchestrator) commit(snap *schema.Snapshot, clearFirst, syntheticOnly bool) bool {
	if snap == nil {
		return false
	}
	o.mu.Lock()
	// The feed state is re-read under the lock: a dial that completed after
	// the fallback check must win over the tick it raced.
	if syntheticOnly && o.feed.State() == feed.StateOpen {
		o.mu.Unlock()
		return false
	}
	if clearFirst {
		o.hist.Clear()
	}
	o.current = snap
	o.hist.Append(schema.HistoryPoint{
		Generation: snap.Generation,
		AvgFitness: snap.AvgFitness,
		Timestamp:  o.now().UnixMilli(),
	})
	series := o.hist.Series()
	o.mu.Unlock()

	if o.opts.OnUpdate != nil {
		o.opts.OnUpdate(snap, series, o.feed.State())
	}
	return true
}

func (o *Orchestrator) notify(n Notification) {
	n.ID = uuid.NewString()
	n.Time = o.now()
	if n.Err != nil {
		observability.Log().Error(n.Text, observability.F("error", n.Err))
	} else {
		observability.Log().Info(n.Text)
	}
	if o.opts.OnNotify != nil {
		o.opts.OnNotify(n)
	}
}
