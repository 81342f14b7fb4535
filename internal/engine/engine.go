package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/metrics"
	"github.com/roach88/murmur/internal/ranking"
	"github.com/roach88/murmur/internal/tally"
	"github.com/roach88/murmur/internal/thread"
)

// Identity supplies the device id votes are scoped to.
// Implemented by identity.Provider.
type Identity interface {
	DeviceID() string
}

// Engine is the single-writer reconciliation event loop.
//
// CRITICAL: All view mutations happen in the goroutine processing events,
// either Run or Drain, never both.
//
// Thread-safety model:
//   - Submit(), Enqueue(): safe from any goroutine
//   - Snapshot(), OnChange(): safe from any goroutine
//   - Run() / Drain(): called from exactly one goroutine
type Engine struct {
	gw         gateway.Gateway
	identity   Identity
	dispatcher Dispatcher
	tempIDs    TempIDGenerator
	queue      *eventQueue
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	windows    ranking.Windows
	maxBody    int
	onError    func(Event, error)

	// Loop-owned state.
	ctx              context.Context
	city             *ir.City
	mode             ir.Mode
	posts            []*postEntry
	tallies          *tally.Engine
	threads          *thread.Store
	compose          string
	loadGen          int64
	deleting         map[string]*postDeletion
	deletingComments map[string]*commentDeletion
	tombstones       map[string]struct{}
	voting           map[string]bool
	echoes           *echoLedger
	feeds            map[string]func()
	calls            map[int64]func(Settled)
	nextCall         int64
	seq              int64 // stamps published views, strictly increasing

	view      atomic.Pointer[View]
	obsMu     sync.Mutex
	observers map[int]func(*View)
	nextObs   int
}

// postEntry is one post in display order.
type postEntry struct {
	Status ir.Status
	TempID string
	Post   ir.Post
}

// Key returns the temporary id of a pending post and the durable id of a
// confirmed one.
func (p *postEntry) Key() string {
	if p.Status == ir.StatusPending {
		return p.TempID
	}
	return p.Post.ID
}

// postDeletion is the pre-delete snapshot of a post.
type postDeletion struct {
	index  int
	entry  postEntry
	tally  ir.Tally
	thread thread.Saved
	voided bool // backend reported the row deleted while the call was in flight
}

type commentDeletion struct {
	removal thread.Removal
	voided  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher sets how gateway calls are executed.
// Default: AsyncDispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithTempIDs sets the temporary id generator.
// Default: UUIDv7Generator.
func WithTempIDs(g TempIDGenerator) Option {
	return func(e *Engine) {
		e.tempIDs = g
	}
}

// WithNow sets the clock stamping optimistic entities.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records engine activity. Default: none.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithWindows sets the fetch and display windows.
// Default: ranking.DefaultWindows().
func WithWindows(w ranking.Windows) Option {
	return func(e *Engine) {
		e.windows = w
	}
}

// WithMaxBodyRunes bounds post and comment bodies.
// Default: ir.DefaultMaxBodyRunes.
func WithMaxBodyRunes(n int) Option {
	return func(e *Engine) {
		e.maxBody = n
	}
}

// WithErrorHook registers fn to be called, on the event loop, with every
// event whose handling failed or was rejected.
func WithErrorHook(fn func(Event, error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithMode sets the initial ranking mode. Default: ir.ModeRecent.
func WithMode(m ir.Mode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// New creates an Engine reading and writing through gw, voting as id.
func New(gw gateway.Gateway, id Identity, opts ...Option) *Engine {
	e := &Engine{
		gw:               gw,
		identity:         id,
		dispatcher:       NewAsyncDispatcher(),
		tempIDs:          UUIDv7Generator{},
		queue:            newEventQueue(),
		logger:           slog.Default(),
		now:              func() time.Time { return time.Now().UTC() },
		windows:          ranking.DefaultWindows(),
		maxBody:          ir.DefaultMaxBodyRunes,
		ctx:              context.Background(),
		mode:             ir.ModeRecent,
		tallies:          tally.New(),
		threads:          thread.New(),
		deleting:         make(map[string]*postDeletion),
		deletingComments: make(map[string]*commentDeletion),
		tombstones:       make(map[string]struct{}),
		voting:           make(map[string]bool),
		echoes:           newEchoLedger(),
		feeds:            make(map[string]func()),
		calls:            make(map[int64]func(Settled)),
		observers:        make(map[int]func(*View)),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.publish()
	return e
}

// Submit enqueues an intent.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(in Intent) error {
	if !e.queue.Enqueue(Event{Type: EventTypeIntent, Intent: &in}) {
		return ErrStopped
	}
	return nil
}

// Enqueue submits an event for processing.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Pending returns the number of queued events.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called. Every
// subscription is torn down before Run returns.
//
// ERROR HANDLING: a failed or rejected event is logged with its context
// and processing continues. No error of a single event is fatal.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer e.teardown()

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.handle(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes queued events on the calling goroutine until the queue
// is empty and returns how many were handled. Events enqueued while
// draining are processed too.
//
// Drain is the test and harness alternative to Run; do not use both.
func (e *Engine) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		event, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		e.handle(ctx, event)
		n++
	}
	return n
}

// Stop closes the event queue, which causes Run to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Close stops a Drain-driven engine and tears down its subscriptions.
func (e *Engine) Close() {
	e.queue.Close()
	e.teardown()
}

// Snapshot returns the latest published view.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Snapshot() *View {
	return e.view.Load()
}

// OnChange registers fn to be called with every published view. fn runs
// on the event loop and must not block or call Drain. The returned
// function removes the observer.
func (e *Engine) OnChange(fn func(*View)) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.nextObs++
	id := e.nextObs
	e.observers[id] = fn
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		delete(e.observers, id)
	}
}

func (e *Engine) handle(ctx context.Context, event Event) {
	e.ctx = ctx
	if err := e.processEvent(event); err != nil {
		e.logEventError(event, err)
		if e.onError != nil {
			e.onError(event, err)
		}
	}
	e.publish()
}

// processEvent routes an event to the appropriate handler.
func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventTypeIntent:
		if event.Intent == nil {
			return fmt.Errorf("intent event missing intent data")
		}
		err := e.processIntent(event.Intent)
		e.metrics.IncrementIntent(string(event.Intent.Kind), err == nil)
		return err

	case EventTypeSettled:
		if event.Settled == nil {
			return fmt.Errorf("settled event missing call result")
		}
		return e.processSettled(event.Settled)

	case EventTypeChange:
		if event.Change == nil {
			return fmt.Errorf("change event missing change data")
		}
		return e.processChange(event.Change)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (e *Engine) processIntent(in *Intent) error {
	e.logger.Debug("processing intent",
		"kind", in.Kind,
		"post_id", in.PostID,
		"comment_id", in.CommentID,
	)

	switch in.Kind {
	case IntentLoadCity:
		return e.loadCity(in)
	case IntentReload:
		return e.reload(in)
	case IntentSelectMode:
		return e.selectMode(in)
	case IntentSetCompose:
		e.compose = in.Text
		return nil
	case IntentCreatePost:
		return e.createPost(in)
	case IntentDeletePost:
		return e.deletePost(in)
	case IntentVotePost:
		return e.votePost(in)
	case IntentToggleThread:
		return e.toggleThread(in)
	case IntentAddComment:
		return e.addComment(in)
	case IntentDeleteComment:
		return e.deleteComment(in)
	default:
		return reject(in.Kind, ErrCodeInvalidIntent, "", fmt.Errorf("unknown intent kind %q", in.Kind))
	}
}

func (e *Engine) processSettled(s *Settled) error {
	then, ok := e.calls[s.CallID]
	if !ok {
		return fmt.Errorf("no continuation for call %d (%s)", s.CallID, s.Op)
	}
	delete(e.calls, s.CallID)
	e.metrics.ObserveCall(s.Op, s.Elapsed, s.Err)

	if s.Err != nil {
		e.logger.Debug("gateway call failed",
			"op", s.Op,
			"call_id", s.CallID,
			"error", s.Err,
		)
	}
	then(*s)
	return nil
}

func (e *Engine) processChange(c *gateway.Change) error {
	e.metrics.IncrementNotification(string(c.Table), c.Kind.String())

	switch c.Table {
	case gateway.TablePosts:
		return e.onPostChange(c)
	case gateway.TableComments:
		return e.onCommentChange(c)
	case gateway.TableVotes:
		return e.onVoteChange(c)
	default:
		return fmt.Errorf("change for unknown table %q", c.Table)
	}
}

// call dispatches a gateway operation. then runs on the event loop with
// the result.
func (e *Engine) call(op string, run func(ctx context.Context) (any, error), then func(Settled)) int64 {
	e.nextCall++
	id := e.nextCall
	e.calls[id] = then

	e.dispatcher.Dispatch(e.ctx, Call{ID: id, Op: op, Run: run}, func(s Settled) {
		if !e.queue.Enqueue(Event{Type: EventTypeSettled, Settled: &s}) {
			e.logger.Debug("call settled after engine stopped", "op", s.Op, "call_id", s.CallID)
		}
	})
	return id
}

// subscribe opens a change feed under key unless one is already open.
func (e *Engine) subscribe(key string, f gateway.Filter) {
	if _, ok := e.feeds[key]; ok {
		return
	}
	e.feeds[key] = e.gw.Subscribe(f, func(c gateway.Change) {
		e.queue.Enqueue(Event{Type: EventTypeChange, Change: &c})
	})
	e.logger.Debug("subscribed", "feed", key)
}

func (e *Engine) unsubscribe(key string) {
	if unsub, ok := e.feeds[key]; ok {
		unsub()
		delete(e.feeds, key)
		e.logger.Debug("unsubscribed", "feed", key)
	}
}

func (e *Engine) teardown() {
	for key, unsub := range e.feeds {
		unsub()
		delete(e.feeds, key)
	}
}

// publish stores a fresh immutable View and notifies observers.
func (e *Engine) publish() {
	e.seq++
	v := &View{
		Seq:         e.seq,
		Mode:        e.mode,
		Posts:       make([]PostView, len(e.posts)),
		Tallies:     e.tallies.Snapshot(),
		OpenThreads: e.threads.Open(),
		Comments:    make(map[string][]CommentView),
		Compose:     e.compose,
	}
	if e.city != nil {
		c := *e.city
		v.City = &c
	}
	for i, pe := range e.posts {
		v.Posts[i] = PostView{
			ID:        pe.Key(),
			Status:    pe.Status,
			CityID:    pe.Post.CityID,
			Body:      pe.Post.Body,
			CreatedAt: pe.Post.CreatedAt,
			Tally:     e.tallies.Get(pe.Key()),
		}
	}
	for _, postID := range e.threads.Posts() {
		entries := e.threads.Entries(postID)
		list := make([]CommentView, len(entries))
		for i, en := range entries {
			list[i] = CommentView{
				ID:        en.Key(),
				Status:    en.Status,
				Body:      en.Comment.Body,
				CreatedAt: en.Comment.CreatedAt,
			}
		}
		v.Comments[postID] = list
	}

	e.view.Store(v)
	e.metrics.SetPostsInView(len(v.Posts))

	e.obsMu.Lock()
	fns := make([]func(*View), 0, len(e.observers))
	for id := 1; id <= e.nextObs; id++ {
		if fn, ok := e.observers[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.obsMu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// logEventError logs a failed event with full context.
// Rejections are routine and logged at debug level.
func (e *Engine) logEventError(event Event, err error) {
	level := slog.LevelError
	if IsRejected(err) {
		level = slog.LevelDebug
	}

	attrs := []any{"error", err, "event_type", event.Type.String()}
	switch {
	case event.Intent != nil:
		attrs = append(attrs, "intent", event.Intent.Kind, "post_id", event.Intent.PostID)
	case event.Settled != nil:
		attrs = append(attrs, "op", event.Settled.Op, "call_id", event.Settled.CallID)
	case event.Change != nil:
		attrs = append(attrs, "table", event.Change.Table, "kind", event.Change.Kind.String())
	}
	e.logger.Log(context.Background(), level, "event processing failed", attrs...)
}
