package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sharetube/watchparty/internal/domain"
)

const (
	DefaultSeekDebounce = 500 * time.Millisecond

	publishQueueSize = 16
)

type State int

const (
	StateDetached State = iota
	StateIdle
	StateFollowing
	StateLeading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFollowing:
		return "following"
	case StateLeading:
		return "leading"
	}

	return "detached"
}

type Config struct {
	// DriftThreshold defaults to DefaultDriftThreshold.
	DriftThreshold float64
	// SeekDebounce coalesces seeks while scrubbing. Defaults to
	// DefaultSeekDebounce.
	SeekDebounce time.Duration
	// ReportInterval makes a leader publish its position periodically while
	// playing. Zero disables it.
	ReportInterval time.Duration
	// NewBackOff builds the resubscribe back-off policy. Defaults to an
	// exponential back-off that never gives up.
	NewBackOff func() backoff.BackOff
	// OnPublishError is called with every failed publish. Authorization
	// failures are also handled internally by falling back to following.
	OnPublishError func(error)
}

type eventKind int

const (
	eventPlay eventKind = iota
	eventPause
	eventSeek
	eventVideoChanged
	eventRole
)

type event struct {
	kind     eventKind
	position float64
	videoRef string
	role     domain.Role
}

type publishResult struct {
	state domain.PlaybackState
	err   error
}

// Synchronizer keeps the local player in step with the channel. As leader it
// publishes local transitions; as follower it reconciles the player against
// every newer snapshot. All state is owned by the Run loop.
type Synchronizer struct {
	player    Player
	publisher Publisher
	sub       Subscriber
	logger    *slog.Logger

	threshold      float64
	debounce       time.Duration
	reportInterval time.Duration
	newBackOff     func() backoff.BackOff
	onPublishError func(error)

	events    chan event
	publishes chan domain.PublishParams
	results   chan publishResult
	done      chan struct{}
	doneOnce  sync.Once

	mu          sync.RWMutex
	state       State
	role        domain.Role
	lastApplied int64
}

func NewSynchronizer(player Player, publisher Publisher, sub Subscriber, logger *slog.Logger, cfg *Config) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	s := &Synchronizer{
		player:         player,
		publisher:      publisher,
		sub:            sub,
		logger:         logger,
		threshold:      cfg.DriftThreshold,
		debounce:       cfg.SeekDebounce,
		reportInterval: cfg.ReportInterval,
		newBackOff:     cfg.NewBackOff,
		onPublishError: cfg.OnPublishError,
		events:         make(chan event, 64),
		publishes:      make(chan domain.PublishParams, publishQueueSize),
		results:        make(chan publishResult, publishQueueSize),
		done:           make(chan struct{}),
		role:           domain.RoleMember,
	}

	if s.threshold <= 0 {
		s.threshold = DefaultDriftThreshold
	}
	if s.debounce <= 0 {
		s.debounce = DefaultSeekDebounce
	}
	if s.newBackOff == nil {
		s.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if s.onPublishError == nil {
		s.onPublishError = func(err error) {
			s.logger.Warn("failed to publish playback", "error", err)
		}
	}

	return s
}

func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Synchronizer) Role() domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Synchronizer) LastAppliedRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastApplied
}

// Local player events. They only result in a publish while leading and are
// dropped once Run has returned.

func (s *Synchronizer) OnPlay(position float64) {
	s.send(event{kind: eventPlay, position: position})
}

func (s *Synchronizer) OnPause(position float64) {
	s.send(event{kind: eventPause, position: position})
}

func (s *Synchronizer) OnSeek(position float64) {
	s.send(event{kind: eventSeek, position: position})
}

func (s *Synchronizer) OnVideoChanged(videoRef string) {
	s.send(event{kind: eventVideoChanged, videoRef: videoRef})
}

// SetRole switches between leading (admin) and following.
func (s *Synchronizer) SetRole(role domain.Role) {
	s.send(event{kind: eventRole, role: role})
}

func (s *Synchronizer) send(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

type loop struct {
	sub      Subscription
	subC     <-chan domain.PlaybackState
	retry    *time.Timer
	retryC   <-chan time.Time
	backoff  backoff.BackOff
	seek     *time.Timer
	seekC    <-chan time.Time
	seekPos  float64
	report   *time.Ticker
	reportC  <-chan time.Time
	hasVideo bool
}

// Run drives the synchronizer until ctx is done. Losing the subscription
// moves it to StateDetached and it resubscribes with back-off; the player
// keeps running uncorrected meanwhile. An authorization failure on the
// subscription is final: Run returns it and stays detached.
func (s *Synchronizer) Run(ctx context.Context) error {
	defer s.doneOnce.Do(func() { close(s.done) })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.publishLoop(ctx)
	}()
	defer wg.Wait()

	l := &loop{backoff: s.newBackOff()}
	defer l.stop()

	if err := s.subscribe(ctx, l); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.setState(StateDetached)
			return nil

		case snap, ok := <-l.subC:
			if !ok {
				err := l.sub.Err()
				s.logger.WarnContext(ctx, "playback subscription lost", "error", err)
				l.closeSub()
				if err := s.detach(ctx, l, err); err != nil {
					return err
				}
				continue
			}
			s.handleSnapshot(ctx, l, snap)

		case <-l.retryC:
			l.retryC = nil
			if err := s.subscribe(ctx, l); err != nil {
				return err
			}

		case ev := <-s.events:
			if err := s.handleEvent(ctx, l, ev); err != nil {
				return err
			}

		case <-l.seekC:
			l.seekC = nil
			pos := l.seekPos
			s.publish(domain.PublishParams{PositionSeconds: &pos})

		case <-l.reportC:
			if s.player.IsPlaying() {
				pos := s.player.Position()
				s.publish(domain.PublishParams{PositionSeconds: &pos})
			}

		case res := <-s.results:
			if err := s.handlePublishResult(ctx, l, res); err != nil {
				return err
			}
		}
	}
}

// subscribe returns an error only when resubscribing must stop.
func (s *Synchronizer) subscribe(ctx context.Context, l *loop) error {
	sub, err := s.sub.Subscribe(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to subscribe to playback", "error", err)
		return s.detach(ctx, l, err)
	}

	l.backoff.Reset()
	l.sub = sub
	l.subC = sub.C()
	s.updateState(l)
	s.logger.DebugContext(ctx, "subscribed to playback")
	return nil
}

// detach schedules a resubscribe unless cause says the identity no longer
// belongs to the channel.
func (s *Synchronizer) detach(ctx context.Context, l *loop, cause error) error {
	s.setState(StateDetached)

	if errors.Is(cause, domain.ErrPermissionDenied) {
		s.logger.WarnContext(ctx, "not resubscribing, access to the channel is gone", "error", cause)
		return fmt.Errorf("playback subscription: %w", cause)
	}

	next := l.backoff.NextBackOff()
	if next == backoff.Stop {
		s.logger.WarnContext(ctx, "giving up resubscribing")
		return nil
	}

	if l.retry == nil {
		l.retry = time.NewTimer(next)
	} else {
		l.retry.Reset(next)
	}
	l.retryC = l.retry.C
	return nil
}

func (s *Synchronizer) handleSnapshot(ctx context.Context, l *loop, snap domain.PlaybackState) {
	s.mu.Lock()
	role := s.role
	sample := Sample{
		VideoRef:            s.player.VideoRef(),
		Position:            s.player.Position(),
		Playing:             s.player.IsPlaying(),
		LastAppliedRevision: s.lastApplied,
	}

	if role.IsAdmin() {
		// the leader's player is the source of the state, only track revisions
		if snap.Revision > s.lastApplied {
			s.lastApplied = snap.Revision
		}
		s.mu.Unlock()
		l.hasVideo = snap.HasVideo() || s.player.VideoRef() != ""
		s.updateState(l)
		return
	}

	cmds, fresh := Reconcile(sample, snap, s.threshold)
	s.mu.Unlock()

	if !fresh {
		s.logger.DebugContext(ctx, "ignoring stale snapshot", "revision", snap.Revision, "last_applied", sample.LastAppliedRevision)
		return
	}

	for _, cmd := range cmds {
		s.logger.DebugContext(ctx, "applying", "command", cmd.String(), "revision", snap.Revision)
		if err := apply(s.player, cmd); err != nil {
			s.logger.WarnContext(ctx, "player command failed", "command", cmd.String(), "error", err)
			break
		}
	}

	s.mu.Lock()
	s.lastApplied = snap.Revision
	s.mu.Unlock()

	l.hasVideo = snap.HasVideo()
	s.updateState(l)
}

func (s *Synchronizer) handleEvent(ctx context.Context, l *loop, ev event) error {
	if ev.kind == eventRole {
		return s.setRole(ctx, l, ev.role)
	}

	if !s.Role().IsAdmin() {
		return nil
	}

	switch ev.kind {
	case eventPlay:
		l.cancelSeek()
		playing := true
		s.publish(domain.PublishParams{Playing: &playing, PositionSeconds: &ev.position})
	case eventPause:
		l.cancelSeek()
		playing := false
		s.publish(domain.PublishParams{Playing: &playing, PositionSeconds: &ev.position})
	case eventSeek:
		l.seekPos = ev.position
		if l.seek == nil {
			l.seek = time.NewTimer(s.debounce)
		} else {
			if !l.seek.Stop() {
				select {
				case <-l.seek.C:
				default:
				}
			}
			l.seek.Reset(s.debounce)
		}
		l.seekC = l.seek.C
	case eventVideoChanged:
		l.cancelSeek()
		l.hasVideo = ev.videoRef != ""
		s.publish(domain.PublishParams{VideoRef: &ev.videoRef})
		s.updateState(l)
	}

	return nil
}

func (s *Synchronizer) setRole(ctx context.Context, l *loop, role domain.Role) error {
	s.mu.Lock()
	prev := s.role
	s.role = role
	if prev.IsAdmin() && !role.IsAdmin() {
		// reconcile against whatever the new leader publishes, starting with
		// the current state on resubscribe
		s.lastApplied = 0
	}
	s.mu.Unlock()

	if prev.IsAdmin() == role.IsAdmin() {
		return nil
	}

	s.logger.InfoContext(ctx, "role changed", "from", prev.String(), "to", role.String())

	if role.IsAdmin() {
		l.hasVideo = s.player.VideoRef() != ""
		if s.reportInterval > 0 {
			l.report = time.NewTicker(s.reportInterval)
			l.reportC = l.report.C
		}
	} else {
		l.cancelSeek()
		l.stopReport()
		if l.sub != nil {
			l.closeSub()
			return s.subscribe(ctx, l)
		}
	}

	s.updateState(l)
	return nil
}

func (s *Synchronizer) handlePublishResult(ctx context.Context, l *loop, res publishResult) error {
	if res.err == nil {
		s.mu.Lock()
		// a result that lands after a demotion must not hide the new
		// leader's snapshots
		if s.role.IsAdmin() && res.state.Revision > s.lastApplied {
			s.lastApplied = res.state.Revision
		}
		s.mu.Unlock()
		return nil
	}

	s.onPublishError(res.err)

	if errors.Is(res.err, domain.ErrPermissionDenied) && s.Role().IsAdmin() {
		s.logger.InfoContext(ctx, "publish rejected, following instead")
		return s.setRole(ctx, l, domain.RoleMember)
	}

	return nil
}

// publish queues update for the publish worker. Publishes are sent one at a
// time in queue order.
func (s *Synchronizer) publish(update domain.PublishParams) {
	select {
	case s.publishes <- update:
	default:
		s.onPublishError(errors.New("publish queue full"))
	}
}

func (s *Synchronizer) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-s.publishes:
			state, err := s.publisher.Publish(ctx, update)
			select {
			case s.results <- publishResult{state: state, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Synchronizer) updateState(l *loop) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case l.sub == nil:
		s.state = StateDetached
	case !l.hasVideo:
		s.state = StateIdle
	case s.role.IsAdmin():
		s.state = StateLeading
	default:
		s.state = StateFollowing
	}
}

func (s *Synchronizer) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (l *loop) closeSub() {
	if l.sub != nil {
		l.sub.Close()
	}
	l.sub = nil
	l.subC = nil
}

func (l *loop) cancelSeek() {
	if l.seek != nil {
		l.seek.Stop()
	}
	l.seekC = nil
}

func (l *loop) stopReport() {
	if l.report != nil {
		l.report.Stop()
	}
	l.report = nil
	l.reportC = nil
}

func (l *loop) stop() {
	l.closeSub()
	l.cancelSeek()
	l.stopReport()
	if l.retry != nil {
		l.retry.Stop()
	}
}
