package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

type BackoffKind string

const (
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// ReconnectPolicy is the schedule governing reconnection retry spacing.
type ReconnectPolicy struct {
	Enabled  bool
	Attempts int
	Delay    time.Duration
	Backoff  BackoffKind
}

// WaitFor returns the delay before the attempt-th retry, 1-based.
func (p ReconnectPolicy) WaitFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch p.Backoff {
	case BackoffExponential:
		return p.Delay << (attempt - 1)
	default:
		return p.Delay * time.Duration(attempt)
	}
}

var DefaultReconnectPolicy = ReconnectPolicy{
	Enabled:  true,
	Attempts: 5,
	Delay:    time.Second,
	Backoff:  BackoffExponential,
}

type Config struct {
	Transport      Transport
	Clock          clock.Clock
	Policy         ReconnectPolicy
	ConnectTimeout time.Duration

	// OnEvent receives every inbound event. OnStatus receives the
	// connectionStatus transitions.
	OnEvent  func(ev models.Event)
	OnStatus func(status models.ConnectionStatusPayload, at time.Time)
}

// Session owns one logical bidirectional channel and its lifecycle:
// initializing → connecting → connected, reconnecting with backoff on
// transport failure, disconnected and error as terminal states until the
// caller intervenes.
type Session struct {
	mu  sync.Mutex
	cfg Config

	state   models.ConnectionState
	lastErr error
	conn    Conn
	rooms   map[string]struct{}

	// gen invalidates read loops and reconnect loops from an older
	// connection whenever the session moves on without them.
	gen    uint64
	cancel context.CancelFunc
	kick   chan struct{}
}

func NewSession(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Policy == (ReconnectPolicy{}) {
		cfg.Policy = DefaultReconnectPolicy
	}
	return &Session{
		cfg:   cfg,
		state: models.ConnectionInitializing,
		rooms: make(map[string]struct{}),
		kick:  make(chan struct{}, 1),
	}
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == models.ConnectionConnected
}

func (s *Session) IsReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == models.ConnectionReconnecting
}

func (s *Session) Status() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Rooms returns the vacation ids this session replays on reconnection.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.rooms)
}

// forgetRoom drops a room from the replay set. An explicitly left room
// must not come back on reconnect.
func (s *Session) forgetRoom(vacationId string) {
	s.mu.Lock()
	delete(s.rooms, vacationId)
	s.mu.Unlock()
}

// emitted statuses follow the wire contract: connected, disconnected,
// reconnecting, error. Intermediate states are internal.
func (s *Session) emitStatus(state models.ConnectionState, reason string) {
	switch state {
	case models.ConnectionConnected, models.ConnectionDisconnected,
		models.ConnectionReconnecting, models.ConnectionError:
	default:
		return
	}
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(models.ConnectionStatusPayload{
			Status: string(state),
			Reason: reason,
		}, s.cfg.Clock.Now())
	}
}

// Connect establishes or resumes the channel and subscribes to the given
// vacation. Already connected to that room, it is a no-op; already
// connected elsewhere, it only adds the subscription.
func (s *Session) Connect(vacationId string) error {
	s.mu.Lock()
	if s.state == models.ConnectionConnected && s.conn != nil {
		if _, joined := s.rooms[vacationId]; joined {
			s.mu.Unlock()
			return nil
		}
		conn := s.conn
		s.rooms[vacationId] = struct{}{}
		s.mu.Unlock()
		return conn.Send(joinEvent(vacationId))
	}

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	s.state = models.ConnectionConnecting
	s.mu.Unlock()

	conn, err := s.dialOnce(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = models.ConnectionError
		s.lastErr = err
		s.mu.Unlock()
		s.emitStatus(models.ConnectionError, err.Error())
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = models.ConnectionConnected
	s.lastErr = nil
	s.rooms[vacationId] = struct{}{}
	rooms := lo.Keys(s.rooms)
	gen := s.gen
	s.mu.Unlock()

	s.emitStatus(models.ConnectionConnected, "")
	if err := s.replayRooms(conn, rooms); err != nil {
		log.Warn().Err(err).Msg("Unable to replay room subscriptions...")
	}
	go s.readLoop(ctx, gen, conn)

	return nil
}

// Disconnect releases the channel. It is reachable from any state and
// aborts an in-flight backoff wait immediately.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	conn := s.conn
	s.conn = nil
	s.state = models.ConnectionDisconnected
	s.rooms = make(map[string]struct{})
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.emitStatus(models.ConnectionDisconnected, "")
	return err
}

// Reconnect forces a fresh attempt outside the automatic backoff
// schedule.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == models.ConnectionReconnecting {
		select {
		case s.kick <- struct{}{}:
		default:
		}
		return nil
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.state = models.ConnectionConnecting
	s.mu.Unlock()

	return s.establish(ctx, gen)
}

// Send pushes one outbound event; malformed payloads are rejected here
// without touching connection state.
func (s *Session) Send(ev models.Event) error {
	if err := validateOutbound(ev); err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	connected := s.state == models.ConnectionConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ev)
}

func validateOutbound(ev models.Event) error {
	switch ev.Type {
	case models.EventMessage, models.EventLocation, models.EventTyping,
		models.EventReaction, models.EventPresence, models.EventVacationUpdate,
		models.EventUserJoined, models.EventUserLeft:
	default:
		return models.ErrValidation("event type %q cannot be sent by a client", ev.Type)
	}
	if len(ev.VacationID()) == 0 {
		return models.ErrValidation("outbound event carries no vacation id")
	}
	return nil
}

func joinEvent(vacationId string) models.Event {
	return models.Event{
		Type:       models.EventUserJoined,
		UserJoined: &models.MembershipPayload{VacationID: vacationId},
	}
}

func (s *Session) replayRooms(conn Conn, rooms []string) error {
	var errs []error
	for _, vacationId := range rooms {
		if err := conn.Send(joinEvent(vacationId)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) dialOnce(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		conn Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := s.cfg.Transport.Dial(dialCtx)
		done <- result{conn: conn, err: err}
	}()

	if s.cfg.ConnectTimeout <= 0 {
		select {
		case r := <-done:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	timer := s.cfg.Clock.Timer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.conn, r.err
	case <-timer.C:
		cancel()
		return nil, ErrConnectTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		ev, err := conn.Receive()
		if err != nil {
			s.handleFailure(ctx, gen, err)
			return
		}
		if s.cfg.OnEvent != nil {
			s.cfg.OnEvent(ev)
		}
	}
}

func (s *Session) handleFailure(ctx context.Context, gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen || s.state != models.ConnectionConnected {
		// A newer connection or a deliberate disconnect took over.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.lastErr = cause

	if !s.cfg.Policy.Enabled || s.cfg.Policy.Attempts <= 0 {
		s.state = models.ConnectionError
		s.mu.Unlock()
		s.emitStatus(models.ConnectionError, cause.Error())
		return
	}

	s.state = models.ConnectionReconnecting
	s.mu.Unlock()
	s.emitStatus(models.ConnectionReconnecting, cause.Error())

	go s.reconnectLoop(ctx, gen)
}

func (s *Session) reconnectLoop(ctx context.Context, gen uint64) {
	// A kick left over from an earlier cycle must not skip this cycle's
	// first wait.
	select {
	case <-s.kick:
	default:
	}

	for attempt := 1; attempt <= s.cfg.Policy.Attempts; attempt++ {
		timer := s.cfg.Clock.Timer(s.cfg.Policy.WaitFor(attempt))
		select {
		case <-timer.C:
		case <-s.kick:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, err := s.dialOnce(ctx)
		if err == nil {
			if s.resume(gen, ctx, conn) {
				return
			}
			_ = conn.Close()
			return
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
			s.fail(gen, err)
			return
		}

		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}

	s.mu.Lock()
	cause := s.lastErr
	s.mu.Unlock()
	s.fail(gen, cause)
}

// resume promotes a fresh connection after a successful retry and replays
// every room subscription; transport-level reconnection does not carry
// membership over.
func (s *Session) resume(gen uint64, ctx context.Context, conn Conn) bool {
	s.mu.Lock()
	if gen != s.gen || s.state != models.ConnectionReconnecting {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.state = models.ConnectionConnected
	s.lastErr = nil
	rooms := lo.Keys(s.rooms)
	s.mu.Unlock()

	s.emitStatus(models.ConnectionConnected, "")
	if err := s.replayRooms(conn, rooms); err != nil {
		log.Warn().Err(err).Msg("Unable to replay room subscriptions...")
	}
	go s.readLoop(ctx, gen, conn)
	return true
}

func (s *Session) fail(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = models.ConnectionError
	if cause != nil {
		s.lastErr = cause
	}
	s.mu.Unlock()

	reason := "reconnect attempts exhausted"
	if cause != nil {
		reason = cause.Error()
	}
	s.emitStatus(models.ConnectionError, reason)
}

// establish is the shared connect path for Reconnect.
func (s *Session) establish(ctx context.Context, gen uint64) error {
	conn, err := s.dialOnce(ctx)
	if err != nil {
		s.fail(gen, err)
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return conn.Close()
	}
	s.conn = conn
	s.state = models.ConnectionConnected
	s.lastErr = nil
	rooms := lo.Keys(s.rooms)
	s.mu.Unlock()

	s.emitStatus(models.ConnectionConnected, "")
	if err := s.replayRooms(conn, rooms); err != nil {
		log.Warn().Err(err).Msg("Unable to replay room subscriptions...")
	}
	go s.readLoop(ctx, gen, conn)
	return nil
}
