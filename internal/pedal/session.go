package pedal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"zoomzt2/internal/logger"
)

// DefaultTimeout bounds the wait for each reply.
const DefaultTimeout = 5 * time.Second

// vendor prefixes every message in both directions.
var vendor = []byte{0x52, 0x00, 0x6E}

var (
	cmdControlOn  = []byte{0x52}
	cmdControlOff = []byte{0x53}
)

// State is where a Session is in the control protocol.
type State int

const (
	Disconnected State = iota
	ControlModeOff
	ControlModeOn
	FileOpen
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ControlModeOff:
		return "control mode off"
	case ControlModeOn:
		return "control mode on"
	case FileOpen:
		return "file open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// Timeout bounds the wait for each reply. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  logger.Logger
}

// Session drives one pedal. Every exported method holds the session lock
// for its whole exchange, so at most one request is ever in flight.
type Session struct {
	mu      sync.Mutex
	ep      Endpoint
	state   State
	id      string
	timeout time.Duration
	base    logger.Logger
	log     logger.Logger
}

func NewSession(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Session{
		timeout: opts.Timeout,
		base:    opts.Logger,
		log:     opts.Logger,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID identifies the current connection in log records. It is empty while
// disconnected.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Connect opens the first input and output matching pattern and enables
// control mode. The endpoint is released again if that fails.
func (s *Session) Connect(ctx context.Context, p Provider, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Disconnected {
		return ErrAlreadyConnected
	}

	in, out, err := FindPorts(p, pattern)
	if err != nil {
		return err
	}
	ep, err := p.Open(in, out)
	if err != nil {
		return err
	}

	s.ep = ep
	s.id = uuid.NewString()
	s.log = s.base.With("session", s.id)
	s.state = ControlModeOff
	s.log.Debug("ports opened", "in", in, "out", out)

	if _, err := s.roundTrip(ctx, cmdControlOn); err != nil {
		s.release()
		return fmt.Errorf("enable control mode: %w", err)
	}
	s.state = ControlModeOn
	s.log.Info("connected", "in", in, "out", out)
	return nil
}

// Disconnect disables control mode and releases the endpoint. The session
// ends up Disconnected whatever the device answers.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Disconnected {
		return nil
	}
	if s.state == FileOpen {
		s.log.Warn("disconnecting with a file still open")
	}

	var sendErr error
	if s.state != ControlModeOff {
		if _, err := s.roundTrip(ctx, cmdControlOff); err != nil {
			sendErr = fmt.Errorf("disable control mode: %w", err)
		}
	}
	closeErr := s.release()
	s.base.Info("disconnected")
	return errors.Join(sendErr, closeErr)
}

func (s *Session) release() error {
	err := s.ep.Close()
	s.ep = nil
	s.id = ""
	s.state = Disconnected
	s.log = s.base
	return err
}

// ready checks that control mode is on and no file is open.
func (s *Session) ready() error {
	switch s.state {
	case Disconnected, ControlModeOff:
		return ErrNotConnected
	case FileOpen:
		return ErrFileOpen
	}
	return nil
}

// roundTrip sends one message and waits for exactly one reply.
func (s *Session) roundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(vendor)+len(msg))
	out = append(out, vendor...)
	out = append(out, msg...)

	s.log.Debug("send", "len", len(out), "data", logger.Hex(out))
	if err := s.ep.Send(ctx, out); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.ep.Receive(rctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w within %s (request % X)", ErrProtocolTimeout, s.timeout, msg[:min(len(msg), 2)])
		}
		return nil, err
	}
	s.log.Debug("recv", "len", len(reply), "data", logger.Hex(reply))
	return reply, nil
}

// need fails with ErrShortReply when reply is shorter than n bytes.
func need(reply []byte, n int, what string) error {
	if len(reply) < n {
		return fmt.Errorf("%w: %s: got %d bytes, need %d", ErrShortReply, what, len(reply), n)
	}
	return nil
}
