package feed

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	outboundQueue = 4096
	writeTimeout  = 5 * time.Second
)

// retryPolicy is a capped exponential backoff.
type retryPolicy struct {
	base     time.Duration
	ceiling  time.Duration
	attempts int
}

var defaultRetry = retryPolicy{base: time.Second, ceiling: 30 * time.Second, attempts: 10}

// delay returns the wait before the given attempt, counting from 1.
func (r retryPolicy) delay(attempt int) time.Duration {
	d := r.base
	for i := 1; i < attempt && d < r.ceiling; i++ {
		d *= 2
	}
	return min(d, r.ceiling)
}

// socket keeps one observer connection alive. A single supervisor goroutine
// owns the connection: it writes queued frames, and when the connection
// breaks it redials with backoff and replays the hello frame.
type socket struct {
	endpoint string
	hello    []byte
	retry    retryPolicy
	dialer   *ws.Dialer

	onState   func(connected bool)
	onMessage func(InboundMessage)

	outbound chan []byte
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.Mutex
	active *ws.Conn

	log zerolog.Logger
}

func newSocket(log zerolog.Logger) *socket {
	return &socket{
		retry:     defaultRetry,
		dialer:    ws.DefaultDialer,
		onState:   func(bool) {},
		onMessage: func(InboundMessage) {},
		outbound:  make(chan []byte, outboundQueue),
		quit:      make(chan struct{}),
		log:       log,
	}
}

// withSecret returns rawURL with the shared secret in its query string.
func withSecret(rawURL, secret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("feed url %q: scheme must be ws or wss", rawURL)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// open dials once and hands the connection to the supervisor. The first
// dial failing is returned to the caller; later failures are retried.
func (s *socket) open(rawURL, secret string) error {
	endpoint, err := withSecret(rawURL, secret)
	if err != nil {
		return err
	}
	s.endpoint = endpoint

	conn, err := s.connect()
	if err != nil {
		return err
	}
	s.attach(conn)
	s.wg.Add(1)
	go s.supervise(conn)
	return nil
}

// connect dials the endpoint and writes the hello frame.
func (s *socket) connect() (*ws.Conn, error) {
	conn, _, err := s.dialer.Dial(s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	if s.hello != nil {
		if err := s.write(conn, s.hello); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send hello: %w", err)
		}
	}
	return conn, nil
}

func (s *socket) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (s *socket) supervise(conn *ws.Conn) {
	defer s.wg.Done()
	for conn != nil {
		s.serve(conn)
		if s.stopping() {
			return
		}
		s.onState(false)
		if conn = s.redial(); conn != nil {
			s.attach(conn)
		}
	}
}

func (s *socket) attach(conn *ws.Conn) {
	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
	s.onState(true)
}

// serve pumps an attached connection until it breaks or the socket is
// closed.
func (s *socket) serve(conn *ws.Conn) {
	broken := make(chan struct{})
	go func() {
		defer close(broken)
		s.receive(conn)
	}()

	defer func() {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		_ = conn.Close()
		<-broken
	}()

	for {
		select {
		case <-s.quit:
			return
		case <-broken:
			return
		case data := <-s.outbound:
			if err := s.write(conn, data); err != nil {
				s.log.Warn().Err(err).Msg("Feed write failed")
				return
			}
		}
	}
}

// receive decodes observer messages until conn fails.
func (s *socket) receive(conn *ws.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !s.stopping() {
				s.log.Warn().Err(err).Msg("Feed read failed")
			}
			return
		}
		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Debug().Str("raw", string(raw)).Msg("Ignoring unreadable observer message")
			continue
		}
		s.onMessage(msg)
	}
}

// redial returns a fresh connection, or nil once the retries run out or
// the socket is closed.
func (s *socket) redial() *ws.Conn {
	for attempt := 1; attempt <= s.retry.attempts; attempt++ {
		wait := s.retry.delay(attempt)
		s.log.Info().Int("attempt", attempt).Dur("wait", wait).Msg("Reconnecting feed")
		select {
		case <-s.quit:
			return nil
		case <-time.After(wait):
		}
		conn, err := s.connect()
		if err == nil {
			s.log.Info().Int("attempt", attempt).Msg("Feed reconnected")
			return conn
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Feed reconnect failed")
	}
	s.log.Error().Int("attempts", s.retry.attempts).Msg("Giving up on feed")
	return nil
}

func (s *socket) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// enqueue hands data to the supervisor, dropping it when the queue is full.
func (s *socket) enqueue(data []byte) {
	select {
	case s.outbound <- data:
	default:
		s.log.Warn().Msg("Feed queue full, dropping message")
	}
}

// close says goodbye to the observer and waits for the supervisor.
func (s *socket) close() error {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.mu.Lock()
		conn := s.active
		s.mu.Unlock()
		if conn != nil {
			if werr := conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout)); werr != nil {
				s.log.Debug().Err(werr).Msg("Feed close frame not sent")
			}
			_ = conn.Close()
		}
		s.wg.Wait()
		s.onState(false)
	})
	return nil
}
