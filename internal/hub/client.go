package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts and intervals for hub communication.
const (
	// DefaultPort is the TCP port brickd listens on.
	DefaultPort = 4223

	// defaultConnectTimeout is the maximum time to wait for a TCP connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultRequestTimeout is how long a request waits for its response.
	defaultRequestTimeout = 2500 * time.Millisecond

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 1 * time.Second

	// defaultReconnectMax caps the reconnection backoff.
	defaultReconnectMax = 1 * time.Minute

	// defaultProbeInterval is the period of the disconnect probe.
	defaultProbeInterval = 5 * time.Second

	// writeTimeout bounds a single packet write.
	writeTimeout = 5 * time.Second
)

// State is the connection state of a Client.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name for JSON and log output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds hub connection settings. Zero values take the defaults.
type Config struct {
	// ConnectTimeout bounds each TCP dial.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout is how long Request waits for a response.
	// Default: 2.5 seconds.
	RequestTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// The delay grows by 1.5x per failure up to ReconnectMax.
	// Default: 1 second.
	ReconnectInterval time.Duration

	// ReconnectMax caps the reconnection delay.
	// Default: 1 minute.
	ReconnectMax time.Duration

	// ProbeInterval is the period of the disconnect probe used to detect
	// dead links while the connection is otherwise idle.
	// Default: 5 seconds.
	ProbeInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.ReconnectMax < cfg.ReconnectInterval {
		cfg.ReconnectMax = cfg.ReconnectInterval
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	return cfg
}

// Stats holds operational statistics.
type Stats struct {
	Requests        uint64    `json:"requests"`
	Responses       uint64    `json:"responses"`
	Timeouts        uint64    `json:"timeouts"`
	DeviceErrors    uint64    `json:"device_errors"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity"`
	State           State     `json:"state"`
	Address         string    `json:"address,omitempty"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// pendingKey identifies the response a request is waiting for.
type pendingKey struct {
	uid      uint32
	function uint8
	sequence uint8
}

// response is delivered to a waiting request by the receive loop.
type response struct {
	errorCode uint8
	payload   []byte
	err       error
}

// session is one Connect..Disconnect lifetime.
type session struct {
	address string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (s *session) closed() bool {
	return s.ctx.Err() != nil
}

// Client is a connection to a brickd-compatible sensor hub.
//
// A single Client is shared by every sensor; requests from different
// goroutines are multiplexed over one TCP connection and matched to their
// responses by device UID, function ID and sequence number.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - State() is a single atomic load.
//
// Auto-Reconnection:
//   - After Connect, a lost link (read error, EOF, failed write) moves the
//     client from Connected to Connecting and reconnection starts at once.
//   - Backoff starts at ReconnectInterval and grows 1.5x up to ReconnectMax.
//   - Reconnection stops only when Disconnect is called.
type Client struct {
	cfg   Config
	state atomic.Int32

	// lifeMu serialises Connect and Disconnect.
	lifeMu  sync.Mutex
	session *session

	// connMu guards conn and the state transitions that depend on it.
	connMu  sync.RWMutex
	conn    net.Conn
	address string

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[pendingKey]chan response
	sequence  uint8

	onStateChange func(State)
	callbackMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	requests        atomic.Uint64
	responses       atomic.Uint64
	timeouts        atomic.Uint64
	deviceErrors    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// New creates a Client in StateDisconnected. No connection is made until
// Connect is called.
func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg.withDefaults(),
		pending: make(map[pendingKey]chan response),
	}
}

// Connect establishes the persistent connection to host:port and enables
// automatic reconnection.
//
// If the first dial fails the error wraps ErrIO, but the client stays in
// StateConnecting and keeps retrying in the background; a failed initial
// connect heals on its own once the hub becomes reachable.
//
// Parameters:
//   - ctx: Context for the initial dial
//   - host: Hub hostname or IP
//   - port: Hub TCP port (DefaultPort when zero)
//
// Returns:
//   - error: ErrAlreadyConnected when connecting or connected, ErrIO on dial failure
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.State() != StateDisconnected {
		return ErrAlreadyConnected
	}
	if port == 0 {
		port = DefaultPort
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		address: net.JoinHostPort(host, strconv.Itoa(port)),
		ctx:     sessCtx,
		cancel:  cancel,
	}
	c.session = sess

	c.connMu.Lock()
	c.address = sess.address
	changed := c.swapState(StateConnecting)
	c.connMu.Unlock()
	if changed {
		c.notifyState(StateConnecting)
	}

	conn, dialErr := c.dial(ctx, sess)
	if dialErr == nil {
		c.installConn(sess, conn)
	}

	sess.wg.Add(2)
	go c.receiveLoop(sess)
	go c.probeLoop(sess)

	if dialErr != nil {
		c.errorsTotal.Add(1)
		c.logWarn("initial connect failed, retrying in background", "address", sess.address, "error", dialErr)
		return fmt.Errorf("%w: %w", ErrIO, dialErr)
	}

	c.logInfo("connected to hub", "address", sess.address)
	return nil
}

// Disconnect tears down the connection and stops reconnection.
//
// In-flight requests fail with ErrNotConnected. Calling Disconnect on a
// client that is not connected is a no-op. Connect may be called again
// afterwards.
func (c *Client) Disconnect() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	sess := c.session
	if sess == nil {
		return nil
	}
	c.session = nil

	sess.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	changed := c.swapState(StateDisconnected)
	c.connMu.Unlock()

	c.failPending(ErrNotConnected)
	sess.wg.Wait()

	if changed {
		c.notifyState(StateDisconnected)
	}
	c.logInfo("disconnected from hub", "address", sess.address)
	return nil
}

// State returns the current connection state without blocking.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Request sends a request packet and waits for the matching response.
//
// Parameters:
//   - ctx: Context for cancellation
//   - uid: Target device UID (see ParseUID)
//   - functionID: Device function to call
//   - payload: Little-endian request arguments (may be empty)
//
// Returns:
//   - []byte: Response payload
//   - error: ErrNotConnected, ErrTimeout, ErrDevice or ErrBusy
func (c *Client) Request(ctx context.Context, uid uint32, functionID uint8, payload []byte) ([]byte, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidPacket, len(payload), maxPayloadSize)
	}

	key, ch, err := c.register(uid, functionID)
	if err != nil {
		return nil, err
	}

	c.requests.Add(1)
	packet := encodePacket(header{
		UID:              uid,
		FunctionID:       functionID,
		Sequence:         key.sequence,
		ResponseExpected: true,
	}, payload)

	if err := c.writePacket(packet); err != nil {
		c.unregister(key)
		return nil, err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.err != nil {
			return nil, resp.err
		}
		if resp.errorCode != errorCodeOK {
			c.deviceErrors.Add(1)
			return nil, fmt.Errorf("%w: uid %s function %d: %s",
				ErrDevice, FormatUID(uid), functionID, errorCodeText(resp.errorCode))
		}
		return resp.payload, nil
	case <-timer.C:
		c.unregister(key)
		c.timeouts.Add(1)
		return nil, fmt.Errorf("%w: uid %s function %d after %s",
			ErrTimeout, FormatUID(uid), functionID, c.cfg.RequestTimeout)
	case <-ctx.Done():
		c.unregister(key)
		return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
	}
}

// register reserves a sequence number and a response slot.
func (c *Client) register(uid uint32, functionID uint8) (pendingKey, chan response, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for range maxSequence {
		c.sequence = c.sequence%maxSequence + 1
		key := pendingKey{uid: uid, function: functionID, sequence: c.sequence}
		if _, busy := c.pending[key]; busy {
			continue
		}
		ch := make(chan response, 1)
		c.pending[key] = ch
		return key, ch, nil
	}
	return pendingKey{}, nil, ErrBusy
}

func (c *Client) unregister(key pendingKey) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

// nextSequence returns a sequence number for a packet that expects no response.
func (c *Client) nextSequence() uint8 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.sequence = c.sequence%maxSequence + 1
	return c.sequence
}

// failPending completes every waiting request with err.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for key, ch := range c.pending {
		ch <- response{err: err}
		delete(c.pending, key)
	}
}

// writePacket writes one packet to the current connection. A failed write
// drops the connection so the receive loop reconnects.
func (c *Client) writePacket(packet []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrNotConnected, err)
	}
	if _, err := conn.Write(packet); err != nil {
		c.errorsTotal.Add(1)
		c.dropConnection(conn, err)
		return fmt.Errorf("%w: write: %w", ErrNotConnected, err)
	}

	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// receiveLoop reads packets and dispatches responses. When the connection
// is missing or lost it reconnects with exponential backoff.
func (c *Client) receiveLoop(sess *session) {
	defer sess.wg.Done()

	buf := make([]byte, maxPacketSize)

	for {
		if sess.closed() {
			return
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			if !c.reconnect(sess) {
				return
			}
			continue
		}

		h, payload, err := readPacket(conn, buf)
		if err != nil {
			if sess.closed() {
				return
			}
			if errors.Is(err, ErrProtocolDesync) {
				c.logError("protocol desync detected, closing socket", err)
			} else {
				c.logWarn("connection lost", "address", sess.address, "error", err)
			}
			c.errorsTotal.Add(1)
			c.dropConnection(conn, err)
			continue
		}

		c.lastActivity.Store(time.Now().Unix())
		c.dispatch(h, payload)
	}
}

// dispatch hands a response to its waiting request. Callbacks and
// enumerations (sequence 0) and late responses are discarded.
func (c *Client) dispatch(h header, payload []byte) {
	if h.Sequence == 0 || h.FunctionID == functionCallbackEnum {
		c.logDebug("ignoring unsolicited packet", "uid", FormatUID(h.UID), "function", h.FunctionID)
		return
	}

	key := pendingKey{uid: h.UID, function: h.FunctionID, sequence: h.Sequence}

	c.pendingMu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logDebug("discarding unmatched response", "uid", FormatUID(h.UID), "function", h.FunctionID, "sequence", h.Sequence)
		return
	}

	c.responses.Add(1)
	ch <- response{errorCode: h.ErrorCode, payload: append([]byte(nil), payload...)}
}

// probeLoop periodically sends the disconnect probe so that a dead link is
// noticed even when no sensor is being read.
func (c *Client) probeLoop(sess *session) {
	defer sess.wg.Done()

	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}
			probe := encodePacket(header{
				FunctionID: functionDisconnectProbe,
				Sequence:   c.nextSequence(),
			}, nil)
			if err := c.writePacket(probe); err != nil {
				c.logWarn("disconnect probe failed", "error", err)
			}
		}
	}
}

// dropConnection closes conn if it is still current and moves the client
// from Connected back to Connecting. Waiting requests fail with
// ErrNotConnected.
func (c *Client) dropConnection(conn net.Conn, cause error) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	conn.Close()
	c.conn = nil
	changed := c.state.CompareAndSwap(int32(StateConnected), int32(StateConnecting))
	c.connMu.Unlock()

	c.failPending(fmt.Errorf("%w: %w", ErrNotConnected, cause))

	if changed {
		c.notifyState(StateConnecting)
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// installConn makes conn current unless the session has ended.
func (c *Client) installConn(sess *session, conn net.Conn) bool {
	c.connMu.Lock()
	if sess.closed() {
		c.connMu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	changed := c.swapState(StateConnected)
	c.connMu.Unlock()

	c.lastActivity.Store(time.Now().Unix())
	if changed {
		c.notifyState(StateConnected)
	}
	return true
}

// reconnect dials until it succeeds or the session ends.
// Returns true if a connection was installed.
func (c *Client) reconnect(sess *session) bool {
	backoff := c.cfg.ReconnectInterval
	attempt := 0

	for {
		if sess.closed() {
			return false
		}

		attempt++
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		conn, err := c.dial(sess.ctx, sess)
		if err == nil {
			if !c.installConn(sess, conn) {
				return false
			}
			c.reconnectsTotal.Add(1)
			c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
			return true
		}

		c.logError("reconnect: dial failed", err)
		c.errorsTotal.Add(1)

		select {
		case <-sess.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

func (c *Client) dial(ctx context.Context, sess *session) (net.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", sess.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sess.address, err)
	}
	return conn, nil
}

// swapState stores s and reports whether it changed. Callers hold connMu.
func (c *Client) swapState(s State) bool {
	return State(c.state.Swap(int32(s))) != s
}

func (c *Client) notifyState(s State) {
	c.callbackMu.RLock()
	callback := c.onStateChange
	c.callbackMu.RUnlock()

	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logError("state change callback panic", fmt.Errorf("%v", r))
		}
	}()
	callback(s)
}

// SetOnStateChange sets a callback invoked after every state transition.
// The callback runs on the goroutine that caused the transition and must
// not block.
func (c *Client) SetOnStateChange(callback func(State)) {
	c.callbackMu.Lock()
	c.onStateChange = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	stats := Stats{
		Requests:        c.requests.Load(),
		Responses:       c.responses.Load(),
		Timeouts:        c.timeouts.Load(),
		DeviceErrors:    c.deviceErrors.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		State:           c.State(),
	}
	if last := c.lastActivity.Load(); last > 0 {
		stats.LastActivity = time.Unix(last, 0)
	}

	c.connMu.RLock()
	stats.Address = c.address
	c.connMu.RUnlock()

	return stats
}

// HealthCheck reports whether the hub link is up.
//
// Note: This only checks connection state; the disconnect probe is what
// actively verifies the link.
func (c *Client) HealthCheck(_ context.Context) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
