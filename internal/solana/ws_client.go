package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
	Logger           zerolog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		Logger:            zerolog.Nop(),
	}
}

// pendingSub is registered under subsMu as soon as the node confirms it,
// so a notification that immediately follows cannot be missed.
type pendingSub struct {
	sub     *sigSub
	confirm chan int64
}

// sigSub is an outstanding signature subscription. released is guarded by
// subsMu; once set the subscription is never registered again.
type sigSub struct {
	signature  string
	commitment Commitment
	ch         chan SignatureNotification
	released   bool
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	log      zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to its signature and delivery channel
	subs   map[int64]*sigSub
	subsMu sync.Mutex

	// pendingSubs maps request ID to a subscription awaiting its ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		log:         cfg.Logger.With().Str("component", "ws").Logger(),
		subs:        make(map[int64]*sigSub),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeSignature subscribes to the confirmation of one signature. The
// subscription lives until its notification arrives or ctx is done; on ctx
// done it is dropped, unsubscribed on the node and the channel closed.
func (c *WSClientImpl) SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error) {
	sub := &sigSub{
		signature:  signature,
		commitment: orDefault(commitment),
		ch:         make(chan SignatureNotification, 1),
	}
	if _, err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			c.release(sub)
		case <-c.done:
		}
	}()
	return sub.ch, nil
}

// release drops sub if it is still registered and unsubscribes it.
func (c *WSClientImpl) release(sub *sigSub) {
	c.subsMu.Lock()
	if sub.released {
		c.subsMu.Unlock()
		return
	}
	sub.released = true
	id, found := int64(0), false
	for k, s := range c.subs {
		if s == sub {
			id, found = k, true
			delete(c.subs, k)
			break
		}
	}
	if found {
		close(sub.ch)
	}
	c.subsMu.Unlock()

	if found {
		c.unsubscribe(id)
	}
}

// unsubscribe sends signatureUnsubscribe for id, best effort.
func (c *WSClientImpl) unsubscribe(id int64) {
	if c.closed.Load() {
		return
	}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "signatureUnsubscribe",
		Params:  []interface{}{id},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		c.log.Debug().Err(err).Int64("subscription", id).Msg("unsubscribe failed")
	}
}


// subscribe sends signatureSubscribe and waits for the subscription id.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *sigSub) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			sub.signature,
			map[string]string{"commitment": string(sub.commitment)},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{sub: sub, confirm: confirmCh}
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		dropPending()
		return 0, fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		dropPending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-timer.C:
		dropPending()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.log.Warn().Err(err).Msg("reconnect failed")
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-issues every outstanding signature subscription after reconnect.
// Subscription ids are per-connection, so each one is remapped.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.Lock()
	old := make(map[int64]*sigSub, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.Unlock()

	for oldID, sub := range old {
		c.subsMu.Lock()
		released := sub.released
		c.subsMu.Unlock()
		if released {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		newID, err := c.subscribe(ctx, sub)
		cancel()

		if err != nil {
			c.log.Warn().Err(err).Str("signature", sub.signature).Msg("resubscribe failed")
			continue
		}

		c.subsMu.Lock()
		if oldID != newID && c.subs[oldID] == sub {
			delete(c.subs, oldID)
		}
		c.subsMu.Unlock()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 && resp.Result != nil {
		c.handleSubscribeResponse(resp.ID, *resp.Result)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
		c.handleSignatureNotification(&notif)
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// subscription will time out on its own
		c.log.Warn().
			Uint64("request_id", errResp.ID).
			Int("code", errResp.Error.Code).
			Str("message", errResp.Error.Message).
			Msg("error response")
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	c.subsMu.Lock()
	released := p.sub.released
	if !released {
		c.subs[subID] = p.sub
	}
	c.subsMu.Unlock()

	select {
	case p.confirm <- subID:
	default:
	}
	if released {
		// confirmed after the subscriber went away
		go c.unsubscribe(subID)
	}
}

// handleSignatureNotification delivers the single notification and retires the subscription.
// The node cancels signature subscriptions after notifying.
func (c *WSClientImpl) handleSignatureNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subsMu.Lock()
	sub, ok := c.subs[notif.Params.Subscription]
	if ok {
		delete(c.subs, notif.Params.Subscription)
		sub.released = true
	}
	c.subsMu.Unlock()

	if !ok {
		return
	}

	out := SignatureNotification{
		Signature: sub.signature,
		Err:       notif.Params.Result.Value.Err,
	}
	if notif.Params.Result.Context != nil {
		out.Slot = notif.Params.Result.Context.Slot
	}

	sub.ch <- out // buffered, single send
	close(sub.ch)
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Debug().Err(err).Msg("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  *int64 `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}

var _ WSClient = (*WSClientImpl)(nil)
