package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/settings"
	apperrors "clubdesk/internal/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	default:
		return "stopped"
	}
}

const (
	DefaultResponseBudget = 300 * time.Millisecond
	DefaultMaxBodyBytes   = 1 << 20
	DefaultSinkBuffer     = 64
)

var (
	ErrPortInUse      = errors.New("port already in use")
	ErrAlreadyRunning = errors.New("listener already running")
)

type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

type Options struct {
	// ResponseBudget bounds how long any webhook request may take to answer.
	ResponseBudget time.Duration
	MaxBodyBytes   int64
	// SinkBuffer is the number of accepted events queued for the sink before new ones are dropped.
	SinkBuffer int
	// RatePerSecond limits inbound requests; zero means unlimited.
	RatePerSecond float64
	Auditor       Auditor
}

// Status describes the running listener for operators.
type Status struct {
	State      string `json:"state"`
	Port       int    `json:"port,omitempty"`
	Path       string `json:"path,omitempty"`
	Insecure   bool   `json:"insecure"`
	Buffered   int    `json:"buffered"`
	ListenAddr string `json:"listenAddr,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
}

// Listener owns the webhook socket. Each accepted request is verified,
// deduplicated against recent events and handed to the Sink asynchronously.
type Listener struct {
	sink   Sink
	opts   Options
	buffer *eventBuffer
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	cfg       settings.WebhookConfig
	server    *http.Server
	addr      net.Addr
	startedAt time.Time
	queue     *deliveryQueue
}

func NewListener(sink Sink, opts Options) *Listener {
	if opts.ResponseBudget <= 0 {
		opts.ResponseBudget = DefaultResponseBudget
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.SinkBuffer <= 0 {
		opts.SinkBuffer = DefaultSinkBuffer
	}

	return &Listener{
		sink:   sink,
		opts:   opts,
		buffer: newEventBuffer(BufferCapacity),
		log:    log.With().Str("component", "webhook_listener").Logger(),
	}
}

// Start binds cfg.ListenPort and begins serving. On any failure the listener stays stopped.
func (l *Listener) Start(cfg settings.WebhookConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateStopped {
		return ErrAlreadyRunning
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.WebhooksEnabled {
		return apperrors.Configuration("start listener", errors.New("webhooks are disabled"))
	}

	l.state = StateStarting

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		l.state = StateStopped
		if errors.Is(err, syscall.EADDRINUSE) {
			return apperrors.Configuration("start listener", fmt.Errorf("%w: %d", ErrPortInUse, cfg.ListenPort))
		}
		return apperrors.Configuration("start listener", err)
	}

	l.queue = newDeliveryQueue(l.opts.SinkBuffer)
	go l.forward(l.queue.ch)

	l.server = &http.Server{
		Handler:           l.routes(cfg, l.queue),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	l.cfg = cfg
	l.addr = ln.Addr()
	l.startedAt = time.Now().UTC()
	l.state = StateListening

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error().Err(err).Msg("webhook listener stopped unexpectedly")
		}
	}(l.server)

	l.log.Info().
		Int("port", cfg.ListenPort).
		Str("path", cfg.WebhookPath).
		Bool("hmac", cfg.HMACEnabled).
		Msg("webhook listener started")
	if !cfg.HMACEnabled {
		l.log.Warn().Msg("HMAC verification is DISABLED: any caller can inject webhook events")
	}
	return nil
}

// Stop closes the socket and waits for in-flight requests until ctx ends.
// Stopping a stopped listener is a no-op.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateStopped {
		return nil
	}

	err := l.server.Shutdown(ctx)
	// Handlers cut off by the response budget may still be running; closing
	// the queue makes them refuse new events instead of losing them.
	l.queue.close()

	l.server = nil
	l.addr = nil
	l.state = StateStopped
	l.log.Info().Msg("webhook listener stopped")

	if err != nil {
		return fmt.Errorf("webhook listener shutdown: %w", err)
	}
	return nil
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Addr is the bound address while listening, nil otherwise.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{State: l.state.String(), Buffered: l.buffer.size()}
	if l.state == StateListening {
		st.Port = l.cfg.ListenPort
		st.Path = l.cfg.WebhookPath
		st.Insecure = !l.cfg.HMACEnabled
		st.ListenAddr = l.addr.String()
		st.StartedAt = l.startedAt.Format(time.RFC3339)
	}
	return st
}

// Events returns the buffered events, oldest first.
func (l *Listener) Events() []Event {
	return l.buffer.snapshot()
}

func (l *Listener) routes(cfg settings.WebhookConfig, queue *deliveryQueue) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(l.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(l.rateLimit())

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	r.Post(cfg.WebhookPath, l.handleWebhook(cfg, queue))

	budgetMsg := `{"error":"Service Unavailable","message":"response budget exceeded","code":"INTERNAL_ERROR"}`
	return http.TimeoutHandler(r, l.opts.ResponseBudget, budgetMsg)
}

func (l *Listener) handleWebhook(cfg settings.WebhookConfig, queue *deliveryQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, l.opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				apperrors.WriteError(w, http.StatusRequestEntityTooLarge, apperrors.ErrCodeInvalidInput, "Payload too large", nil)
				return
			}
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "Failed to read body", nil)
			return
		}

		signatureValid := false
		if cfg.HMACEnabled {
			signature := r.Header.Get(SignatureHeader)
			if signature == "" || !Verify(cfg.HMACSecret, body, signature) {
				l.reject(r, signature == "")
				apperrors.WriteError(w, http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "Invalid signature", nil)
				return
			}
			signatureValid = true
		} else {
			l.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("accepting unsigned webhook (insecure mode)")
		}

		var p Payload
		if err := json.Unmarshal(body, &p); err != nil {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "Malformed JSON body", nil)
			return
		}
		if p.EventID == "" || p.EventType == "" {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "eventId and eventType are required", nil)
			return
		}

		ev, recorded := l.buffer.admit(Event{
			EventType:      p.EventType,
			SubjectID:      p.SubjectID,
			EventID:        p.EventID,
			SignatureValid: signatureValid,
		}, func(ev Event) bool {
			return l.enqueue(queue, Notification{EventType: ev.EventType, SubjectID: ev.SubjectID})
		})
		if !recorded {
			apperrors.WriteError(w, http.StatusServiceUnavailable, apperrors.ErrCodeInternal, "Listener is stopping", nil)
			return
		}
		eventsTotal.WithLabelValues(string(ev.Status)).Inc()

		if ev.Status == StatusDuplicate {
			l.log.Debug().Str("event_id", ev.EventID).Msg("duplicate webhook acknowledged")
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": string(ev.Status)})
	}
}

func (l *Listener) reject(r *http.Request, missing bool) {
	reason := "signature mismatch"
	if missing {
		reason = "signature missing"
	}

	l.buffer.reject(Event{SignatureValid: false})
	eventsTotal.WithLabelValues(string(StatusRejected)).Inc()

	l.log.Warn().Str("remote_addr", r.RemoteAddr).Str("reason", reason).Msg("webhook rejected")
	if l.opts.Auditor != nil {
		l.opts.Auditor.Log(r.Context(), audit.Entry{
			Action:       audit.ActionWebhookRejected,
			ResourceType: "webhook",
			Metadata: map[string]interface{}{
				"remote_addr": r.RemoteAddr,
				"reason":      reason,
				"request_id":  middleware.GetReqID(r.Context()),
			},
		})
	}
}

// deliveryQueue carries accepted events from handlers to the sink goroutine.
// Sends and close are serialized by mu, so no send can race the close.
type deliveryQueue struct {
	mu     sync.RWMutex
	closed bool
	ch     chan Notification
}

func newDeliveryQueue(size int) *deliveryQueue {
	return &deliveryQueue{ch: make(chan Notification, size)}
}

func (q *deliveryQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// enqueue never blocks the request: a full queue drops the event and still
// counts it as accepted. It returns false only once the queue is closed.
func (l *Listener) enqueue(q *deliveryQueue, n Notification) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.ch <- n:
	default:
		sinkDropped.Inc()
		l.log.Warn().Str("event_type", n.EventType).Msg("sink queue full, event dropped")
	}
	return true
}

// forward delivers queued events to the sink until the queue is closed and drained.
func (l *Listener) forward(queue <-chan Notification) {
	deliver := func(n Notification) {
		defer func() {
			if rec := recover(); rec != nil {
				l.log.Error().Interface("panic", rec).Msg("event sink panicked")
			}
		}()
		l.sink.OnValidatedEvent(n.EventType, n.SubjectID)
	}

	for n := range queue {
		deliver(n)
	}
}

func (l *Listener) rateLimit() func(http.Handler) http.Handler {
	limit := rate.Inf
	burst := 1
	if l.opts.RatePerSecond > 0 {
		limit = rate.Limit(l.opts.RatePerSecond)
		burst = int(l.opts.RatePerSecond) * 2
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(limit, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				apperrors.WriteError(w, http.StatusTooManyRequests, apperrors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// logRequests never logs bodies or signatures.
func (l *Listener) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		l.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Msg("webhook request")
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteError(w, http.StatusNotFound, apperrors.ErrCodeNotFound, "Not found", nil)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
