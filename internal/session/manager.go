// Package session manages one logical chat session on top of a shared browser daemon:
// connecting, detecting a dead page, recovering, and keeping the transcript on disk.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/qmuntal/stateless"

	"github.com/neboloop/chatdriver/internal/browser"
	"github.com/neboloop/chatdriver/internal/conversation"
	"github.com/neboloop/chatdriver/internal/logging"
)

// Launcher guarantees a reachable daemon and tears it down on request.
type Launcher interface {
	Ensure(ctx context.Context) error
	Stop(ctx context.Context) error
	Endpoint() string
}

// Deliverer submits a prompt on the page and returns the reply.
type Deliverer interface {
	Deliver(ctx context.Context, h browser.Handle, text string) (string, error)
}

// ThreadLocator is implemented by deliverers that can tell a conversation URL from
// any other page.
type ThreadLocator interface {
	ThreadURL(pageURL string) (string, bool)
}

// HomePage is implemented by deliverers that know where a new chat starts.
type HomePage interface {
	StartURL() string
}

// CloseMode selects what Close tears down.
type CloseMode int

const (
	// CloseSoft drops the connection only. The daemon and its descriptor survive.
	CloseSoft CloseMode = iota
	// CloseHard also terminates the daemon and deletes the descriptor.
	CloseHard
)

// ParseCloseMode maps "soft"/"hard" to a CloseMode.
func ParseCloseMode(s string) (CloseMode, error) {
	switch s {
	case "", "soft":
		return CloseSoft, nil
	case "hard":
		return CloseHard, nil
	default:
		return CloseSoft, fmt.Errorf("unknown close mode %q", s)
	}
}

func (m CloseMode) String() string {
	if m == CloseHard {
		return "hard"
	}
	return "soft"
}

// Options wires a Manager. Daemon, Connector, Deliverer and Store are required.
type Options struct {
	Daemon    Launcher
	Connector browser.Connector
	Health    browser.HealthChecker
	Deliverer Deliverer
	Store     *conversation.Store
	Retry     RetryPolicy

	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration

	// Descriptors, when set together with WatchDescriptor, lets the manager notice
	// another process replacing or removing the daemon.
	Descriptors     *browser.DescriptorStore
	WatchDescriptor bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Manager is a single logical chat session. Its public methods are safe for concurrent
// use but are serialised: one operation at a time.
type Manager struct {
	daemon    Launcher
	connector browser.Connector
	health    browser.HealthChecker
	deliverer Deliverer
	store     *conversation.Store
	retry     RetryPolicy

	connectTimeout  time.Duration
	responseTimeout time.Duration

	descriptors *browser.DescriptorStore
	watcher     *browser.DescriptorWatcher

	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	fsm    *stateless.StateMachine
	handle browser.Handle
	conv   *conversation.Conversation

	// Read by the watcher goroutine without mu.
	known atomic.Pointer[browser.Descriptor]
	stale atomic.Bool
}

// New creates a Manager in the Disconnected state. It does not touch the browser.
func New(opts Options) (*Manager, error) {
	if opts.Daemon == nil || opts.Connector == nil || opts.Deliverer == nil || opts.Store == nil {
		return nil, errors.New("session: Daemon, Connector, Deliverer and Store are required")
	}

	m := &Manager{
		daemon:          opts.Daemon,
		connector:       opts.Connector,
		health:          opts.Health,
		deliverer:       opts.Deliverer,
		store:           opts.Store,
		retry:           opts.Retry,
		connectTimeout:  opts.ConnectTimeout,
		responseTimeout: opts.ResponseTimeout,
		descriptors:     opts.Descriptors,
		logger:          opts.Logger,
		now:             opts.Now,
		fsm:             newStateMachine(),
	}
	if m.health == nil {
		m.health = browser.EvalHealthChecker{}
	}
	if m.retry.MaxAttempts == 0 {
		m.retry = DefaultRetryPolicy
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = 15 * time.Second
	}
	if m.responseTimeout <= 0 {
		m.responseTimeout = 2 * time.Minute
	}
	m.logger = logging.Component(m.logger, "session")
	if m.now == nil {
		m.now = conversation.Now
	}

	if opts.WatchDescriptor && m.descriptors != nil {
		m.watcher = browser.NewDescriptorWatcher(m.descriptors, m.descriptorChanged, m.logger)
		if err := m.watcher.Start(context.Background()); err != nil {
			m.logger.Warn("descriptor watch disabled", "error", err)
			m.watcher = nil
		}
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return currentState(m.fsm)
}

func (m *Manager) fire(t trigger) {
	from := currentState(m.fsm)
	if err := m.fsm.Fire(t); err != nil {
		m.logger.Debug("ignored transition", "from", from, "trigger", t, "error", err)
		return
	}
	if to := currentState(m.fsm); to != from {
		m.logger.Debug("state", "from", from, "to", to, "trigger", t)
	}
}

// descriptorChanged runs on the watcher goroutine.
func (m *Manager) descriptorChanged(d *browser.Descriptor) {
	known := m.known.Load()
	if known == nil {
		return
	}
	if d == nil || d.Endpoint != known.Endpoint || (d.PID != 0 && d.PID != known.PID) {
		m.logger.Info("session descriptor changed by another process, will reconnect")
		m.stale.Store(true)
	}
}

// StartConversation begins a new, empty conversation and returns its id.
// It never touches the browser.
func (m *Manager) StartConversation(title string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startConversation(title)
}

func (m *Manager) startConversation(title string) string {
	m.conv = conversation.New(title, m.now())
	m.logger.Info("conversation started", "id", m.conv.ID)
	return m.conv.ID
}

// Conversation returns a copy of the current conversation, or nil.
func (m *Manager) Conversation() *conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv.Clone()
}

// History returns a copy of the current conversation's messages.
func (m *Manager) History() []conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conv == nil {
		return nil
	}
	return append([]conversation.Message(nil), m.conv.Messages...)
}

// ListSaved lists stored conversations, most recent first.
func (m *Manager) ListSaved() ([]conversation.Entry, error) {
	return m.store.List()
}

// Send delivers text in the current conversation (starting one if needed) and returns
// the reply. The user message is recorded before delivery and the conversation is
// saved after every call, whatever the outcome. A save failure is reported as a
// *PersistError alongside a successful reply.
func (m *Manager) Send(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return "", ErrClosed
	}
	return m.exchange(ctx, text, text)
}

// maxInlineFile is how many characters of a file SendFile puts in the prompt.
const maxInlineFile = 5000

// SendFile sends the text of the file at path, with an optional message, as one turn.
// The transcript records "[File: <path>] <message>" rather than the file body. Binary
// files are refused with ErrBinaryFile before anything is recorded.
func (m *Manager) SendFile(ctx context.Context, path, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return "", ErrClosed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: %s", ErrBinaryFile, path)
	}

	record := strings.TrimSpace(fmt.Sprintf("[File: %s] %s", path, message))
	return m.exchange(ctx, record, filePrompt(string(data), message))
}

func filePrompt(content, message string) string {
	if runes := []rune(content); len(runes) > maxInlineFile {
		content = string(runes[:maxInlineFile]) + "\n\n[...truncated...]"
	}
	intro := strings.TrimSpace(message)
	if intro == "" {
		intro = "Please review this file:"
	}
	return fmt.Sprintf("%s\n\n```\n%s\n```", intro, content)
}

// exchange records one user turn, delivers prompt, and saves. Callers hold mu.
func (m *Manager) exchange(ctx context.Context, record, prompt string) (string, error) {
	if m.conv == nil {
		m.startConversation("")
	}

	m.conv.Append(conversation.RoleUser, record, m.now())

	reply, err := m.deliverWithRecovery(ctx, prompt)
	if err == nil {
		m.conv.Append(conversation.RoleAssistant, reply, m.now())
		m.refreshRemoteURL(ctx)
	} else {
		m.logger.Warn("send failed", "id", m.conv.ID, "error", err)
	}
	m.conv.Touch(m.now())

	if _, serr := m.store.Save(m.conv, ""); serr != nil {
		perr := &PersistError{Path: m.store.PathFor(m.conv.ID), Err: serr}
		if err != nil {
			return "", errors.Join(err, perr)
		}
		return reply, perr
	}
	return reply, err
}

func (m *Manager) deliverWithRecovery(ctx context.Context, text string) (string, error) {
	recovered, err := m.ensureConnected(ctx)
	if err != nil {
		return "", err
	}

	reply, err := m.deliverOnce(ctx, text)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
		return "", err
	}
	// A send gets one reconnect cycle. If the pre-send check already spent it, give up.
	if recovered || m.health.IsAlive(ctx, m.handle) {
		return "", &Error{Kind: ErrDeliveryFailed, Op: "send", Err: err}
	}

	// The page died under us: one reconnect cycle, one retry.
	m.logger.Info("page lost during delivery, reconnecting", "error", err)
	m.degrade()
	if err := m.connect(ctx); err != nil {
		return "", err
	}
	reply, err = m.deliverOnce(ctx, text)
	if err != nil {
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			return "", err
		}
		return "", &Error{Kind: ErrDeliveryFailed, Op: "send", Err: err}
	}
	return reply, nil
}

func (m *Manager) deliverOnce(ctx context.Context, text string) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, m.responseTimeout)
	defer cancel()

	reply, err := m.deliverer.Deliver(rctx, m.handle, text)
	if err == nil {
		return reply, nil
	}
	if errors.Is(rctx.Err(), context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.Canceled) {
		return "", &Error{Kind: ErrTimeout, Op: "send", Err: err}
	}
	return "", err
}

// ensureConnected returns with a live handle or an error. A handle that fails its
// health check (or was marked stale) costs exactly one reconnect cycle, and recovered
// reports that it was spent.
func (m *Manager) ensureConnected(ctx context.Context) (recovered bool, err error) {
	if m.handle != nil {
		if !m.stale.Load() && m.health.IsAlive(ctx, m.handle) {
			return false, nil
		}
		m.logger.Info("browser page not alive, reconnecting")
		m.degrade()
		recovered = true
	}
	return recovered, m.connect(ctx)
}

// degrade drops the current handle and moves to Degraded.
func (m *Manager) degrade() {
	m.fire(triggerHealthFailed)
	m.dropHandle()
}

func (m *Manager) dropHandle() {
	if m.handle == nil {
		return
	}
	if err := m.handle.Close(); err != nil {
		m.logger.Debug("closing stale handle", "error", err)
	}
	m.handle = nil
}

// connect runs one full connect cycle: ensure the daemon, then attach, under the retry
// policy. Exhausted retries return ErrUnavailable and leave the manager Disconnected.
func (m *Manager) connect(ctx context.Context) error {
	m.fire(triggerConnect)

	endpoint := m.daemon.Endpoint()
	err := m.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := m.daemon.Ensure(ctx); err != nil {
			m.logger.Warn("browser daemon not available", "attempt", attempt, "error", err)
			return err
		}

		cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
		h, err := m.connector.Connect(cctx, endpoint)
		if err != nil {
			m.logger.Warn("attach failed", "attempt", attempt, "endpoint", endpoint, "error", err)
			return err
		}
		m.handle = h
		return nil
	})
	if err != nil {
		m.fire(triggerConnectFailed)
		return &Error{Kind: ErrUnavailable, Op: "connect", Err: err}
	}

	m.known.Store(m.readDescriptor())
	m.stale.Store(false)
	m.fire(triggerConnected)
	m.logger.Info("connected", "endpoint", endpoint)

	m.ensureOnSite(ctx)
	return nil
}

// ensureOnSite moves a freshly attached page to the site's start page when it is
// showing something else. Failure is logged; delivery reports the real problem.
func (m *Manager) ensureOnSite(ctx context.Context) {
	home, ok := m.deliverer.(HomePage)
	if !ok || home.StartURL() == "" {
		return
	}
	start, err := url.Parse(home.StartURL())
	if err != nil || start.Host == "" {
		return
	}

	nctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	current, err := m.handle.URL(nctx)
	if err == nil {
		if u, perr := url.Parse(current); perr == nil && strings.EqualFold(u.Host, start.Host) {
			return
		}
	}
	m.logger.Info("page is not on the site, opening start page", "page", current, "start", home.StartURL())
	if err := m.handle.Navigate(nctx, home.StartURL()); err != nil {
		m.logger.Warn("could not open start page", "url", home.StartURL(), "error", err)
	}
}

func (m *Manager) readDescriptor() *browser.Descriptor {
	if m.descriptors == nil {
		return nil
	}
	d, err := m.descriptors.Load()
	if err != nil {
		return nil
	}
	return d
}

// refreshRemoteURL records the page's thread URL, if the deliverer recognises one.
// It never connects.
func (m *Manager) refreshRemoteURL(ctx context.Context) {
	if m.handle == nil || m.handle.Closed() || m.conv == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pageURL, err := m.handle.URL(cctx)
	if err != nil || pageURL == "" {
		return
	}
	if loc, ok := m.deliverer.(ThreadLocator); ok {
		if thread, ok := loc.ThreadURL(pageURL); ok {
			m.conv.RemoteURL = thread
		}
		return
	}
	m.conv.RemoteURL = pageURL
}

// Export saves the current conversation to path (the store default when empty) with a
// freshly read remote URL, and returns the path written.
func (m *Manager) Export(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return "", ErrClosed
	}
	if m.conv == nil {
		return "", ErrNoConversation
	}

	m.refreshRemoteURL(ctx)
	written, err := m.store.Save(m.conv, path)
	if err != nil {
		if path == "" {
			path = m.store.PathFor(m.conv.ID)
		}
		return "", &PersistError{Path: path, Err: err}
	}
	return written, nil
}

// Load makes the conversation at path current. If it has a remote URL the live page is
// navigated there; failing to do so is logged and does not fail the load.
func (m *Manager) Load(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return ErrClosed
	}

	c, err := m.store.Load(path)
	if err != nil {
		return err
	}
	m.conv = c
	m.logger.Info("conversation loaded", "id", c.ID, "messages", len(c.Messages))

	if c.RemoteURL == "" {
		return nil
	}
	if err := m.navigate(ctx, c.RemoteURL); err != nil {
		m.logger.Warn("could not resume remote conversation, history is available offline",
			"url", c.RemoteURL, "error", err)
	}
	return nil
}

func (m *Manager) navigate(ctx context.Context, target string) error {
	if _, err := m.ensureConnected(ctx); err != nil {
		return err
	}
	nctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()
	return m.handle.Navigate(nctx, target)
}

// OpenURL navigates to an existing remote conversation and starts tracking it as a new
// local conversation.
func (m *Manager) OpenURL(ctx context.Context, rawURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return "", ErrClosed
	}
	if err := m.navigate(ctx, rawURL); err != nil {
		return "", err
	}
	id := m.startConversation("")
	m.conv.RemoteURL = rawURL
	return id, nil
}

// NewChat opens the site's start page and starts a new conversation.
func (m *Manager) NewChat(ctx context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return "", ErrClosed
	}
	if home, ok := m.deliverer.(HomePage); ok && home.StartURL() != "" {
		if err := m.navigate(ctx, home.StartURL()); err != nil {
			return "", err
		}
	}
	return m.startConversation(title), nil
}

// Ping checks the session and reconnects if the page is gone. It does not connect a
// session that was never connected.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case StateClosed:
		return ErrClosed
	case StateDisconnected:
		return nil
	}
	_, err := m.ensureConnected(ctx)
	return err
}

// Close ends the session. CloseSoft drops the connection and leaves the daemon and
// descriptor for the next process; CloseHard also shuts the browser down and deletes
// the descriptor. Closing twice is a no-op.
func (m *Manager) Close(ctx context.Context, mode CloseMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateClosed {
		return nil
	}
	if m.watcher != nil {
		m.watcher.Stop()
		m.watcher = nil
	}

	var err error
	if mode == CloseHard {
		if m.handle != nil && !m.handle.Closed() {
			if serr := m.handle.Shutdown(ctx); serr != nil {
				m.logger.Debug("browser shutdown over CDP failed", "error", serr)
			}
		}
		m.dropHandle()
		err = m.daemon.Stop(ctx)
	} else {
		m.dropHandle()
	}

	m.fire(triggerClose)
	m.logger.Info("session closed", "mode", mode)
	return err
}
