package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/i18n"
	"github.com/smileynet/shkolo/internal/refresh"
)

// sendTimeout bounds a compose send. The UI stays responsive meanwhile.
const sendTimeout = 30 * time.Second

// staleCheckInterval is how often the visible dataset is checked for
// expiry while the dashboard sits idle.
const staleCheckInterval = time.Minute

// Snapshotter provides a read-only view of the cache for one frame.
type Snapshotter interface {
	Snapshot() cache.Snapshot
}

// Model is the root Bubble Tea model for the dashboard. All state changes
// go through Transition; the model only performs the side effects it asks for.
type Model struct {
	state     State
	store     Snapshotter
	refresher Refresher
	sender    Sender
	changes   <-chan cache.Key
	now       func() time.Time
	log       *zap.Logger

	width  int
	height int
	tick   int

	compose     composeForm
	writeWarned bool
	lastCheck   time.Time
}

// Option configures a Model.
type Option func(*Model)

// WithSender enables sending composed messages.
func WithSender(s Sender) Option {
	return func(m *Model) { m.sender = s }
}

// WithChanges subscribes the dashboard to keys rewritten by other processes.
func WithChanges(ch <-chan cache.Key) Option {
	return func(m *Model) { m.changes = ch }
}

// WithClock sets the time source used for freshness and the schedule date.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.log = l }
}

// NewModel creates a dashboard showing state, reading from store and
// scheduling fetches through r.
func NewModel(state State, store Snapshotter, r Refresher, opts ...Option) Model {
	m := Model{
		state:     state,
		store:     store,
		refresher: r,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// State returns the current dashboard state.
func (m Model) State() State { return m.state }

// Init requests the student list and the initially visible dataset, and
// starts listening for fetch results.
func (m Model) Init() tea.Cmd {
	m.refresher.Request(cache.StudentsKey(), false)
	m.requestVisible()

	cmds := []tea.Cmd{waitForEvent(m.refresher.Events()), tick()}
	if m.changes != nil {
		cmds = append(cmds, waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

func waitForEvent(ch <-chan refresh.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return RefreshEventMsg{Event: ev}
	}
}

func waitForChange(ch <-chan cache.Key) tea.Cmd {
	return func() tea.Msg {
		key, ok := <-ch
		if !ok {
			return nil
		}
		return CacheChangedMsg{Key: key}
	}
}

func tick() tea.Cmd {
	return tea.Tick(spinner.Dot.FPS, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state.Modal != nil {
			m.compose.setWidth(msg.Width - borderChrome)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case RefreshEventMsg:
		m.applyEvent(msg.Event)
		return m, waitForEvent(m.refresher.Events())

	case CacheChangedMsg:
		if msg.Key == cache.StudentsKey() {
			m.requestVisible()
		}
		return m, waitForChange(m.changes)

	case SentMsg:
		if msg.Err != nil {
			m.log.Warn("send message", zap.Error(msg.Err))
			m.state.Banner = &Banner{Msg: i18n.ErrSend, Detail: msg.Err.Error()}
			return m, nil
		}
		m.state.Banner = &Banner{Msg: i18n.MessageSent}
		m.refresher.Request(cache.AccountKey(cache.KindMessages), true)
		return m, nil

	case tickMsg:
		m.tick++
		if now := m.now(); now.Sub(m.lastCheck) >= staleCheckInterval {
			m.lastCheck = now
			m.refreshExpired(now)
		}
		return m, tick()
	}

	return m, nil
}

// handleKey maps msg to an event, runs it through Transition and performs
// the requested refreshes.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	modalOpen := m.state.Modal != nil
	ev := KeyToEvent(msg, modalOpen)

	var cmd tea.Cmd
	if modalOpen && ev.Kind == EvNone {
		m.compose, cmd = m.compose.Update(msg)
		draft := m.compose.Draft(m.state.Modal.Field)
		m.state.Modal = &draft
	}
	var draft Compose
	if modalOpen {
		draft = *m.state.Modal
	}

	next, reqs := Transition(m.state, ev, m.view())
	m.state = next
	for _, r := range reqs {
		m.refresher.Request(r.Key, r.Force)
	}

	switch {
	case m.state.Quit:
		return m, tea.Quit
	case !modalOpen && m.state.Modal != nil:
		m.compose = newComposeForm(m.state.Lang, m.width-borderChrome)
	case modalOpen && m.state.Modal != nil && ev.Kind == EvNextField:
		m.compose.focus(m.state.Modal.Field)
	case modalOpen && m.state.Modal == nil && ev.Kind == EvSend:
		send := m.send(draft)
		return m, send
	}
	return m, cmd
}

// send starts a new thread with the draft's recipients and body.
func (m *Model) send(draft Compose) tea.Cmd {
	ids, err := ParseRecipients(draft.Recipient)
	if err != nil {
		m.state.Banner = &Banner{Msg: i18n.ErrSend, Detail: err.Error()}
		return nil
	}
	if m.sender == nil {
		m.state.Banner = &Banner{Msg: i18n.ErrSend}
		return nil
	}
	sender, body := m.sender, draft.Body
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return SentMsg{Err: sender.CreateThread(ctx, ids, body)}
	}
}

// applyEvent turns a fetch outcome into a banner. Data changes need no
// handling here: the next frame reads them from the store.
func (m *Model) applyEvent(ev refresh.Event) {
	if ev.Failed() {
		m.log.Warn("refresh failed", zap.String("key", ev.Key.String()), zap.Error(ev.Err))
		m.state.Banner = &Banner{Msg: bannerFor(ev.Err), Detail: ev.Key.String()}
		return
	}
	if ev.WriteErr != nil && !m.writeWarned {
		m.writeWarned = true
		m.state.Banner = &Banner{Msg: i18n.ErrCacheWrite}
	}
	if ev.Key == cache.StudentsKey() {
		m.requestVisible()
	}
}

// bannerFor maps a failed fetch to its banner label.
func bannerFor(err error) i18n.Msg {
	var fe *refresh.FetchError
	class := refresh.Classify(err)
	if errors.As(err, &fe) {
		class = fe.Class
	}
	switch class {
	case refresh.ClassNetwork:
		return i18n.ErrNetwork
	case refresh.ClassAuthExpired:
		return i18n.ErrAuthExpired
	case refresh.ClassMalformed:
		return i18n.ErrMalformed
	}
	return i18n.ErrOther
}

func (m Model) view() View {
	return BuildView(m.state, m.store.Snapshot(), m.now())
}

// requestVisible asks for the dataset on screen, if it is known yet.
func (m Model) requestVisible() {
	if key, ok := VisibleKey(m.state, m.view()); ok {
		m.refresher.Request(key, false)
	}
}

// refreshExpired re-requests the datasets on screen once their entries
// have expired, unless a fetch for them is already running.
func (m Model) refreshExpired(now time.Time) {
	v := m.view()
	snap := m.store.Snapshot()
	pending := m.refresher.Pending()
	for _, visible := range []func(State, View) (cache.Key, bool){VisibleKey, DetailKey} {
		key, ok := visible(m.state, v)
		if !ok || pending[key] {
			continue
		}
		if e, cached := snap.Get(key); cached && e.Fresh(now) {
			continue
		}
		m.log.Debug("visible dataset expired", zap.Stringer("key", key))
		m.refresher.Request(key, false)
	}
}

// View renders the dashboard.
func (m Model) View() string {
	f := Frame{
		Width:   m.width,
		Height:  m.height,
		Tick:    m.tick,
		Now:     m.now(),
		Pending: m.refresher.Pending(),
	}
	if m.state.Modal != nil {
		f.ComposeView = m.compose.View(m.state.Lang)
	}
	return Render(m.state, m.store.Snapshot(), f)
}
