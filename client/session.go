package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

const (
	defaultPollInterval = 2 * time.Minute
	defaultPageSize     = 20
	maxPageSize         = 100
)

// Backend is the part of the notifications API a Session relies on. *API implements it.
type Backend interface {
	List(ctx context.Context, filter notification.ListFilter) (notification.Page, error)
	MarkRead(ctx context.Context, id string) (notification.Notification, error)
	Archive(ctx context.Context, id string) (int, error)
	MarkAllRead(ctx context.Context) (int, error)
}

type opKind int

const (
	opRead opKind = iota
	opArchive
	opReadAll
)

func (k opKind) String() string {
	switch k {
	case opRead:
		return "mark read"
	case opArchive:
		return "archive"
	default:
		return "mark all read"
	}
}

type (
	// override is local state a server listing must not undo until the server acknowledged it.
	override struct {
		read     bool
		archived bool
		at       time.Time
		pending  int
		ackSeq   uint64 // refresh sequence current when the last pending mutation was acknowledged
	}

	mutation struct {
		kind     opKind
		id       string
		inFlight bool
	}

	// State is a point-in-time copy of the session's mirror.
	State struct {
		UserID      string
		Items       []notification.Notification
		UnreadCount int
		HasMore     bool
		PanelOpen   bool
	}
)

func (ov *override) settled(startSeq uint64) bool {
	return ov.pending == 0 && ov.ackSeq < startSeq
}

// Session keeps a local, ordered mirror of one user's notifications.
// Results of requests issued for a previous Start are discarded.
type Session struct {
	backend      Backend
	logger       core.Logger
	pollInterval time.Duration
	pageSize     int
	now          func() time.Time

	mu        sync.Mutex
	gen       uint64
	seq       uint64
	applied   uint64 // sequence of the newest listing applied to items
	userID    string
	cancel    context.CancelFunc
	polling   sync.WaitGroup
	items     []notification.Notification
	unread    int
	pages     int
	hasMore   bool
	panelOpen bool
	overrides map[string]*override
	allRead   *override
	outbox    []*mutation
}

func NewSession(backend Backend, conf core.ClientConfig, logger core.Logger) *Session {
	interval := conf.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Session{
		backend:      backend,
		logger:       logger,
		pollInterval: interval,
		pageSize:     defaultPageSize,
		now:          time.Now,
		overrides:    make(map[string]*override),
	}
}

// Start switches the session to userID: the previous user's poller is stopped and its state dropped,
// then the first page is loaded and background polling begins.
func (s *Session) Start(ctx context.Context, userID string) error {
	s.Stop()

	s.mu.Lock()
	s.userID = userID
	gen := s.gen
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.polling.Add(1)
	s.mu.Unlock()

	go s.poll(pollCtx, gen)
	return s.refresh(ctx, gen)
}

// Stop cancels polling and invalidates every in-flight request.
func (s *Session) Stop() {
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.userID = ""
	s.items = nil
	s.unread = 0
	s.pages = 0
	s.hasMore = false
	s.overrides = make(map[string]*override)
	s.allRead = nil
	s.outbox = nil
	s.mu.Unlock()

	s.polling.Wait()
}

func (s *Session) poll(ctx context.Context, gen uint64) {
	defer s.polling.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			open := s.panelOpen
			s.mu.Unlock()
			if open {
				continue
			}
			if err := s.refresh(ctx, gen); err != nil && ctx.Err() == nil {
				s.logger.Warn(fmt.Sprintf("polling notifications: %v", err), err)
			}
		}
	}
}

// SetPanelOpen pauses background polling while the notification panel is open.
func (s *Session) SetPanelOpen(open bool) {
	s.mu.Lock()
	s.panelOpen = open
	s.mu.Unlock()
}

// Refresh re-sends pending mutations, then refetches every loaded page.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, gen)
}

func (s *Session) refresh(ctx context.Context, gen uint64) error {
	s.flushOutbox(ctx, gen)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	s.seq++
	startSeq := s.seq
	pages := s.pages
	if pages < 1 {
		pages = 1
	}
	window := pages * s.pageSize
	s.mu.Unlock()

	fetched, unread, hasMore, err := s.fetchWindow(ctx, window)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || startSeq < s.applied {
		return nil
	}
	s.applied = startSeq

	if len(fetched) > window {
		fetched = fetched[:window]
		hasMore = true
	}
	items, adjust := s.merge(fetched, make(map[string]struct{}, len(fetched)))
	s.items = items
	s.unread = unread - adjust
	if s.allRead != nil {
		s.unread = countUnread(items)
	}
	if s.unread < 0 {
		s.unread = 0
	}
	s.pages = (len(fetched) + s.pageSize - 1) / s.pageSize
	s.hasMore = hasMore

	for id, ov := range s.overrides {
		if ov.settled(startSeq) {
			delete(s.overrides, id)
		}
	}
	if s.allRead != nil && s.allRead.settled(startSeq) {
		s.allRead = nil
	}
	return nil
}

// fetchWindow lists the newest window items in requests of at most maxPageSize.
// Items shifted across chunk boundaries may repeat; merge drops the duplicates.
func (s *Session) fetchWindow(ctx context.Context, window int) (items []notification.Notification, unread int, hasMore bool, err error) {
	chunk := window
	if chunk > maxPageSize {
		chunk = maxPageSize
	}
	for p := 1; len(items) < window; p++ {
		var page notification.Page
		page, err = s.backend.List(ctx, notification.ListFilter{Page: p, Limit: chunk})
		if err != nil {
			return nil, 0, false, errors.Wrap(err, "listing notifications")
		}
		if p == 1 {
			unread = page.UnreadCount
		}
		items = append(items, page.Items...)
		hasMore = page.HasMore
		if !page.HasMore || len(page.Items) == 0 {
			break
		}
	}
	return items, unread, hasMore, nil
}

// LoadMore appends the next page, skipping ids that are already loaded.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	if !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	next := s.pages + 1
	s.mu.Unlock()

	page, err := s.backend.List(ctx, notification.ListFilter{Page: next, Limit: s.pageSize})
	if err != nil {
		return errors.Wrap(err, "loading more notifications")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	seen := make(map[string]struct{}, len(s.items))
	for _, n := range s.items {
		seen[n.ID] = struct{}{}
	}
	more, _ := s.merge(page.Items, seen)
	s.items = append(s.items, more...)
	s.pages = next
	s.hasMore = page.HasMore
	return nil
}

// merge applies local overrides to server items, dropping ids already in seen and locally archived items.
// Every id merged is added to seen.
// adjust counts the items the server reports unread that are read or gone locally.
func (s *Session) merge(server []notification.Notification, seen map[string]struct{}) ([]notification.Notification, int) {
	items := make([]notification.Notification, 0, len(server))
	var adjust int
	for _, n := range server {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		wasUnread := !n.Read
		if ov, ok := s.overrides[n.ID]; ok {
			if ov.archived {
				if wasUnread {
					adjust++
				}
				continue
			}
			if ov.read && !n.Read {
				markLocalRead(&n, ov.at)
			}
		}
		if s.allRead != nil && !n.Read && !n.CreatedAt.After(s.allRead.at) {
			markLocalRead(&n, s.allRead.at)
		}
		if wasUnread && n.Read {
			adjust++
		}
		items = append(items, n)
	}
	return items, adjust
}

func markLocalRead(n *notification.Notification, at time.Time) {
	at = at.UTC()
	n.Read = true
	n.ReadAt = &at
}

func countUnread(items []notification.Notification) int {
	var count int
	for _, n := range items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *Session) overrideFor(id string) *override {
	ov, ok := s.overrides[id]
	if !ok {
		ov = &override{at: s.now()}
		s.overrides[id] = ov
	}
	return ov
}

func (s *Session) indexOf(id string) int {
	for i, n := range s.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// enqueue must be called with s.mu held.
func (s *Session) enqueue(kind opKind, id string) (*mutation, uint64) {
	m := &mutation{kind: kind, id: id}
	s.outbox = append(s.outbox, m)
	return m, s.gen
}

// MarkRead marks id read locally, then tells the server.
// Rate limiting and transient failures are swallowed; the mutation is re-sent before the next poll.
func (s *Session) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 && !s.items[i].Read {
		markLocalRead(&s.items[i], s.now())
		if s.unread > 0 {
			s.unread--
		}
	}
	ov := s.overrideFor(id)
	ov.read = true
	ov.pending++
	m, gen := s.enqueue(opRead, id)
	s.mu.Unlock()

	return s.send(ctx, gen, m)
}

// Archive removes id from the local list, then tells the server.
func (s *Session) Archive(ctx context.Context, id string) error {
	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		if !s.items[i].Read && s.unread > 0 {
			s.unread--
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	ov := s.overrideFor(id)
	ov.read = true
	ov.archived = true
	ov.pending++
	m, gen := s.enqueue(opArchive, id)
	s.mu.Unlock()

	return s.send(ctx, gen, m)
}

// MarkAllRead marks every loaded item read and zeroes the unread count, then tells the server.
func (s *Session) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	now := s.now()
	for i := range s.items {
		if !s.items[i].Read {
			markLocalRead(&s.items[i], now)
		}
	}
	s.unread = 0
	if s.allRead == nil {
		s.allRead = &override{}
	}
	s.allRead.read = true
	s.allRead.at = now
	s.allRead.pending++
	m, gen := s.enqueue(opReadAll, "")
	s.mu.Unlock()

	return s.send(ctx, gen, m)
}

func (s *Session) flushOutbox(ctx context.Context, gen uint64) {
	s.mu.Lock()
	pending := append([]*mutation(nil), s.outbox...)
	s.mu.Unlock()

	for _, m := range pending {
		if err := s.send(ctx, gen, m); err != nil {
			s.logger.Warn(fmt.Sprintf("re-sending %s: %v", m.kind, err), err)
		}
	}
}

func (s *Session) call(ctx context.Context, m *mutation) error {
	var err error
	switch m.kind {
	case opRead:
		_, err = s.backend.MarkRead(ctx, m.id)
	case opArchive:
		_, err = s.backend.Archive(ctx, m.id)
	case opReadAll:
		_, err = s.backend.MarkAllRead(ctx)
	}
	return err
}

// transient errors keep the mutation queued.
func transient(err error) bool {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func (s *Session) send(ctx context.Context, gen uint64, m *mutation) error {
	s.mu.Lock()
	if gen != s.gen || m.inFlight || !s.queued(m) {
		s.mu.Unlock()
		return nil
	}
	m.inFlight = true
	s.mu.Unlock()

	err := s.call(ctx, m)

	s.mu.Lock()
	defer s.mu.Unlock()
	m.inFlight = false
	if gen != s.gen {
		return nil
	}

	switch {
	case err == nil:
		s.settle(m, true)
		return nil
	case IsStatus(err, http.StatusNotFound):
		// already gone server side
		s.settle(m, true)
		return nil
	case transient(err):
		s.logger.Debug(fmt.Sprintf("%s deferred: %v", m.kind, err))
		return nil
	default:
		// rejected: let the next poll restore the server's state
		s.settle(m, false)
		return errors.Wrap(err, m.kind.String())
	}
}

func (s *Session) queued(m *mutation) bool {
	for _, q := range s.outbox {
		if q == m {
			return true
		}
	}
	return false
}

// settle removes m from the outbox. Acknowledged overrides are kept until a later refresh confirms them.
func (s *Session) settle(m *mutation, acked bool) {
	for i, q := range s.outbox {
		if q == m {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			break
		}
	}

	ov := s.allRead
	if m.kind != opReadAll {
		ov = s.overrides[m.id]
	}
	if ov == nil {
		return
	}
	ov.pending--
	ov.ackSeq = s.seq
	if !acked && ov.pending <= 0 {
		if m.kind == opReadAll {
			s.allRead = nil
		} else {
			delete(s.overrides, m.id)
		}
	}
}

// Snapshot copies the current mirror.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		UserID:      s.userID,
		Items:       append([]notification.Notification(nil), s.items...),
		UnreadCount: s.unread,
		HasMore:     s.hasMore,
		PanelOpen:   s.panelOpen,
	}
}

// Pending is the number of mutations waiting to be re-sent.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}
