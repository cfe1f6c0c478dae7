package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/refresh"
	"disposal-bot/api/internal/util"
)

type viewKind int

const (
	viewHistory viewKind = iota
	viewPickups
	viewDashboard
)

const defaultIdle = 5 * time.Minute

var errAdminOnly = errors.New("only administrators can open the dashboard")

type rendered struct {
	Text string
	Rows [][]tgbotapi.InlineKeyboardButton
}

// liveView is a list message that keeps itself current. It is visible until
// paused and focused while the chat had activity within the idle timeout.
type liveView struct {
	kind   viewKind
	chatID int64
	msgID  int
	idle   time.Duration

	paused   atomic.Bool
	lastSeen atomic.Int64
	latest   refresh.Latest[rendered]

	mu   sync.Mutex
	subs map[int]func(refresh.Event)
	next int
	stop func()
}

func (v *liveView) Visible() bool { return !v.paused.Load() }

func (v *liveView) Focused() bool {
	return time.Since(time.Unix(0, v.lastSeen.Load())) < v.idle
}

func (v *liveView) Subscribe(fn func(refresh.Event)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.subs == nil {
		v.subs = map[int]func(refresh.Event){}
	}
	id := v.next
	v.next++
	v.subs[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}

func (v *liveView) emit(e refresh.Event) {
	v.mu.Lock()
	fns := make([]func(refresh.Event), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// openView replaces the chat's live view with a new one of the given kind.
func (r *Router) openView(ctx context.Context, cid int64, kind viewKind) {
	s, err := r.Sessions.Hydrate(ctx, cid)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	if kind == viewDashboard && s.Role() != backend.RoleAdmin {
		r.send(cid, "❌ Only administrators can open the dashboard.")
		return
	}
	r.closeView(cid)

	msg, err := r.Bot.Send(tgbotapi.NewMessage(cid, "⏳ Loading…"))
	if err != nil {
		r.log().Warn("open view", "chat_id", cid, "err", err)
		return
	}
	idle := r.IdleTimeout
	if idle <= 0 {
		idle = defaultIdle
	}
	v := &liveView{kind: kind, chatID: cid, msgID: msg.MessageID, idle: idle}
	v.lastSeen.Store(time.Now().UnixNano())

	ctrl := refresh.New(v, r.RefreshInterval, r.viewFunc(v), r.log().With("chat_id", cid))
	liveViews.Store(cid, v)
	v.mu.Lock()
	v.stop = ctrl.Start(context.WithoutCancel(ctx))
	v.mu.Unlock()
}

func (r *Router) closeView(cid int64) {
	val, ok := liveViews.LoadAndDelete(cid)
	if !ok {
		return
	}
	v := val.(*liveView)
	v.mu.Lock()
	stop := v.stop
	v.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// touchView records chat activity; the first activity after an idle spell
// refocuses the view.
func (r *Router) touchView(cid int64) {
	v, ok := loadView(cid)
	if !ok {
		return
	}
	now := time.Now().UnixNano()
	prev := v.lastSeen.Swap(now)
	if time.Duration(now-prev) >= v.idle {
		v.emit(refresh.Focused)
	}
}

// refreshView reloads the live view now, e.g. after a status change.
func (r *Router) refreshView(cid int64) {
	if v, ok := loadView(cid); ok {
		v.emit(refresh.BecameVisible)
	}
}

func (r *Router) setViewPaused(cid int64, paused bool) {
	v, ok := loadView(cid)
	if !ok {
		return
	}
	v.paused.Store(paused)
	cur, _ := v.latest.Value()
	r.editView(v, cur)
	if !paused {
		v.emit(refresh.BecameVisible)
	}
}

func (r *Router) viewFunc(v *liveView) refresh.Func {
	return func(ctx context.Context, kind refresh.Kind) error {
		seq := v.latest.Begin()
		out, err := r.renderView(ctx, v)
		if err != nil {
			if kind == refresh.Foreground {
				r.editView(v, rendered{Text: "❌ " + backend.MessageOf(err, "Could not load the list.")})
			}
			return err
		}
		if v.latest.Commit(seq, out) == refresh.Applied {
			r.editView(v, out)
		}
		return nil
	}
}

func (r *Router) editView(v *liveView, out rendered) {
	if out.Text == "" {
		return
	}
	rows := append(append([][]tgbotapi.InlineKeyboardButton(nil), out.Rows...), viewControls(v.paused.Load()))
	edit := tgbotapi.NewEditMessageTextAndMarkup(v.chatID, v.msgID, out.Text, tgbotapi.NewInlineKeyboardMarkup(rows...))
	_, _ = r.Bot.Request(edit)
}

func (r *Router) renderView(ctx context.Context, v *liveView) (rendered, error) {
	s, err := r.Sessions.Hydrate(ctx, v.chatID)
	if err != nil {
		return rendered{}, err
	}
	switch v.kind {
	case viewHistory:
		ds, err := s.Client.ListDisposals(ctx)
		if err != nil {
			return rendered{}, err
		}
		return renderDisposals(ds), nil
	case viewPickups:
		ps, err := s.Client.ListPickups(ctx)
		if err != nil {
			return rendered{}, err
		}
		return renderPickups(ps, s.Role()), nil
	case viewDashboard:
		if s.Role() != backend.RoleAdmin {
			return rendered{}, errAdminOnly
		}
		return renderDashboard(s.Client.Dashboard(ctx)), nil
	}
	return rendered{}, fmt.Errorf("unknown view %d", v.kind)
}

func renderDisposals(ds []backend.Disposal) rendered {
	if len(ds) == 0 {
		return rendered{Text: "📋 No saved disposals yet. Send a medicine name or photo to start."}
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].CreatedAt.After(ds[j].CreatedAt) })
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Your disposals (%d)\n", len(ds))
	for _, d := range ds {
		fmt.Fprintf(&b, "\n• %s", firstNonEmpty(d.GenericName, "Unnamed medicine"))
		if d.RiskLevel != "" {
			fmt.Fprintf(&b, " · %s", d.RiskLevel)
		}
		fmt.Fprintf(&b, " · %s", d.Status)
		if !d.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " · %s", d.CreatedAt.Format("2006-01-02"))
		}
	}
	return rendered{Text: util.Truncate(b.String(), maxText)}
}

func renderPickups(ps []backend.Pickup, role backend.Role) rendered {
	if len(ps) == 0 {
		return rendered{Text: "🚚 No pickup requests."}
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })
	var b strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	fmt.Fprintf(&b, "🚚 Pickup requests (%d)\n", len(ps))
	for _, p := range ps {
		fmt.Fprintf(&b, "\n• %s · %s", firstNonEmpty(p.MedicineName, "Medicine"), p.Status)
		if p.CHWName != "" {
			fmt.Fprintf(&b, "\n  CHW: %s", p.CHWName)
		}
		if p.Location != "" || p.PreferredTime != "" {
			fmt.Fprintf(&b, "\n  %s %s", p.Location, p.PreferredTime)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, st := range pickupActions(p, role) {
			row = append(row, statusButton(p, st))
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rendered{Text: util.Truncate(b.String(), maxText), Rows: rows}
}

func renderDashboard(d backend.Dashboard) rendered {
	var b strings.Builder
	b.WriteString("📊 Dashboard\n\n")
	if d.StatsErr != nil {
		b.WriteString("⚠️ Statistics unavailable: " + backend.MessageOf(d.StatsErr, d.StatsErr.Error()) + "\n")
	} else if st := d.Stats; st != nil {
		fmt.Fprintf(&b, "Users: %d\nCHWs: %d\nDisposals: %d\nPending review: %d\nPickup requests: %d\nCompleted pickups: %d\n",
			st.TotalUsers, st.TotalCHWs, st.TotalDisposals, st.PendingReviews, st.PickupRequests, st.CompletedPickups)
		writeCounts(&b, "By risk", st.ByRiskLevel)
		writeCounts(&b, "By category", st.ByCategory)
	}
	b.WriteString("\n")
	switch {
	case d.PendingErr != nil:
		b.WriteString("⚠️ Pending approvals unavailable: " + backend.MessageOf(d.PendingErr, d.PendingErr.Error()))
	case len(d.PendingUsers) == 0:
		b.WriteString("No accounts waiting for approval.")
	default:
		fmt.Fprintf(&b, "Waiting for approval (%d):", len(d.PendingUsers))
		for _, u := range d.PendingUsers {
			fmt.Fprintf(&b, "\n• %s <%s> %s", firstNonEmpty(u.Name, "—"), u.Email, u.Role)
		}
	}
	return rendered{Text: util.Truncate(b.String(), maxText)}
}

func writeCounts(b *strings.Builder, title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, m[k]))
	}
	fmt.Fprintf(b, "%s: %s\n", title, strings.Join(parts, ", "))
}

func loadView(cid int64) (*liveView, bool) {
	v, ok := liveViews.Load(cid)
	if !ok {
		return nil, false
	}
	return v.(*liveView), true
}

var _ refresh.Host = (*liveView)(nil)
