package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/session"
	"disposal-bot/api/internal/workflow"
)

type formStage int

const (
	stageDisposal formStage = iota
	stageCHW
	stageReason
	stageLocation
	stageTime
	stageConsent
)

// pickupForm collects a pickup request over several messages.
type pickupForm struct {
	mu        sync.Mutex
	Draft     workflow.PickupDraft
	Form      workflow.PickupForm
	Stage     formStage
	CHWs      []backend.CHW
	Disposals []backend.Disposal
	Pickups   []backend.Pickup
}

// formData is what a form needs from the backend, loaded concurrently.
type formData struct {
	chws         []backend.CHW
	chwErr       error
	pickups      []backend.Pickup
	pickupsErr   error
	disposals    []backend.Disposal
	disposalsErr error
}

func loadFormData(ctx context.Context, s *session.Session, withDisposals bool) formData {
	var d formData
	var g errgroup.Group
	g.Go(func() error {
		d.chws, d.chwErr = s.Client.ListCHWs(ctx, s.User.Sector)
		return nil
	})
	g.Go(func() error {
		d.pickups, d.pickupsErr = s.Client.ListPickups(ctx)
		return nil
	})
	if withDisposals {
		g.Go(func() error {
			d.disposals, d.disposalsErr = s.Client.ListDisposals(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return d
}

// activePickupFor returns the open pickup already requested for a disposal.
func activePickupFor(pickups []backend.Pickup, id backend.ID) (backend.Pickup, bool) {
	if id == "" {
		return backend.Pickup{}, false
	}
	for _, p := range pickups {
		if p.DisposalID == id && !p.Status.Terminal() {
			return p, true
		}
	}
	return backend.Pickup{}, false
}

// openPickupForm starts the form for a draft coming from the current prediction.
func (r *Router) openPickupForm(ctx context.Context, cid int64, draft *workflow.PickupDraft) {
	s, err := r.Sessions.Hydrate(ctx, cid)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	data := loadFormData(ctx, s, false)
	if data.pickupsErr != nil {
		r.log().Warn("list pickups for form", "chat_id", cid, "err", data.pickupsErr)
	}
	if p, ok := activePickupFor(data.pickups, draft.DisposalID); ok {
		r.send(cid, fmt.Sprintf("A pickup for this disposal is already %s.", p.Status))
		return
	}
	f := &pickupForm{Draft: *draft, Pickups: data.pickups}
	if !r.withCHWs(cid, f, data) {
		return
	}
	forms.Store(cid, f)
	r.promptCHW(cid, f)
}

// openStandaloneForm offers the user's saved disposals that still wait for a pickup.
func (r *Router) openStandaloneForm(ctx context.Context, cid int64) {
	s, err := r.Sessions.Hydrate(ctx, cid)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	data := loadFormData(ctx, s, true)
	if data.disposalsErr != nil {
		r.send(cid, "❌ "+backend.MessageOf(data.disposalsErr, "Could not load your disposals."))
		return
	}
	var open []backend.Disposal
	for _, d := range data.disposals {
		if d.Status != backend.DisposalPendingReview {
			continue
		}
		if _, busy := activePickupFor(data.pickups, d.ID); busy {
			continue
		}
		open = append(open, d)
	}
	if len(open) == 0 {
		r.send(cid, "You have no saved disposals waiting for a pickup. Send a medicine name or photo first.")
		return
	}
	f := &pickupForm{Stage: stageDisposal, Disposals: open, Pickups: data.pickups}
	if !r.withCHWs(cid, f, data) {
		return
	}
	forms.Store(cid, f)
	_, _ = r.sendWithKeyboard(cid, "Which disposal should be picked up?", disposalKeyboard(open))
}

func (r *Router) withCHWs(cid int64, f *pickupForm, data formData) bool {
	if data.chwErr != nil {
		r.send(cid, "❌ "+backend.MessageOf(data.chwErr, "Could not load community health workers."))
		return false
	}
	for _, c := range data.chws {
		if c.Available == nil || *c.Available {
			f.CHWs = append(f.CHWs, c)
		}
	}
	if len(f.CHWs) == 0 {
		r.send(cid, "No community health worker is available in your sector yet. Please try again later.")
		return false
	}
	return true
}

func (r *Router) promptCHW(cid int64, f *pickupForm) {
	f.mu.Lock()
	f.Stage = stageCHW
	chws := f.CHWs
	name := f.Draft.GenericName
	f.mu.Unlock()
	_, _ = r.sendWithKeyboard(cid,
		fmt.Sprintf("🚚 Pickup for %s\nChoose a community health worker:", firstNonEmpty(name, "your medicine")),
		chwKeyboard(chws))
}

func (r *Router) chooseDisposal(ctx context.Context, cid int64, id backend.ID) {
	f, ok := loadForm(cid)
	if !ok {
		r.send(cid, "This form has expired. Send /pickup to start again.")
		return
	}
	f.mu.Lock()
	var picked *backend.Disposal
	for i := range f.Disposals {
		if f.Disposals[i].ID == id {
			picked = &f.Disposals[i]
		}
	}
	if f.Stage != stageDisposal || picked == nil {
		f.mu.Unlock()
		r.send(cid, "Please choose one of the listed disposals.")
		return
	}
	f.Draft = workflow.PickupDraft{
		DisposalID:  picked.ID,
		GenericName: picked.GenericName,
		RiskLevel:   picked.RiskLevel,
		Category:    picked.PredictedCategory,
	}
	f.mu.Unlock()
	r.promptCHW(cid, f)
}

func (r *Router) chooseCHW(cid int64, id backend.ID) {
	f, ok := loadForm(cid)
	if !ok {
		r.send(cid, "This form has expired. Request the pickup again.")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Stage != stageCHW {
		return
	}
	var chw *backend.CHW
	for i := range f.CHWs {
		if f.CHWs[i].ID == id {
			chw = &f.CHWs[i]
		}
	}
	if chw == nil {
		r.send(cid, "Please choose one of the listed health workers.")
		return
	}
	f.Form.CHWID = chw.ID
	f.Stage = stageReason
	r.send(cid, fmt.Sprintf("%s will collect it.\nWhy do you need a pickup? (for example: expired, no longer needed, high-risk medicine)", chw.Name))
}

// formStep feeds a text message into an open form. It reports whether the
// message was consumed.
func (r *Router) formStep(ctx context.Context, cid int64, text string) bool {
	f, ok := loadForm(cid)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.Stage {
	case stageReason:
		f.Form.Reason = text
		f.Stage = stageLocation
		r.send(cid, "Where should the medicine be collected? (address, village or landmark)")
	case stageLocation:
		f.Form.Location = text
		f.Stage = stageTime
		r.send(cid, "When suits you? (for example: tomorrow 10:00)")
	case stageTime:
		f.Form.PreferredTime = text
		f.Stage = stageConsent
		_, _ = r.sendWithKeyboard(cid, formSummary(f), consentKeyboard())
	default:
		r.send(cid, "Please use the buttons above to continue, or /cancel.")
	}
	return true
}

func (r *Router) submitForm(ctx context.Context, cid int64, consent bool) {
	f, ok := loadForm(cid)
	if !ok {
		return
	}
	if !consent {
		forms.Delete(cid)
		r.send(cid, "Pickup request cancelled.")
		return
	}
	f.mu.Lock()
	f.Form.Consent = true
	draft, form := f.Draft, f.Form
	f.mu.Unlock()

	p, err := r.flowFor(cid).SubmitPickup(ctx, draft, form)
	if err != nil {
		r.send(cid, userMessage(err))
		_, _ = r.sendWithKeyboard(cid, "Try again?", consentKeyboard())
		return
	}
	forms.Delete(cid)
	r.send(cid, fmt.Sprintf("🚚 Pickup requested (status: %s). The health worker will confirm it.", p.Status))
	r.openView(ctx, cid, viewPickups)
}

func formSummary(f *pickupForm) string {
	chw := f.Form.CHWID.String()
	for _, c := range f.CHWs {
		if c.ID == f.Form.CHWID {
			chw = c.Name
		}
	}
	var b strings.Builder
	b.WriteString("Please confirm the pickup request:\n\n")
	fmt.Fprintf(&b, "Medicine: %s\n", firstNonEmpty(f.Draft.GenericName, "—"))
	if f.Draft.RiskLevel != "" {
		fmt.Fprintf(&b, "Risk: %s\n", f.Draft.RiskLevel)
	}
	fmt.Fprintf(&b, "Health worker: %s\n", chw)
	fmt.Fprintf(&b, "Reason: %s\n", f.Form.Reason)
	fmt.Fprintf(&b, "Location: %s\n", f.Form.Location)
	fmt.Fprintf(&b, "Time: %s\n\n", f.Form.PreferredTime)
	b.WriteString("I agree that the health worker may contact me and collect the medicine.")
	return b.String()
}

func loadForm(cid int64) (*pickupForm, bool) {
	v, ok := forms.Load(cid)
	if !ok {
		return nil, false
	}
	return v.(*pickupForm), true
}
