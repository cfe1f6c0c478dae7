package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
)

type State int

const (
	NoPrediction State = iota
	Predicted
	DisposalSaved
	PickupRequested
)

func (s State) String() string {
	switch s {
	case Predicted:
		return "predicted"
	case DisposalSaved:
		return "disposal_saved"
	case PickupRequested:
		return "pickup_requested"
	default:
		return "no_prediction"
	}
}

// Nav tells the front end where to go after a successful step.
type Nav string

const (
	NavStay       Nav = ""
	NavHistory    Nav = "history"
	NavPickupForm Nav = "pickup_form"
)

const (
	msgPredictFailed = "We could not get a prediction. Check your connection and try again."
	msgSaveFailed    = "Could not save the disposal. Please try again."
	msgPickupFailed  = "Could not create the pickup request. Please try again."
)

// UserError carries a message meant for the user next to the underlying cause.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }
func (e *UserError) Unwrap() error { return e.Err }

var (
	ErrNoPrediction  = &UserError{Message: "Run a prediction first."}
	ErrAlreadySaved  = &UserError{Message: "This disposal is already saved."}
	ErrPickupPending = &UserError{Message: "A pickup has already been requested for this disposal."}

	errNoDisposalID = errors.New("backend returned a disposal without an id")
)

// Backend is the slice of the REST client the workflow needs.
type Backend interface {
	CreateDisposal(ctx context.Context, p *disposal.Payload) (*backend.Disposal, error)
	CreatePickup(ctx context.Context, req backend.PickupRequest) (*backend.Pickup, error)
	UpdateDisposal(ctx context.Context, id backend.ID, upd backend.DisposalUpdate) (*backend.Disposal, error)
}

// PickupDraft is what the pickup form is opened with.
type PickupDraft struct {
	DisposalID  backend.ID
	GenericName string
	RiskLevel   string
	Category    string
}

type PickupForm struct {
	CHWID         backend.ID
	Reason        string
	Location      string
	PreferredTime string
	Consent       bool
}

// Validate reports the first missing field as a UserError.
func (f PickupForm) Validate() error {
	switch {
	case strings.TrimSpace(f.CHWID.String()) == "":
		return &UserError{Message: "Please choose a community health worker."}
	case strings.TrimSpace(f.Reason) == "":
		return &UserError{Message: "Please give a reason for the pickup."}
	case strings.TrimSpace(f.Location) == "":
		return &UserError{Message: "Please enter the pickup location."}
	case strings.TrimSpace(f.PreferredTime) == "":
		return &UserError{Message: "Please choose a preferred pickup time."}
	case !f.Consent:
		return &UserError{Message: "Please confirm your consent to the pickup."}
	}
	return nil
}

// Flow drives one user's prediction through save and pickup.
// The backend owns the persisted records; Flow only tracks where the user is.
type Flow struct {
	engine predict.Engine
	api    Backend
	log    *slog.Logger

	mu     sync.Mutex
	state  State
	pred   *normalize.Prediction
	input  disposal.FormInputs
	image  *disposal.ImageFile
	saved  *backend.Disposal
	pickup *backend.Pickup
}

func New(engine predict.Engine, api Backend, log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	return &Flow{engine: engine, api: api, log: log}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Prediction() *normalize.Prediction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pred
}

func (f *Flow) Disposal() *backend.Disposal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

func (f *Flow) Pickup() *backend.Pickup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pickup
}

// Reset forgets the current prediction.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

func (f *Flow) reset() {
	f.state = NoPrediction
	f.pred, f.image, f.saved, f.pickup = nil, nil, nil, nil
	f.input = disposal.FormInputs{}
}

// PredictText runs a text prediction. Any failure leaves the flow in NoPrediction.
func (f *Flow) PredictText(ctx context.Context, genericName string) (*normalize.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()

	raw, err := f.engine.PredictText(ctx, genericName)
	if err != nil {
		return nil, &UserError{Message: predict.MessageOf(err, msgPredictFailed), Err: err}
	}
	p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelText, TypedName: genericName})
	if p == nil {
		return nil, &UserError{Message: msgPredictFailed, Err: errors.New("empty prediction")}
	}
	f.state, f.pred = Predicted, p
	f.input = disposal.FormInputs{GenericName: genericName}
	return p, nil
}

// PredictImage runs an image prediction; typedName is optional.
func (f *Flow) PredictImage(ctx context.Context, img disposal.ImageFile, typedName string) (*normalize.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()

	raw, err := f.engine.PredictImage(ctx, img.Data, img.MIME)
	if err != nil {
		return nil, &UserError{Message: predict.MessageOf(err, msgPredictFailed), Err: err}
	}
	p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelImage, TypedName: typedName})
	if p == nil {
		return nil, &UserError{Message: msgPredictFailed, Err: errors.New("empty prediction")}
	}
	f.state, f.pred = Predicted, p
	f.input = disposal.FormInputs{GenericName: typedName}
	f.image = &img
	return p, nil
}

// SaveDisposal persists the prediction as a disposal record and sends the user to history.
// On failure the prediction is kept so the user can retry.
func (f *Flow) SaveDisposal(ctx context.Context) (*backend.Disposal, Nav, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case NoPrediction:
		return nil, NavStay, ErrNoPrediction
	case DisposalSaved, PickupRequested:
		return f.saved, NavStay, ErrAlreadySaved
	}
	d, err := f.persist(ctx)
	if err != nil {
		return nil, NavStay, err
	}
	return d, NavHistory, nil
}

// RequestPickup saves the disposal (or reuses the saved one) and returns the
// draft the pickup form is opened with.
func (f *Flow) RequestPickup(ctx context.Context) (PickupDraft, Nav, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case NoPrediction:
		return PickupDraft{}, NavStay, ErrNoPrediction
	case PickupRequested:
		return PickupDraft{}, NavStay, ErrPickupPending
	case Predicted:
		if _, err := f.persist(ctx); err != nil {
			return PickupDraft{}, NavStay, err
		}
	}
	return f.draft(), NavPickupForm, nil
}

func (f *Flow) draft() PickupDraft {
	d := PickupDraft{
		DisposalID:  f.saved.ID,
		GenericName: f.saved.GenericName,
		RiskLevel:   f.saved.RiskLevel,
		Category:    f.saved.PredictedCategory,
	}
	if d.GenericName == "" {
		d.GenericName = f.pred.IdentifiedMedicine
	}
	if d.RiskLevel == "" {
		d.RiskLevel = string(f.pred.RiskLevel)
	}
	if d.Category == "" {
		d.Category = f.pred.Category.Value
	}
	return d
}

func (f *Flow) persist(ctx context.Context) (*backend.Disposal, error) {
	in := f.input
	in.Reason = disposal.ReasonUserInitiated
	payload := disposal.BuildDisposalPayload(f.pred, in, f.image)
	if payload == nil {
		return nil, ErrNoPrediction
	}
	d, err := f.api.CreateDisposal(ctx, payload)
	if err != nil {
		return nil, &UserError{Message: backend.MessageOf(err, msgSaveFailed), Err: err}
	}
	if d == nil || d.ID == "" {
		return nil, &UserError{Message: msgSaveFailed, Err: errNoDisposalID}
	}
	if d.GenericName == "" && payload.GenericName != nil {
		d.GenericName = *payload.GenericName
	}
	if d.RiskLevel == "" {
		d.RiskLevel = payload.RiskLevel
	}
	f.state, f.saved = DisposalSaved, d
	return d, nil
}

// SubmitPickup creates the pickup request, then tries to link it back to the
// disposal. A linkage failure is logged and never returned: the pickup exists
// and the disposal may stay in pending_review.
func (f *Flow) SubmitPickup(ctx context.Context, draft PickupDraft, form PickupForm) (*backend.Pickup, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.api.CreatePickup(ctx, backend.PickupRequest{
		DisposalID:    draft.DisposalID,
		CHWID:         form.CHWID,
		MedicineName:  draft.GenericName,
		RiskLevel:     draft.RiskLevel,
		Reason:        strings.TrimSpace(form.Reason),
		Location:      strings.TrimSpace(form.Location),
		PreferredTime: strings.TrimSpace(form.PreferredTime),
		Consent:       form.Consent,
	})
	if err != nil {
		return nil, &UserError{Message: backend.MessageOf(err, msgPickupFailed), Err: err}
	}

	if draft.DisposalID != "" {
		_, lerr := f.api.UpdateDisposal(ctx, draft.DisposalID, backend.DisposalUpdate{
			Status:          backend.DisposalPickupRequested,
			PickupRequestID: p.ID,
		})
		if lerr != nil {
			f.log.Warn("disposal linkage failed",
				"disposal_id", draft.DisposalID, "pickup_id", p.ID, "err", lerr)
		}
	}

	if f.saved != nil && f.saved.ID == draft.DisposalID {
		f.state = PickupRequested
		f.pickup = p
	}
	return p, nil
}
