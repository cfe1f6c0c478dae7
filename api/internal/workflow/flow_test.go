package workflow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
)

type fakeEngine struct {
	textFn  func(name string) (*normalize.Object, error)
	imageFn func(img []byte, mime string) (*normalize.Object, error)
}

func (f *fakeEngine) Name() string     { return "fake" }
func (f *fakeEngine) GetModel() string { return "m" }
func (f *fakeEngine) PredictText(_ context.Context, name string) (*normalize.Object, error) {
	return f.textFn(name)
}
func (f *fakeEngine) PredictImage(_ context.Context, img []byte, mime string) (*normalize.Object, error) {
	return f.imageFn(img, mime)
}

type fakeBackend struct {
	createDisposal func(p *disposal.Payload) (*backend.Disposal, error)
	createPickup   func(req backend.PickupRequest) (*backend.Pickup, error)
	updateDisposal func(id backend.ID, upd backend.DisposalUpdate) (*backend.Disposal, error)

	disposals []*disposal.Payload
	pickups   []backend.PickupRequest
	updates   []backend.DisposalUpdate
}

func (b *fakeBackend) CreateDisposal(_ context.Context, p *disposal.Payload) (*backend.Disposal, error) {
	b.disposals = append(b.disposals, p)
	if b.createDisposal != nil {
		return b.createDisposal(p)
	}
	return &backend.Disposal{ID: "d1", Status: backend.DisposalPendingReview}, nil
}

func (b *fakeBackend) CreatePickup(_ context.Context, req backend.PickupRequest) (*backend.Pickup, error) {
	b.pickups = append(b.pickups, req)
	if b.createPickup != nil {
		return b.createPickup(req)
	}
	return &backend.Pickup{ID: "p1", DisposalID: req.DisposalID, Status: backend.PickupPending}, nil
}

func (b *fakeBackend) UpdateDisposal(_ context.Context, id backend.ID, upd backend.DisposalUpdate) (*backend.Disposal, error) {
	b.updates = append(b.updates, upd)
	if b.updateDisposal != nil {
		return b.updateDisposal(id, upd)
	}
	return &backend.Disposal{ID: id, Status: upd.Status, PickupRequestID: upd.PickupRequestID}, nil
}

func object(t *testing.T, js string) *normalize.Object {
	t.Helper()
	o, err := normalize.ParseObject([]byte(js))
	require.NoError(t, err)
	return o
}

func highRiskEngine(t *testing.T) *fakeEngine {
	return &fakeEngine{textFn: func(string) (*normalize.Object, error) {
		return object(t, `{
			"similar_generic_name": "Morphine",
			"disposal_category": [{"value":"category6","confidence":0.92}],
			"method_of_disposal": "Return to pharmacy take-back",
			"risk_level": "high"
		}`), nil
	}}
}

var fullForm = PickupForm{
	CHWID:         "chw-7",
	Reason:        "Expired controlled medicine",
	Location:      "Kicukiro, KK 15 Ave",
	PreferredTime: "2026-10-18 10:00",
	Consent:       true,
}

func TestPredictText_Success(t *testing.T) {
	f := New(highRiskEngine(t), &fakeBackend{}, nil)
	p, err := f.PredictText(context.Background(), "morfine")
	require.NoError(t, err)
	assert.Equal(t, Predicted, f.State())
	assert.Equal(t, "Morphine", p.IdentifiedMedicine)
	assert.Equal(t, normalize.RiskHigh, p.RiskLevel)
}

func TestPredictFailure_ResetsState(t *testing.T) {
	calls := 0
	eng := highRiskEngine(t)
	ok := eng.textFn
	eng.textFn = func(name string) (*normalize.Object, error) {
		calls++
		if calls == 1 {
			return ok(name)
		}
		return nil, &predict.FailedError{Engine: "fake", Message: "Medicine not recognised"}
	}
	f := New(eng, &fakeBackend{}, nil)

	_, err := f.PredictText(context.Background(), "morphine")
	require.NoError(t, err)

	_, err = f.PredictText(context.Background(), "zzz")
	var ue *UserError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Medicine not recognised", ue.Message)
	assert.Equal(t, NoPrediction, f.State())
	assert.Nil(t, f.Prediction())

	eng.textFn = func(string) (*normalize.Object, error) { return nil, errors.New("dial tcp: refused") }
	_, err = f.PredictText(context.Background(), "x")
	assert.EqualError(t, err, msgPredictFailed)
}

func TestPredictImage_CarriesImage(t *testing.T) {
	eng := &fakeEngine{imageFn: func(img []byte, mime string) (*normalize.Object, error) {
		assert.Equal(t, "image/png", mime)
		return object(t, `{"disposal_category":"category1","ocr_fields":{"medicine_name":"Paracetamol"}}`), nil
	}}
	be := &fakeBackend{}
	f := New(eng, be, nil)

	p, err := f.PredictImage(context.Background(), disposal.ImageFile{Name: "box.png", MIME: "image/png", Data: []byte{1, 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, normalize.ChannelImage, p.Channel)

	_, nav, err := f.SaveDisposal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NavHistory, nav)
	require.Len(t, be.disposals, 1)
	assert.True(t, be.disposals[0].Multipart())
	assert.Equal(t, "image", be.disposals[0].InputChannel)
}

func TestSaveDisposal(t *testing.T) {
	be := &fakeBackend{}
	f := New(highRiskEngine(t), be, nil)

	_, _, err := f.SaveDisposal(context.Background())
	assert.ErrorIs(t, err, ErrNoPrediction)

	_, err = f.PredictText(context.Background(), "morfine")
	require.NoError(t, err)

	d, nav, err := f.SaveDisposal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NavHistory, nav)
	assert.Equal(t, backend.ID("d1"), d.ID)
	assert.Equal(t, DisposalSaved, f.State())

	require.Len(t, be.disposals, 1)
	sent := be.disposals[0]
	assert.Equal(t, disposal.ReasonUserInitiated, sent.Reason)
	assert.Equal(t, "HIGH", sent.RiskLevel)
	require.NotNil(t, sent.GenericName)
	assert.Equal(t, "Morphine", *sent.GenericName)

	_, _, err = f.SaveDisposal(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySaved)
	assert.Len(t, be.disposals, 1)
}

func TestSaveDisposal_FailureKeepsPrediction(t *testing.T) {
	be := &fakeBackend{createDisposal: func(*disposal.Payload) (*backend.Disposal, error) {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Message: "genericName is required"}
	}}
	f := New(highRiskEngine(t), be, nil)
	_, err := f.PredictText(context.Background(), "morfine")
	require.NoError(t, err)

	_, nav, err := f.SaveDisposal(context.Background())
	assert.EqualError(t, err, "genericName is required")
	assert.Equal(t, NavStay, nav)
	assert.Equal(t, Predicted, f.State())
	assert.NotNil(t, f.Prediction())

	be.createDisposal = func(*disposal.Payload) (*backend.Disposal, error) { return nil, errors.New("timeout") }
	_, _, err = f.SaveDisposal(context.Background())
	assert.EqualError(t, err, msgSaveFailed)

	be.createDisposal = nil
	_, _, err = f.SaveDisposal(context.Background())
	require.NoError(t, err, "retry after a failure")
}

func TestSaveDisposal_RejectsMissingID(t *testing.T) {
	be := &fakeBackend{createDisposal: func(*disposal.Payload) (*backend.Disposal, error) {
		return &backend.Disposal{Status: backend.DisposalPendingReview}, nil
	}}
	f := New(highRiskEngine(t), be, nil)
	ctx := context.Background()
	_, err := f.PredictText(ctx, "morfine")
	require.NoError(t, err)

	_, _, err = f.SaveDisposal(ctx)
	assert.EqualError(t, err, msgSaveFailed)
	assert.Equal(t, Predicted, f.State())

	_, _, err = f.RequestPickup(ctx)
	assert.EqualError(t, err, msgSaveFailed)
	assert.Equal(t, Predicted, f.State())
	assert.Empty(t, be.pickups)
}

func TestHighRiskPickupScenario(t *testing.T) {
	be := &fakeBackend{}
	f := New(highRiskEngine(t), be, nil)
	ctx := context.Background()

	p, err := f.PredictText(ctx, "morfine")
	require.NoError(t, err)
	assert.Contains(t, disposal.CallToAction(p), "community health worker")

	draft, nav, err := f.RequestPickup(ctx)
	require.NoError(t, err)
	assert.Equal(t, NavPickupForm, nav)
	assert.Equal(t, PickupDraft{DisposalID: "d1", GenericName: "Morphine", RiskLevel: "HIGH", Category: "Category 6"}, draft)

	again, _, err := f.RequestPickup(ctx)
	require.NoError(t, err)
	assert.Equal(t, draft, again)
	assert.Len(t, be.disposals, 1, "the saved disposal is reused")

	pk, err := f.SubmitPickup(ctx, draft, fullForm)
	require.NoError(t, err)
	assert.Equal(t, backend.ID("p1"), pk.ID)
	assert.Equal(t, PickupRequested, f.State())

	require.Len(t, be.pickups, 1)
	assert.Equal(t, backend.ID("d1"), be.pickups[0].DisposalID)
	assert.Equal(t, "Morphine", be.pickups[0].MedicineName)
	require.Len(t, be.updates, 1)
	assert.Equal(t, backend.DisposalUpdate{Status: backend.DisposalPickupRequested, PickupRequestID: "p1"}, be.updates[0])

	_, _, err = f.RequestPickup(ctx)
	assert.ErrorIs(t, err, ErrPickupPending)
}

func TestSubmitPickup_LinkageFailureStillSucceeds(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	be := &fakeBackend{updateDisposal: func(backend.ID, backend.DisposalUpdate) (*backend.Disposal, error) {
		return nil, &backend.APIError{Status: http.StatusInternalServerError, Message: "boom"}
	}}
	f := New(highRiskEngine(t), be, log)
	ctx := context.Background()

	_, err := f.PredictText(ctx, "morfine")
	require.NoError(t, err)
	draft, _, err := f.RequestPickup(ctx)
	require.NoError(t, err)

	pk, err := f.SubmitPickup(ctx, draft, fullForm)
	require.NoError(t, err)
	assert.NotNil(t, pk)
	assert.Equal(t, PickupRequested, f.State())
	assert.Contains(t, buf.String(), "disposal linkage failed")
}

func TestSubmitPickup_CreateFailure(t *testing.T) {
	be := &fakeBackend{createPickup: func(backend.PickupRequest) (*backend.Pickup, error) {
		return nil, &backend.APIError{Status: http.StatusConflict, Message: "CHW unavailable"}
	}}
	f := New(highRiskEngine(t), be, nil)
	ctx := context.Background()
	_, err := f.PredictText(ctx, "morfine")
	require.NoError(t, err)
	draft, _, err := f.RequestPickup(ctx)
	require.NoError(t, err)

	_, err = f.SubmitPickup(ctx, draft, fullForm)
	assert.EqualError(t, err, "CHW unavailable")
	assert.Empty(t, be.updates)
	assert.Equal(t, DisposalSaved, f.State())
}

func TestSubmitPickup_StandaloneDraft(t *testing.T) {
	be := &fakeBackend{}
	f := New(highRiskEngine(t), be, nil)

	_, err := f.SubmitPickup(context.Background(), PickupDraft{GenericName: "Insulin pens"}, fullForm)
	require.NoError(t, err)
	assert.Empty(t, be.updates, "no disposal to link")
	assert.Equal(t, NoPrediction, f.State())
}

func TestPickupFormValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*PickupForm)
		msg  string
	}{
		{"chw", func(f *PickupForm) { f.CHWID = "" }, "Please choose a community health worker."},
		{"reason", func(f *PickupForm) { f.Reason = "  " }, "Please give a reason for the pickup."},
		{"location", func(f *PickupForm) { f.Location = "" }, "Please enter the pickup location."},
		{"time", func(f *PickupForm) { f.PreferredTime = "" }, "Please choose a preferred pickup time."},
		{"consent", func(f *PickupForm) { f.Consent = false }, "Please confirm your consent to the pickup."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := fullForm
			tt.edit(&form)
			assert.EqualError(t, form.Validate(), tt.msg)
		})
	}
	assert.NoError(t, fullForm.Validate())
}
