package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,AssetStore,Calculator,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"zakat/internal/audit"
	"zakat/internal/calendar"
	"zakat/internal/hawl"
	"zakat/internal/methodology"
	"zakat/internal/money"
	"zakat/internal/pricing"
	"zakat/internal/record/metrics"
	"zakat/internal/record/models"
	"zakat/internal/record/service/mocks"
	"zakat/internal/record/store"
	"zakat/internal/wealth"
	"zakat/internal/zakat"
	id "zakat/pkg/domain"
	dErrors "zakat/pkg/domain-errors"
	"zakat/pkg/platform/sentinel"
	"zakat/pkg/requestcontext"
)

// =============================================================================
// Record Service Test Suite
// =============================================================================
// Runs the service over the in-memory store and the real engine with static
// prices (gold 65/g, silver 0.85/g). Assets and the audit publisher are mocked
// so each test states exactly what it feeds in and what leaves the service.

type RecordServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	assets    *mocks.MockAssetStore
	publisher *mocks.MockAuditPublisher
	store     *store.InMemory
	metrics   *metrics.Metrics
	service   *Service
	user      id.UserID
	day0      time.Time
}

func TestRecordServiceSuite(t *testing.T) {
	suite.Run(t, new(RecordServiceSuite))
}

func (s *RecordServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.assets = mocks.NewMockAssetStore(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.store = store.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())

	prices := pricing.NewStaticSource("USD", decimal.RequireFromString("65"), decimal.RequireFromString("0.85"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s.store, s.assets, zakat.New(prices),
		WithLogger(logger),
		WithAuditPublisher(s.publisher),
		WithMetrics(s.metrics),
		WithTx(s.store),
	)
	s.Require().NoError(err)
	s.service = svc
	s.user = id.UserID(id.NewRecordID())
	s.day0 = time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)
}

func (s *RecordServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RecordServiceSuite) ctxAt(t time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), t)
	return requestcontext.WithRequestID(ctx, "req-1")
}

func (s *RecordServiceSuite) cash(amount string) []wealth.Asset {
	return []wealth.Asset{{
		ID:            id.AssetID(id.NewRecordID()),
		Category:      wealth.CategoryCash,
		Value:         decimal.RequireFromString(amount),
		Currency:      "USD",
		ZakatEligible: true,
	}}
}

func (s *RecordServiceSuite) create(m methodology.Name) *models.Record {
	r, err := s.service.CreateRecord(s.ctxAt(s.day0), CreateRequest{
		UserID:      s.user,
		Methodology: m,
		Currency:    "USD",
	})
	s.Require().NoError(err)
	return r
}

func (s *RecordServiceSuite) observe(r *models.Record, at time.Time, amount string) *HawlOutcome {
	s.assets.EXPECT().ListEligibleAssets(gomock.Any(), s.user).Return(s.cash(amount), nil)
	out, err := s.service.EvaluateHawl(s.ctxAt(at), r.ID, calendar.MustFromTime(at))
	s.Require().NoError(err)
	return out
}

func (s *RecordServiceSuite) trail(r *models.Record) []audit.Event {
	events, err := s.service.GetAuditTrail(s.ctxAt(s.day0), r.ID, audit.Filter{})
	s.Require().NoError(err)
	return events
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *RecordServiceSuite) TestNew() {
	calc := mocks.NewMockCalculator(s.ctrl)
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.assets, calc)
		s.ErrorContains(err, "record store is required")
	})
	s.Run("nil asset store returns error", func() {
		_, err := New(s.store, nil, calc)
		s.ErrorContains(err, "asset store is required")
	})
	s.Run("nil calculator returns error", func() {
		_, err := New(s.store, s.assets, nil)
		s.ErrorContains(err, "calculator is required")
	})
}

// =============================================================================
// Creation
// =============================================================================

func (s *RecordServiceSuite) TestCreateRecord() {
	r := s.create(methodology.Standard)
	s.Equal(models.StatusDraft, r.Status)
	s.Equal(int64(1), r.Version)
	s.Equal(hawl.StatusNone, r.Hawl.Status)
	s.Equal(calendar.TypeLunar, r.CalendarType)

	events := s.trail(r)
	s.Require().Len(events, 1)
	s.Equal(audit.EventCreated, events[0].Type)
	s.Equal(s.user, events[0].ActorID)
	s.Equal("req-1", events[0].RequestID)

	s.Run("second open record is a conflict", func() {
		_, err := s.service.CreateRecord(s.ctxAt(s.day0), CreateRequest{UserID: s.user, Methodology: methodology.Hanafi, Currency: "USD"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("current record is the open one", func() {
		current, err := s.service.CurrentRecord(s.ctxAt(s.day0), s.user)
		s.Require().NoError(err)
		s.Equal(r.ID, current.ID)
	})

	s.Run("invalid input is rejected before storage", func() {
		_, err := s.service.CreateRecord(s.ctxAt(s.day0), CreateRequest{UserID: id.UserID(id.NewRecordID()), Methodology: "maliki", Currency: "USD"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedMethodology))
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.RecordsCreated))
}

// =============================================================================
// Hawl evaluation
// =============================================================================

// TestHawlInterruption covers wealth dropping below Nisab mid-hawl.
func (s *RecordServiceSuite) TestHawlInterruption() {
	r := s.create(methodology.Shafii) // gold basis: 87.48g x 65 = 5686.20

	started := s.observe(r, s.day0, "6000")
	s.Equal(hawl.StatusActive, started.State.Status)
	s.Require().NotNil(started.State.CompletionDate)
	s.Equal("2026-10-16", started.State.CompletionDate.Gregorian.String())
	s.Require().Len(started.Events, 1)
	s.Equal(audit.EventNisabAchieved, started.Events[0].Type)

	mid := s.day0.AddDate(0, 0, 30)
	dropped := s.observe(r, mid, "4800")
	s.Equal(hawl.StatusNone, dropped.State.Status)
	s.Nil(dropped.State.StartDate)
	s.Nil(dropped.State.CompletionDate)
	s.Nil(dropped.State.DaysRemaining)
	s.Equal([]hawl.Transition{
		{From: hawl.StatusActive, To: hawl.StatusInterrupted},
		{From: hawl.StatusInterrupted, To: hawl.StatusNone},
	}, dropped.Transitions)

	stored, err := s.service.GetRecord(s.ctxAt(mid), r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, stored.Status, "interruption never changes record status")
	s.Equal(int64(3), stored.Version)

	interrupted, err := s.service.GetAuditTrail(s.ctxAt(mid), r.ID, audit.Filter{EventTypes: []audit.EventType{audit.EventHawlInterrupted}})
	s.Require().NoError(err)
	s.Require().Len(interrupted, 1)
	s.Equal("6000.00", interrupted[0].Details["previous_wealth"])
	s.Equal("4800.00", interrupted[0].Details["current_wealth"])
	s.Equal("5686.20", interrupted[0].Details["nisab"])

	s.Equal(1.0, testutil.ToFloat64(s.metrics.HawlEvents.WithLabelValues("HAWL_INTERRUPTED")))
	s.NoError(s.service.VerifyAuditTrail(s.ctxAt(mid), r.ID))
}

// TestHawlCompletionAndCleanFinalize runs a full lunar year then finalizes.
func (s *RecordServiceSuite) TestHawlCompletionAndCleanFinalize() {
	r := s.create(methodology.Shafii)
	s.observe(r, s.day0, "6000")

	day254 := s.day0.AddDate(0, 0, 254)
	partway := s.observe(r, day254, "6100")
	s.Equal(hawl.StatusActive, partway.State.Status)
	s.Require().NotNil(partway.State.DaysRemaining)
	s.Equal(100, *partway.State.DaysRemaining)
	s.Empty(partway.Events)

	day354 := s.day0.AddDate(0, 0, 354)
	done := s.observe(r, day354, "6200")
	s.Equal(hawl.StatusCompleted, done.State.Status)
	s.Require().NotNil(done.Result)
	s.True(done.Result.ZakatDue.Equal(decimal.RequireFromString("155.00")))

	res, err := s.service.Transition(s.ctxAt(day354), r.ID, ActionFinalize, Payload{})
	s.Require().NoError(err)
	s.True(res.HawlComplete)
	s.Equal(models.StatusFinalized, res.Record.Status)
	s.Require().Len(res.Events, 1)
	s.Equal(audit.EventFinalized, res.Events[0].Type)
	s.Equal("true", res.Events[0].Details["hawl_complete"])
	s.NotEmpty(res.Events[0].Before)
	s.NotEmpty(res.Events[0].After)

	s.Run("finalized record is read-only for hawl evaluation", func() {
		out, err := s.service.EvaluateHawl(s.ctxAt(day354.AddDate(0, 0, 5)), r.ID, calendar.Date{})
		s.Require().NoError(err)
		s.False(out.Persisted)
		s.Equal(hawl.StatusCompleted, out.State.Status)
		s.True(out.Result.ZakatDue.Equal(decimal.RequireFromString("155.00")))
	})
}

// TestNoCountableAssetsObservesZero verifies an empty portfolio is a zero observation.
func (s *RecordServiceSuite) TestNoCountableAssetsObservesZero() {
	r := s.create(methodology.Standard)
	s.assets.EXPECT().ListEligibleAssets(gomock.Any(), s.user).Return([]wealth.Asset{
		{Category: wealth.CategoryCash, Value: decimal.RequireFromString("9000"), Currency: "USD", ZakatEligible: false},
	}, nil)

	out, err := s.service.EvaluateHawl(s.ctxAt(s.day0), r.ID, calendar.MustFromTime(s.day0))
	s.Require().NoError(err)
	s.Equal(hawl.StatusNone, out.State.Status)
	s.True(out.Result.ZakatableWealth.IsZero())
	s.False(out.Result.MeetsNisab)
}

// =============================================================================
// Lifecycle transitions
// =============================================================================

// TestUnlockRequiresReason finalizes early, then exercises unlock and re-finalize.
func (s *RecordServiceSuite) TestUnlockRequiresReason() {
	r := s.create(methodology.Standard)
	s.observe(r, s.day0, "6000")

	finalized, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionFinalize, Payload{})
	s.Require().NoError(err)
	s.False(finalized.HawlComplete, "early finalization is allowed but flagged")
	before := len(s.trail(r))

	_, err = s.service.Transition(s.ctxAt(s.day0), r.ID, ActionUnlock, Payload{Reason: ""})
	s.Equal(dErrors.CodeUnlockReasonRequired, dErrors.CodeOf(err))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Len(s.trail(r), before, "a rejected unlock appends nothing")

	_, err = s.service.Transition(s.ctxAt(s.day0), r.ID, ActionUnlock, Payload{Reason: "bad \xff bytes"})
	s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	s.Len(s.trail(r), before)

	actor := id.UserID(id.NewRecordID())
	ctx := requestcontext.WithActorID(s.ctxAt(s.day0.Add(time.Hour)), actor)
	unlocked, err := s.service.Transition(ctx, r.ID, ActionUnlock, Payload{Reason: "correcting valuation"})
	s.Require().NoError(err)
	s.Equal(models.StatusUnlocked, unlocked.Record.Status)

	events := s.trail(r)
	s.Require().Len(events, before+1)
	s.Equal(audit.EventUnlocked, events[0].Type)
	s.Equal("correcting valuation", events[0].UnlockReason)
	s.Equal(actor, events[0].ActorID)
	s.True(events[0].SecurityRelevant())

	refinalized, err := s.service.Transition(s.ctxAt(s.day0.Add(2*time.Hour)), r.ID, ActionFinalize, Payload{})
	s.Require().NoError(err)
	s.Equal(audit.EventRefinalized, refinalized.Events[0].Type)

	s.NoError(s.service.VerifyAuditTrail(s.ctxAt(s.day0), r.ID))
}

func (s *RecordServiceSuite) TestEditAndDeleteGuards() {
	r := s.create(methodology.Standard)
	s.observe(r, s.day0, "6000")

	s.Run("edit on a draft records a diff and clears the stale result", func() {
		m := methodology.Hanafi
		res, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionEdit, Payload{Changes: models.Changes{Methodology: &m}})
		s.Require().NoError(err)
		s.Nil(res.Record.Result)
		s.Require().NotNil(res.Events[0].Changes)
		s.Contains(res.Events[0].Changes.FieldsChanged, "methodology")
		s.Equal("standard", res.Events[0].Changes.OldValues["methodology"])
	})

	s.Run("finalize without a calculation is rejected", func() {
		_, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionFinalize, Payload{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.observe(r, s.day0.AddDate(0, 0, 1), "6000")
	_, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionFinalize, Payload{})
	s.Require().NoError(err)

	s.Run("edit on a finalized record is locked", func() {
		notes := "late note"
		_, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionEdit, Payload{Changes: models.Changes{UserNotes: &notes}})
		s.Equal(dErrors.CodeRecordLocked, dErrors.CodeOf(err))
	})

	s.Run("delete on a finalized record is not allowed and changes nothing", func() {
		before, err := s.service.GetRecord(s.ctxAt(s.day0), r.ID)
		s.Require().NoError(err)
		_, err = s.service.Transition(s.ctxAt(s.day0), r.ID, ActionDelete, Payload{})
		s.Equal(dErrors.CodeDeleteNotAllowed, dErrors.CodeOf(err))
		after, err := s.service.GetRecord(s.ctxAt(s.day0), r.ID)
		s.Require().NoError(err)
		s.Equal(before.Version, after.Version)
		s.Equal(models.StatusFinalized, after.Status)
	})

	s.Run("stale expected version is a conflict", func() {
		_, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionUnlock, Payload{Reason: "x", ExpectedVersion: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown action", func() {
		_, err := s.service.Transition(s.ctxAt(s.day0), r.ID, "ARCHIVE", Payload{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("DELETE", "DELETE_NOT_ALLOWED")))
}

func (s *RecordServiceSuite) TestDeleteDraftKeepsTrail() {
	r := s.create(methodology.Standard)

	res, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionDelete, Payload{})
	s.Require().NoError(err)
	s.True(res.Deleted)

	_, err = s.service.GetRecord(s.ctxAt(s.day0), r.ID)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	events := s.trail(r)
	s.Require().Len(events, 1)
	s.Equal(audit.EventCreated, events[0].Type)

	_, err = s.service.GetAuditTrail(s.ctxAt(s.day0), id.NewRecordID(), audit.Filter{})
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	s.Run("a new record can be opened after deletion", func() {
		_, err := s.service.CreateRecord(s.ctxAt(s.day0), CreateRequest{UserID: s.user, Methodology: methodology.Standard, Currency: "USD"})
		s.NoError(err)
	})
}

func (s *RecordServiceSuite) TestAuditTrailByDate() {
	r := s.create(methodology.Shafii)
	s.observe(r, s.day0.AddDate(0, 0, 1), "6000")
	s.observe(r, s.day0.AddDate(0, 0, 2), "100")

	groups, err := s.service.GetAuditTrailByDate(s.ctxAt(s.day0), r.ID, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(groups, 3)
	s.Equal("2025-10-29", groups[0].Date)
	s.Equal("2025-10-27", groups[2].Date)

	_, err = s.service.GetAuditTrail(s.ctxAt(s.day0), r.ID, audit.Filter{EventTypes: []audit.EventType{"BOGUS"}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RecordServiceSuite) TestListRecords() {
	r := s.create(methodology.Standard)
	s.observe(r, s.day0, "6000")
	_, err := s.service.Transition(s.ctxAt(s.day0), r.ID, ActionFinalize, Payload{})
	s.Require().NoError(err)

	later := s.day0.AddDate(1, 0, 0)
	_, err = s.service.CreateRecord(s.ctxAt(later), CreateRequest{UserID: s.user, Methodology: methodology.Standard, Currency: "USD"})
	s.Require().NoError(err)

	all, err := s.service.ListRecords(s.ctxAt(later), s.user)
	s.Require().NoError(err)
	s.Len(all, 2)

	finalized, err := s.service.ListRecords(s.ctxAt(later), s.user, models.StatusFinalized)
	s.Require().NoError(err)
	s.Require().Len(finalized, 1)
	s.Equal(r.ID, finalized[0].ID)

	_, err = s.service.ListRecords(s.ctxAt(later), s.user, "ARCHIVED")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RecordServiceSuite) TestComputeZakat() {
	wealthAmt := decimal.RequireFromString("5686.20")
	res, err := s.service.ComputeZakat(s.ctxAt(s.day0), zakat.Request{
		CalculationDate: calendar.MustFromTime(s.day0),
		CalendarType:    calendar.TypeLunar,
		Methodology:     methodology.Shafii,
		Currency:        money.Currency("USD"),
		Wealth:          &wealthAmt,
	})
	s.Require().NoError(err)
	s.True(res.MeetsNisab)
	s.True(res.ZakatDue.Equal(decimal.RequireFromString("142.16")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Calculations.WithLabelValues("shafii", "ok")))
}

func (s *RecordServiceSuite) TestOpenRecord() {
	req := CreateRequest{UserID: s.user, Methodology: methodology.Hanafi, Currency: "USD"}

	s.Run("failed first evaluation leaves no record behind", func() {
		s.assets.EXPECT().ListEligibleAssets(gomock.Any(), s.user).Return(nil, sentinel.ErrUnavailable)

		_, err := s.service.OpenRecord(s.ctxAt(s.day0), req, calendar.MustFromTime(s.day0))
		s.Equal(dErrors.CodeSourceUnavailable, dErrors.CodeOf(err))

		_, err = s.service.CurrentRecord(s.ctxAt(s.day0), s.user)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(0.0, testutil.ToFloat64(s.metrics.RecordsCreated))
	})

	s.Run("create and first evaluation commit together", func() {
		s.assets.EXPECT().ListEligibleAssets(gomock.Any(), s.user).Return(s.cash("6000"), nil)

		out, err := s.service.OpenRecord(s.ctxAt(s.day0), req, calendar.MustFromTime(s.day0))
		s.Require().NoError(err)
		s.Equal(hawl.StatusActive, out.State.Status)
		s.Equal(int64(2), out.Record.Version)

		current, err := s.service.CurrentRecord(s.ctxAt(s.day0), s.user)
		s.Require().NoError(err)
		s.Equal(out.Record.ID, current.ID)
		s.Equal(hawl.StatusActive, current.Hawl.Status)

		trail := s.trail(current)
		s.Require().Len(trail, 2)
		s.Equal(audit.EventNisabAchieved, trail[0].Type)
		s.Equal(audit.EventCreated, trail[1].Type)
		s.NoError(s.service.VerifyAuditTrail(s.ctxAt(s.day0), current.ID))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.RecordsCreated))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.HawlEvents.WithLabelValues("NISAB_ACHIEVED")))
	})
}

// =============================================================================
// Store failures (mocked store)
// =============================================================================

func TestTransition_LostRaceLeavesNoTrace(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	assets := mocks.NewMockAssetStore(ctrl)
	calc := mocks.NewMockCalculator(ctrl)
	publisher := mocks.NewMockAuditPublisher(ctrl)

	svc, err := New(st, assets, calc, WithAuditPublisher(publisher))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	r, err := models.NewRecord(id.NewRecordID(), id.UserID(id.NewRecordID()), methodology.Standard, nil, calendar.TypeLunar, "USD", "", now)
	if err != nil {
		t.Fatal(err)
	}
	r.Version = 4
	r.Result = &zakat.Result{ZakatDue: decimal.RequireFromString("10")}

	st.EXPECT().FindByID(gomock.Any(), r.ID).Return(r, nil)
	st.EXPECT().Save(gomock.Any(), gomock.Any(), int64(4), gomock.Any()).
		DoAndReturn(func(_ context.Context, saved *models.Record, _ int64, events []audit.Event) ([]audit.Event, error) {
			if len(events) != 1 || events[0].Type != audit.EventFinalized {
				t.Errorf("unexpected events %+v", events)
			}
			return nil, sentinel.ErrConflict
		})
	// no Publish expectation: a failed commit must publish nothing

	_, err = svc.Transition(requestcontext.WithTime(context.Background(), now), r.ID, ActionFinalize, Payload{})
	if !dErrors.HasCode(err, dErrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestEvaluateHawl_AssetStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	assets := mocks.NewMockAssetStore(ctrl)
	calc := mocks.NewMockCalculator(ctrl)

	svc, err := New(st, assets, calc)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	r, _ := models.NewRecord(id.NewRecordID(), id.UserID(id.NewRecordID()), methodology.Standard, nil, calendar.TypeLunar, "USD", "", now)

	st.EXPECT().FindByID(gomock.Any(), r.ID).Return(r, nil)
	assets.EXPECT().ListEligibleAssets(gomock.Any(), r.UserID).Return(nil, sentinel.ErrUnavailable)

	_, err = svc.EvaluateHawl(requestcontext.WithTime(context.Background(), now), r.ID, calendar.Date{})
	if dErrors.CodeOf(err) != dErrors.CodeSourceUnavailable {
		t.Fatalf("expected SOURCE_UNAVAILABLE, got %v", err)
	}
}

func TestOpenRecord_PublishesOnceAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewInMemory()
	assets := mocks.NewMockAssetStore(ctrl)
	publisher := mocks.NewMockAuditPublisher(ctrl)
	prices := pricing.NewStaticSource("USD", decimal.RequireFromString("65"), decimal.RequireFromString("0.85"))

	svc, err := New(st, assets, zakat.New(prices), WithAuditPublisher(publisher), WithTx(st))
	if err != nil {
		t.Fatal(err)
	}
	user := id.UserID(id.NewRecordID())
	now := time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)
	cash := []wealth.Asset{{
		ID: id.AssetID(id.NewRecordID()), Category: wealth.CategoryCash,
		Value: decimal.RequireFromString("6000"), Currency: "USD", ZakatEligible: true,
	}}

	assets.EXPECT().ListEligibleAssets(gomock.Any(), user).Return(cash, nil)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, events ...audit.Event) error {
			if len(events) != 2 || events[0].Type != audit.EventCreated || events[1].Type != audit.EventNisabAchieved {
				t.Errorf("unexpected events %+v", events)
			}
			// published events are already visible outside the transaction
			stored, err := st.ListEvents(context.Background(), events[0].RecordID)
			if err != nil || len(stored) != 2 {
				t.Errorf("events published before commit: %d stored, err %v", len(stored), err)
			}
			return nil
		})

	_, err = svc.OpenRecord(requestcontext.WithTime(context.Background(), now),
		CreateRequest{UserID: user, Methodology: methodology.Hanafi, Currency: "USD"},
		calendar.MustFromTime(now))
	if err != nil {
		t.Fatal(err)
	}
}
