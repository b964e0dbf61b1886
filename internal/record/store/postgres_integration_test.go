//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"zakat/internal/audit"
	"zakat/internal/calendar"
	"zakat/internal/methodology"
	"zakat/internal/record/models"
	"zakat/internal/record/store"
	"zakat/internal/zakat"
	id "zakat/pkg/domain"
	"zakat/pkg/platform/fieldcrypt"
	"zakat/pkg/platform/sentinel"
	"zakat/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())

	key, err := fieldcrypt.GenerateKey()
	s.Require().NoError(err)
	cipher, err := fieldcrypt.NewFromBase64(key, "records")
	s.Require().NoError(err)

	s.store = store.NewPostgres(s.postgres.DB, cipher)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.now = time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "record_audit_events", "nisab_year_records"))
}

func (s *PostgresStoreSuite) newRecord(user id.UserID) *models.Record {
	r, err := models.NewRecord(id.NewRecordID(), user, methodology.Hanafi, nil, calendar.TypeLunar, "USD", "notes", s.now)
	s.Require().NoError(err)
	return r
}

func (s *PostgresStoreSuite) event(r *models.Record, t audit.EventType) audit.Event {
	return audit.Event{
		ID: id.NewEventID(), RecordID: r.ID, UserID: r.UserID, ActorID: r.UserID,
		Type: t, Timestamp: s.now.Add(123 * time.Nanosecond), After: r.Snapshot(),
	}
}

func newUser() id.UserID { return id.UserID(id.NewRecordID()) }

// TestRoundTripAndChain verifies payloads decrypt intact and the chain verifies after storage.
func (s *PostgresStoreSuite) TestRoundTripAndChain() {
	ctx := context.Background()
	r := s.newRecord(newUser())
	r.Result = &zakat.Result{ZakatDue: decimal.RequireFromString("142.16")}

	_, err := s.store.Create(ctx, r, []audit.Event{s.event(r, audit.EventCreated)})
	s.Require().NoError(err)

	r.UserNotes = "second pass"
	_, err = s.store.Save(ctx, r, 1, []audit.Event{s.event(r, audit.EventEdited)})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), found.Version)
	s.Equal("second pass", found.UserNotes)
	s.Require().NotNil(found.Result)
	s.True(found.Result.ZakatDue.Equal(decimal.RequireFromString("142.16")))

	events, err := s.store.ListEvents(ctx, r.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.NoError(audit.Verify(events))
}

// TestConcurrentSavesOneWins verifies the version guard under contention.
func (s *PostgresStoreSuite) TestConcurrentSavesOneWins() {
	ctx := context.Background()
	r := s.newRecord(newUser())
	_, err := s.store.Create(ctx, r, nil)
	s.Require().NoError(err)

	const writers = 20
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := r.Clone()
			_, err := s.store.Save(ctx, c, 1, []audit.Event{s.event(c, audit.EventEdited)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())

	events, err := s.store.ListEvents(ctx, r.ID)
	s.Require().NoError(err)
	s.Len(events, 1)
	s.NoError(audit.Verify(events))
}

// TestOneOpenRecordPerUser verifies the partial unique index.
func (s *PostgresStoreSuite) TestOneOpenRecordPerUser() {
	ctx := context.Background()
	user := newUser()
	_, err := s.store.Create(ctx, s.newRecord(user), nil)
	s.Require().NoError(err)

	_, err = s.store.Create(ctx, s.newRecord(user), nil)
	s.ErrorIs(err, sentinel.ErrConflict)
}

// TestDeleteAndList verifies deletion guards and list filtering.
func (s *PostgresStoreSuite) TestDeleteAndList() {
	ctx := context.Background()
	user := newUser()
	first := s.newRecord(user)
	_, err := s.store.Create(ctx, first, []audit.Event{s.event(first, audit.EventCreated)})
	s.Require().NoError(err)
	first.Status = models.StatusFinalized
	_, err = s.store.Save(ctx, first, 1, nil)
	s.Require().NoError(err)

	s.now = s.now.Add(time.Hour)
	second := s.newRecord(user)
	_, err = s.store.Create(ctx, second, []audit.Event{s.event(second, audit.EventCreated)})
	s.Require().NoError(err)

	all, err := s.store.ListByUser(ctx, user)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.ID, all[0].ID)

	drafts, err := s.store.ListByUser(ctx, user, models.StatusDraft)
	s.Require().NoError(err)
	s.Require().Len(drafts, 1)
	s.Equal(second.ID, drafts[0].ID)

	s.ErrorIs(s.store.Delete(ctx, second.ID, 9), sentinel.ErrConflict)
	s.Require().NoError(s.store.Delete(ctx, second.ID, 1))
	s.ErrorIs(s.store.Delete(ctx, second.ID, 1), sentinel.ErrNotFound)

	events, err := s.store.ListEvents(ctx, second.ID)
	s.Require().NoError(err)
	s.Len(events, 1)
}

// TestRunInTx verifies store calls made with the transaction context commit or
// roll back together.
func (s *PostgresStoreSuite) TestRunInTx() {
	ctx := context.Background()

	s.Run("rollback leaves no record and no events", func() {
		user := newUser()
		r := s.newRecord(user)
		boom := errors.New("evaluation failed")

		err := s.store.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := s.store.Create(ctx, r, []audit.Event{s.event(r, audit.EventCreated)}); err != nil {
				return err
			}
			if _, err := s.store.Save(ctx, r, 1, []audit.Event{s.event(r, audit.EventNisabAchieved)}); err != nil {
				return err
			}
			// reads through the joined context see uncommitted writes
			found, err := s.store.FindByID(ctx, r.ID)
			if err != nil {
				return err
			}
			s.Equal(int64(2), found.Version)
			return boom
		})
		s.ErrorIs(err, boom)

		_, err = s.store.FindByID(ctx, r.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindOpenByUser(ctx, user)
		s.ErrorIs(err, sentinel.ErrNotFound)
		events, err := s.store.ListEvents(ctx, r.ID)
		s.Require().NoError(err)
		s.Empty(events)
	})

	s.Run("commit keeps both writes and a valid chain", func() {
		r := s.newRecord(newUser())
		err := s.store.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := s.store.Create(ctx, r, []audit.Event{s.event(r, audit.EventCreated)}); err != nil {
				return err
			}
			return s.store.RunInTx(ctx, func(ctx context.Context) error {
				_, err := s.store.Save(ctx, r, 1, []audit.Event{s.event(r, audit.EventNisabAchieved)})
				return err
			})
		})
		s.Require().NoError(err)

		found, err := s.store.FindByID(ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(int64(2), found.Version)
		events, err := s.store.ListEvents(ctx, r.ID)
		s.Require().NoError(err)
		s.Len(events, 2)
		s.NoError(audit.Verify(events))
	})
}
