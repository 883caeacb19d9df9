package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/infobusbot/internal/config"
	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/infobus"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRoutes struct {
	mu     sync.Mutex
	routes map[string][]infobus.Route // keyed by CityToID
	errFor map[string]error
}

func (f *fakeRoutes) GetRoutes(_ context.Context, q infobus.RouteQuery) (*infobus.RoutesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[q.CityToID]; err != nil {
		return nil, err
	}
	return &infobus.RoutesResponse{Status: true, Routes: f.routes[q.CityToID]}, nil
}

func (f *fakeRoutes) set(to string, routes ...infobus.Route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[to] = routes
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []*tgbot.SendMessageParams
	err    error
	onSend func()
}

func (f *fakeSender) SendMessage(_ context.Context, p *tgbot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, p)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeSender) take() []*tgbot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

// flakyStore fails the next GetMeta for failKey once.
type flakyStore struct {
	database.Store

	mu      sync.Mutex
	failKey string
}

func (s *flakyStore) failNext(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKey = key
}

func (s *flakyStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	fail := s.failKey != "" && s.failKey == key
	if fail {
		s.failKey = ""
	}
	s.mu.Unlock()
	if fail {
		return "", false, errors.New("database is locked")
	}
	return s.Store.GetMeta(ctx, key)
}

type checkerEnv struct {
	store  database.Store
	flaky  *flakyStore
	routes *fakeRoutes
	sender *fakeSender
	now    time.Time
	run    ScheduledTaskFunc
}

func newCheckerEnv(t *testing.T) *checkerEnv {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "subs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	cfg := config.Defaults()
	cfg.Checker.ReportEverySec = 1800
	cfg.Checker.Concurrency = 2

	env := &checkerEnv{
		store:  database.NewStore(db, discardLogger),
		routes: &fakeRoutes{routes: map[string][]infobus.Route{}, errFor: map[string]error{}},
		sender: &fakeSender{},
		now:    time.Unix(1756700000, 0),
	}
	env.flaky = &flakyStore{Store: env.store}
	env.run = newCheckerTask(TaskDeps{
		Logger: discardLogger,
		Store:  env.flaky,
		Config: cfg,
		Routes: env.routes,
		Sender: env.sender,
		Clock:  func() time.Time { return env.now },
	})
	return env
}

func (e *checkerEnv) subscribe(t *testing.T, userID int64, to string) int64 {
	t.Helper()
	id, err := e.store.AddSubscription(context.Background(), &database.Subscription{
		UserID: userID, CityFromID: "78", CityToID: to, FromName: "Vilnius", ToName: "Minsk",
		DateStr: "01.09.2025", DepFromHHMM: "20:00", DepToHHMM: "23:00",
	})
	require.NoError(t, err)
	return id
}

func route(dep, arr string) infobus.Route {
	return infobus.Route{ClearDepTime: infobus.FlexString(dep), ClearArrTime: infobus.FlexString(arr), Price: "25", Rating: "4.5"}
}

func (e *checkerEnv) meta(t *testing.T, key string) string {
	t.Helper()
	v, _, err := e.store.GetMeta(context.Background(), key)
	require.NoError(t, err)
	return v
}

func (e *checkerEnv) lastHash(t *testing.T, userID int64) string {
	t.Helper()
	subs, err := e.store.ListSubscriptions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	return subs[0].LastHash
}

func TestCheckerNoMatches(t *testing.T) {
	env := newCheckerEnv(t)
	env.subscribe(t, 10, "2")
	env.routes.set("2", route("0815", "1240"))

	require.NoError(t, env.run(context.Background()))

	assert.Empty(t, env.sender.take())
	assert.Equal(t, "", env.lastHash(t, 10))
	assert.Equal(t, "1", env.meta(t, database.MetaChecksCount))
	assert.Equal(t, "1756700000", env.meta(t, database.MetaLastCheckTS))
}

func TestCheckerChangeThenPeriodic(t *testing.T) {
	env := newCheckerEnv(t)
	id := env.subscribe(t, 10, "2")
	env.routes.set("2", route("0815", "1240"), route("2130", "0200"))

	// first match is a change
	require.NoError(t, env.run(context.Background()))
	sent := env.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(10), sent[0].ChatID)
	assert.Equal(t, "⚡️ Обновление по подписке #1:\n"+
		"01.09.2025 Vilnius(78) → Minsk(2)\n"+
		"диапазон отправления 20:00–23:00\n"+
		"\n"+
		"• 21:30 → 02:00  (€25, ⭐ 4.5)", sent[0].Text)
	assert.Equal(t, "21:30->02:00", env.lastHash(t, 10))
	assert.Equal(t, "1756700000", env.meta(t, database.LastReportKey(id)))

	// same results shortly after: nothing to say
	env.now = env.now.Add(10 * time.Minute)
	require.NoError(t, env.run(context.Background()))
	assert.Empty(t, env.sender.take())
	assert.Equal(t, "2", env.meta(t, database.MetaChecksCount))

	// report interval elapsed: periodic report with the same matches
	env.now = env.now.Add(30 * time.Minute)
	require.NoError(t, env.run(context.Background()))
	sent = env.sender.take()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "⏱ Периодический отчёт по подписке #1:")
	assert.Equal(t, "3", env.meta(t, database.MetaChecksCount))

	// a new departure is a change again
	env.now = env.now.Add(time.Minute)
	env.routes.set("2", route("2130", "0200"), route("2245", "0310"))
	require.NoError(t, env.run(context.Background()))
	sent = env.sender.take()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "⚡️ Обновление")
	assert.Contains(t, sent[0].Text, "• 22:45 → 03:10")
	assert.Equal(t, "21:30->02:00|22:45->03:10", env.lastHash(t, 10))
}

func TestCheckerKeepsHashWhenMatchesDisappear(t *testing.T) {
	env := newCheckerEnv(t)
	env.subscribe(t, 10, "2")
	env.routes.set("2", route("2130", "0200"))
	require.NoError(t, env.run(context.Background()))
	require.Len(t, env.sender.take(), 1)

	env.now = env.now.Add(2 * time.Hour)
	env.routes.set("2")
	require.NoError(t, env.run(context.Background()))

	assert.Empty(t, env.sender.take())
	assert.Equal(t, "21:30->02:00", env.lastHash(t, 10))
}

func TestCheckerContinuesAfterFailure(t *testing.T) {
	env := newCheckerEnv(t)
	env.subscribe(t, 10, "2")
	env.subscribe(t, 20, "3")
	env.routes.errFor["2"] = errors.New("infobus down")
	env.routes.set("3", route("2000", "2330"))

	require.NoError(t, env.run(context.Background()))

	sent := env.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(20), sent[0].ChatID)
	assert.Equal(t, "1", env.meta(t, database.MetaChecksCount))
}

func TestCheckerDoesNotRecordFailedSend(t *testing.T) {
	env := newCheckerEnv(t)
	id := env.subscribe(t, 10, "2")
	env.routes.set("2", route("2130", "0200"))
	env.sender.err = errors.New("blocked by user")

	require.NoError(t, env.run(context.Background()))

	assert.Equal(t, "", env.lastHash(t, 10))
	_, ok, err := env.store.GetMeta(context.Background(), database.LastReportKey(id))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerAbortsWhenChecksCountUnreadable(t *testing.T) {
	env := newCheckerEnv(t)
	env.subscribe(t, 10, "2")
	env.routes.set("2", route("2130", "0200"))
	require.NoError(t, env.store.SetMeta(context.Background(), database.MetaChecksCount, "41"))

	env.flaky.failNext(database.MetaChecksCount)
	assert.Error(t, env.run(context.Background()))
	assert.Empty(t, env.sender.take())
	assert.Equal(t, "41", env.meta(t, database.MetaChecksCount))

	require.NoError(t, env.run(context.Background()))
	assert.Len(t, env.sender.take(), 1)
	assert.Equal(t, "42", env.meta(t, database.MetaChecksCount))
}

func TestCheckerSkipsSubWhenLastReportUnreadable(t *testing.T) {
	env := newCheckerEnv(t)
	id := env.subscribe(t, 10, "2")
	env.routes.set("2", route("2130", "0200"))
	require.NoError(t, env.run(context.Background()))
	require.Len(t, env.sender.take(), 1)

	// the report interval has not elapsed, so a failed read must not look like 0
	env.now = env.now.Add(time.Minute)
	env.flaky.failNext(database.LastReportKey(id))
	require.NoError(t, env.run(context.Background()))
	assert.Empty(t, env.sender.take())
	assert.Equal(t, "1756700000", env.meta(t, database.LastReportKey(id)))
	assert.Equal(t, "2", env.meta(t, database.MetaChecksCount))
}

func TestCheckerDoesNotRecreateMetaOfRemovedSub(t *testing.T) {
	env := newCheckerEnv(t)
	id := env.subscribe(t, 10, "2")
	env.routes.set("2", route("2130", "0200"))
	env.sender.onSend = func() {
		ok, err := env.store.DeleteSubscription(context.Background(), 10, id)
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	require.NoError(t, env.run(context.Background()))
	require.Len(t, env.sender.take(), 1)

	_, ok, err := env.store.GetMeta(context.Background(), database.LastReportKey(id))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerMidnightWindow(t *testing.T) {
	env := newCheckerEnv(t)
	_, err := env.store.AddSubscription(context.Background(), &database.Subscription{
		UserID: 10, CityFromID: "2", CityToID: "78", FromName: "Minsk", ToName: "Vilnius",
		DateStr: "02.09.2025", DepFromHHMM: "23:00", DepToHHMM: "01:00",
	})
	require.NoError(t, err)
	env.routes.set("78", route("0030", "0500"), route("1200", "1600"), route("2330", "0400"))

	require.NoError(t, env.run(context.Background()))
	sent := env.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, "00:30->05:00|23:30->04:00", env.lastHash(t, 10))
}

func TestCheckerCancelledContext(t *testing.T) {
	env := newCheckerEnv(t)
	env.subscribe(t, 10, "2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, env.run(ctx))
}

func TestSQLMaintenanceTask(t *testing.T) {
	env := newCheckerEnv(t)
	tasks := RegisterAllTasks(TaskDeps{Logger: discardLogger, Store: env.store, Config: config.Defaults()})
	require.Contains(t, tasks, config.TaskChecker)
	require.Contains(t, tasks, config.TaskSQLMaintenance)

	assert.NoError(t, tasks[config.TaskSQLMaintenance](context.Background()))
}
