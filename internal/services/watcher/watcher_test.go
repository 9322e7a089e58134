package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/glswatch/internal/gls"
	"github.com/BearBump/glswatch/internal/models"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	state  models.State
	writes int
	errR   error
	errW   error
}

func (s *memStore) Read(ctx context.Context) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errR != nil {
		return models.State{}, s.errR
	}
	return s.state, nil
}

func (s *memStore) Write(ctx context.Context, st models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errW != nil {
		return s.errW
	}
	s.state = st
	s.writes++
	return nil
}

type fakeCarrier struct {
	mu      sync.Mutex
	byTrack map[string]gls.History
	err     error
	calls   []string
}

func (c *fakeCarrier) FetchHistory(ctx context.Context, trackNumber, postalCode string) (gls.History, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, trackNumber)
	if c.err != nil {
		return gls.History{}, c.err
	}
	return c.byTrack[trackNumber], nil
}

type raised struct {
	title, message, dedupeKey string
}

type fakeNotifier struct {
	mu     sync.Mutex
	raises []raised
	err    error
}

func (n *fakeNotifier) Raise(ctx context.Context, title, message, dedupeKey string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raises = append(n.raises, raised{title, message, dedupeKey})
	return n.err
}

func shipment(id, track string) models.TrackedShipment {
	return models.TrackedShipment{ID: id, TrackingNumber: track, PostalCode: "1234 AB", History: []string{}}
}

func TestCheckOne_FirstPollIsChangeAndNotifies(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{
		"N1": {
			LatestText: "In transit (Neuenstein, Germany)",
			LatestWhen: "2025-12-01 08:00:00",
			Entries:    []string{"2025-12-01 08:00:00 – In transit (Neuenstein, Germany)"},
		},
	}}
	fn := &fakeNotifier{}
	w := New(&memStore{}, fc, fn, nil)

	tr := shipment("id1", "N1")
	tr.Description = "new shoes"
	got := w.checkOne(context.Background(), tr, models.DefaultState())

	require.NotNil(t, got.LastSignature)
	require.Equal(t, gls.Signature("2025-12-01 08:00:00", "In transit (Neuenstein, Germany)"), *got.LastSignature)
	require.Equal(t, "In transit (Neuenstein, Germany)", *got.LastStatusText)
	require.Equal(t, "2025-12-01 08:00:00", *got.LastStatusWhen)
	require.NotNil(t, got.LastCheckedAt)
	require.Nil(t, got.LastError)
	require.Len(t, got.History, 1)
	require.False(t, got.Archived)

	require.Len(t, fn.raises, 1)
	require.Equal(t, "new shoes — status updated", fn.raises[0].title)
	require.Equal(t, "2025-12-01 08:00:00\nIn transit (Neuenstein, Germany)", fn.raises[0].message)
	require.Equal(t, "gls-id1", fn.raises[0].dedupeKey)
}

func TestCheckOne_UnchangedNoSideEffects(t *testing.T) {
	h := gls.History{LatestText: "In transit", LatestWhen: "2025-12-01", Entries: []string{"2025-12-01 – In transit"}}
	fc := &fakeCarrier{byTrack: map[string]gls.History{"N1": h}}
	fn := &fakeNotifier{}
	w := New(&memStore{}, fc, fn, nil)

	sig := gls.Signature("2025-12-01", "In transit")
	tr := shipment("id1", "N1")
	tr.LastSignature = &sig

	got := w.checkOne(context.Background(), tr, models.DefaultState())
	require.Equal(t, sig, *got.LastSignature)
	require.Nil(t, got.LastStatusText) // unchanged path leaves status fields alone
	require.Equal(t, h.Entries, got.History)
	require.NotNil(t, got.LastCheckedAt)
	require.Empty(t, fn.raises)
}

func TestCheckOne_ErrorPreservesLastKnownGood(t *testing.T) {
	fc := &fakeCarrier{err: &gls.FetchError{StatusCode: 500, Body: "boom"}}
	fn := &fakeNotifier{}
	w := New(&memStore{}, fc, fn, nil)

	sig := "111"
	text := "In transit"
	when := "2025-12-01"
	tr := shipment("id1", "N1")
	tr.LastSignature = &sig
	tr.LastStatusText = &text
	tr.LastStatusWhen = &when
	tr.History = []string{"2025-12-01 – In transit"}

	got := w.checkOne(context.Background(), tr, models.DefaultState())
	require.Equal(t, "111", *got.LastSignature)
	require.Equal(t, "In transit", *got.LastStatusText)
	require.Equal(t, "2025-12-01", *got.LastStatusWhen)
	require.NotNil(t, got.LastError)
	require.Contains(t, *got.LastError, "HTTP 500")
	require.Empty(t, got.History)
	require.NotNil(t, got.LastCheckedAt)
	require.Empty(t, fn.raises)
}

func TestCheckOne_DeliveredAutoArchives(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{
		"N1": {LatestText: "Pakket bezorgd", LatestWhen: "2025-12-02 10:00:00", Entries: []string{"x"}},
	}}
	fn := &fakeNotifier{}
	w := New(&memStore{}, fc, fn, nil)

	cfg := models.DefaultState() // autoArchiveDelivered: true
	got := w.checkOne(context.Background(), shipment("id1", "N1"), cfg)

	require.True(t, got.Archived)
	require.Len(t, fn.raises, 2)
	require.Equal(t, "gls-id1", fn.raises[0].dedupeKey)
	require.Equal(t, "arch-id1", fn.raises[1].dedupeKey)
	require.Equal(t, "Delivered — archived.", fn.raises[1].message)
	require.Equal(t, "GLS", fn.raises[1].title) // no description set
}

func TestCheckOne_DeliveredWithoutAutoArchive(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{
		"N1": {LatestText: "Delivered", Entries: []string{"Delivered"}},
	}}
	fn := &fakeNotifier{}
	w := New(&memStore{}, fc, fn, nil)

	cfg := models.DefaultState()
	cfg.AutoArchiveDelivered = false
	got := w.checkOne(context.Background(), shipment("id1", "N1"), cfg)

	require.False(t, got.Archived)
	require.Len(t, fn.raises, 1)
}

func TestCheckOne_SentinelParticipatesInSignature(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{
		"N1": {LatestText: gls.NoStatusYet, Entries: []string{}},
	}}
	fn := &fakeNotifier{}
	w := New(&memStore{}, fc, fn, nil)

	// previous non-empty state differs from the sentinel => change
	prev := gls.Signature("2025-12-01", "In transit")
	tr := shipment("id1", "N1")
	tr.LastSignature = &prev
	got := w.checkOne(context.Background(), tr, models.DefaultState())
	require.Equal(t, gls.Signature("", gls.NoStatusYet), *got.LastSignature)
	require.Len(t, fn.raises, 1)

	// a second poll with the same sentinel is unchanged
	fn.raises = nil
	got = w.checkOne(context.Background(), got, models.DefaultState())
	require.Empty(t, fn.raises)
}

func TestCheckOne_NotifierFailureDoesNotFailCheck(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{"N1": {LatestText: "In transit", Entries: []string{"x"}}}}
	fn := &fakeNotifier{err: errors.New("bus down")}
	w := New(&memStore{}, fc, fn, nil)

	got := w.checkOne(context.Background(), shipment("id1", "N1"), models.DefaultState())
	require.Nil(t, got.LastError)
	require.NotNil(t, got.LastSignature)
}

func TestRunCycle_SkipsArchivedAndKeepsOrder(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{
		"A": {LatestText: "status A", Entries: []string{"status A"}},
		"C": {LatestText: "status C", Entries: []string{"status C"}},
	}}
	st := models.DefaultState()
	archived := shipment("b", "B")
	archived.Archived = true
	st.Trackers = []models.TrackedShipment{shipment("a", "A"), archived, shipment("c", "C")}

	ms := &memStore{state: st}
	w := New(ms, fc, &fakeNotifier{}, nil).WithSettings(time.Minute, 8, 0)

	w.runCycle(context.Background())

	require.Equal(t, 1, ms.writes)
	got := ms.state.Trackers
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.Equal(t, "status A", *got[0].LastStatusText)
	require.Nil(t, got[1].LastCheckedAt) // archived: untouched, not polled
	require.Equal(t, "status C", *got[2].LastStatusText)
	require.NotContains(t, fc.calls, "B")
}

func TestRunCycle_PerShipmentErrorDoesNotAbortBatch(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{
		"A": {LatestText: "ok", Entries: []string{"ok"}},
	}}
	// "Z" is absent from byTrack => empty history => sentinel-less zero
	// value; use a dedicated erroring carrier for a clearer split.
	errCarrier := carrierFunc(func(ctx context.Context, track, postal string) (gls.History, error) {
		if track == "Z" {
			return gls.History{}, errors.New("boom")
		}
		return fc.FetchHistory(ctx, track, postal)
	})

	st := models.DefaultState()
	st.Trackers = []models.TrackedShipment{shipment("z", "Z"), shipment("a", "A")}
	ms := &memStore{state: st}
	w := New(ms, errCarrier, &fakeNotifier{}, nil)

	w.runCycle(context.Background())

	got := ms.state.Trackers
	require.NotNil(t, got[0].LastError)
	require.Nil(t, got[1].LastError)
	require.Equal(t, "ok", *got[1].LastStatusText)
	require.Equal(t, int64(1), w.Stats().TotalErrors)
}

type carrierFunc func(ctx context.Context, trackNumber, postalCode string) (gls.History, error)

func (f carrierFunc) FetchHistory(ctx context.Context, trackNumber, postalCode string) (gls.History, error) {
	return f(ctx, trackNumber, postalCode)
}

func TestNextInterval(t *testing.T) {
	w := New(&memStore{}, &fakeCarrier{}, nil, nil)

	st := models.State{IntervalMinutes: 10}
	require.Equal(t, 10*time.Minute, w.nextInterval(st))

	st.IntervalMinutes = 0
	require.Equal(t, 5*time.Minute, w.nextInterval(st))

	st.IntervalMinutes = -3
	require.Equal(t, time.Minute, w.nextInterval(st))

	w.WithSettings(30*time.Second, 0, 0)
	require.Equal(t, 30*time.Second, w.nextInterval(st))
}

type fakeRL struct {
	allowed bool
	calls   int
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.calls++
	return r.allowed, 1, nil
}

func TestCheckOne_ConsultsRateLimiter(t *testing.T) {
	fc := &fakeCarrier{byTrack: map[string]gls.History{"N1": {LatestText: "x", Entries: []string{"x"}}}}
	rl := &fakeRL{allowed: true}
	w := New(&memStore{}, fc, &fakeNotifier{}, rl)

	w.checkOne(context.Background(), shipment("id1", "N1"), models.DefaultState())
	require.Equal(t, 1, rl.calls)
}
