package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"deptportal/portal/internal/client"
	"deptportal/portal/internal/model"
)

var (
	errUnauthorized = &client.UnauthenticatedError{Status: http.StatusUnauthorized}
	errNotFound     = &client.UnauthenticatedError{Status: http.StatusNotFound}
	errNetwork      = &client.NetworkError{Op: "probe", Err: errors.New("connection refused")}
	errRefresh      = &client.RefreshFailedError{Status: http.StatusUnauthorized}
)

type probeStep struct {
	user model.User
	err  error
}

type fakeClient struct {
	mu           sync.Mutex
	probes       []probeStep
	refreshes    []error
	probeCalls   int
	refreshCalls int
	entered      chan struct{}
	release      chan struct{}
}

func (f *fakeClient) ProbeIdentity(ctx context.Context) (model.User, error) {
	f.mu.Lock()
	f.probeCalls++
	step := probeStep{err: errUnauthorized}
	if len(f.probes) > 0 {
		step = f.probes[0]
		f.probes = f.probes[1:]
	}
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return step.user, step.err
}

func (f *fakeClient) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if len(f.refreshes) == 0 {
		return errRefresh
	}
	err := f.refreshes[0]
	f.refreshes = f.refreshes[1:]
	return err
}

func (f *fakeClient) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeCalls, f.refreshCalls
}

func student() model.User {
	return &model.StudentUser{Identity: model.Identity{LoginID: "83000001", Name: "Sita"}, Semester: 3}
}

func admin() model.User {
	return &model.AdminUser{Identity: model.Identity{LoginID: "65000001", Name: "Hari"}}
}

func TestNewStoreStartsLoading(t *testing.T) {
	store := New(&fakeClient{})
	snap := store.Snapshot()
	if !snap.Loading || snap.User != nil || snap.Authenticated() {
		t.Fatalf("expected loading snapshot, got %+v", snap)
	}
}

func TestRevalidateHappyPath(t *testing.T) {
	fake := &fakeClient{probes: []probeStep{{user: student()}}}
	store := New(fake)

	if !store.Revalidate(context.Background()) {
		t.Fatalf("expected revalidation to publish")
	}
	snap := store.Snapshot()
	if snap.Loading || snap.User == nil || snap.User.Role() != model.RoleStudent {
		t.Fatalf("expected authenticated student, got %+v", snap)
	}
	if probes, refreshes := fake.calls(); probes != 1 || refreshes != 0 {
		t.Fatalf("expected 1 probe 0 refresh, got %d/%d", probes, refreshes)
	}
}

func TestRevalidateRefreshRecovery(t *testing.T) {
	fake := &fakeClient{
		probes:    []probeStep{{err: errUnauthorized}, {user: admin()}},
		refreshes: []error{nil},
	}
	store := New(fake)

	store.Revalidate(context.Background())
	snap := store.Snapshot()
	if !snap.Authenticated() || snap.User.Role() != model.RoleAdmin {
		t.Fatalf("expected authenticated admin, got %+v", snap)
	}
	if probes, refreshes := fake.calls(); probes != 2 || refreshes != 1 {
		t.Fatalf("expected 2 probes 1 refresh, got %d/%d", probes, refreshes)
	}
}

func TestRevalidateTerminalExpiry(t *testing.T) {
	fake := &fakeClient{
		probes:    []probeStep{{err: errUnauthorized}},
		refreshes: []error{errRefresh},
	}
	store := New(fake)

	store.Revalidate(context.Background())
	snap := store.Snapshot()
	if snap.Loading || snap.User != nil {
		t.Fatalf("expected logged out, got %+v", snap)
	}
	if probes, refreshes := fake.calls(); probes != 1 || refreshes != 1 {
		t.Fatalf("expected 1 probe 1 refresh, got %d/%d", probes, refreshes)
	}
}

func TestRevalidateNoSecondRefresh(t *testing.T) {
	fake := &fakeClient{
		probes:    []probeStep{{err: errUnauthorized}, {err: errUnauthorized}, {user: student()}},
		refreshes: []error{nil, nil},
	}
	store := New(fake)

	store.Revalidate(context.Background())
	if snap := store.Snapshot(); snap.Loading || snap.User != nil {
		t.Fatalf("expected logged out after failed retry, got %+v", snap)
	}
	if probes, refreshes := fake.calls(); probes != 2 || refreshes != 1 {
		t.Fatalf("expected 2 probes 1 refresh, got %d/%d", probes, refreshes)
	}

	// The next cycle may try again.
	store.Revalidate(context.Background())
	if probes, refreshes := fake.calls(); probes != 3 || refreshes != 1 {
		t.Fatalf("expected 3 probes 1 refresh, got %d/%d", probes, refreshes)
	}
	if !store.Snapshot().Authenticated() {
		t.Fatalf("expected next cycle to recover")
	}
}

func TestRevalidateOtherFailuresSkipRefresh(t *testing.T) {
	for _, err := range []error{errNotFound, errNetwork} {
		fake := &fakeClient{probes: []probeStep{{err: err}}, refreshes: []error{nil}}
		store := New(fake)

		store.Revalidate(context.Background())
		if snap := store.Snapshot(); snap.Loading || snap.User != nil {
			t.Fatalf("%v: expected logged out, got %+v", err, snap)
		}
		if _, refreshes := fake.calls(); refreshes != 0 {
			t.Fatalf("%v: expected no refresh, got %d", err, refreshes)
		}
	}
}

func TestLaterCyclesDoNotSetLoading(t *testing.T) {
	fake := &fakeClient{probes: []probeStep{{user: student()}, {err: errNetwork}, {user: student()}}}
	store := New(fake)

	var mu sync.Mutex
	var seen []Snapshot
	store.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})
	for i := 0; i < 3; i++ {
		store.Revalidate(context.Background())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	for _, snap := range seen {
		if snap.Loading {
			t.Fatalf("expected loading to stay false after the first cycle")
		}
	}
	if seen[1].User != nil || seen[2].User == nil {
		t.Fatalf("unexpected notification sequence %+v", seen)
	}
}

func TestRevalidateCoalescesConcurrentTriggers(t *testing.T) {
	fake := &fakeClient{
		probes:  []probeStep{{user: student()}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	store := New(fake, WithMetrics(metrics))

	first := make(chan bool)
	go func() { first <- store.Revalidate(context.Background()) }()
	<-fake.entered

	if store.Revalidate(context.Background()) {
		t.Fatalf("expected overlapping trigger to be coalesced")
	}
	close(fake.release)
	if !<-first {
		t.Fatalf("expected first cycle to publish")
	}
	if probes, _ := fake.calls(); probes != 1 {
		t.Fatalf("expected a single probe, got %d", probes)
	}
	if got := testutil.ToFloat64(metrics.coalesced); got != 1 {
		t.Fatalf("expected 1 coalesced trigger, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.authenticated); got != 1 {
		t.Fatalf("expected authenticated gauge 1, got %v", got)
	}
}

func TestDisposeDropsInFlightResult(t *testing.T) {
	fake := &fakeClient{
		probes:  []probeStep{{user: student()}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	store := New(fake)
	notified := false
	store.Subscribe(func(Snapshot) { notified = true })

	result := make(chan bool)
	go func() { result <- store.Revalidate(context.Background()) }()
	<-fake.entered

	before := store.Snapshot()
	store.Dispose()
	close(fake.release)

	if <-result {
		t.Fatalf("expected result after dispose to be dropped")
	}
	after := store.Snapshot()
	if after != before || !after.Loading || after.User != nil {
		t.Fatalf("expected snapshot unchanged after dispose, got %+v", after)
	}
	if notified {
		t.Fatalf("expected no notification after dispose")
	}
	if store.Revalidate(context.Background()) {
		t.Fatalf("expected disposed store to refuse revalidation")
	}
	store.SetUser(student())
	if store.Snapshot().User != nil {
		t.Fatalf("expected disposed store to ignore SetUser")
	}
}

func TestExplicitChangeSupersedesInFlightCycle(t *testing.T) {
	fake := &fakeClient{
		probes:  []probeStep{{err: errNetwork}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	store := New(fake)

	result := make(chan bool)
	go func() { result <- store.Revalidate(context.Background()) }()
	<-fake.entered

	store.SetUser(admin())
	close(fake.release)
	if <-result {
		t.Fatalf("expected stale cycle to be dropped")
	}
	if snap := store.Snapshot(); !snap.Authenticated() || snap.User.Role() != model.RoleAdmin {
		t.Fatalf("expected login result to stand, got %+v", snap)
	}

	store.Clear()
	if snap := store.Snapshot(); snap.Loading || snap.User != nil {
		t.Fatalf("expected cleared snapshot, got %+v", snap)
	}
}

func TestStartProbesAndRevalidatesPeriodically(t *testing.T) {
	fake := &fakeClient{}
	for i := 0; i < 50; i++ {
		fake.probes = append(fake.probes, probeStep{user: student()})
	}
	store := New(fake, WithInterval(10*time.Millisecond))

	published := make(chan Snapshot, 100)
	store.Subscribe(func(snap Snapshot) {
		select {
		case published <- snap:
		default:
		}
	})
	store.Start(context.Background())
	store.Start(context.Background())

	select {
	case snap := <-published:
		if !snap.Authenticated() {
			t.Fatalf("expected authenticated after initial probe, got %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("initial probe never published")
	}

	deadline := time.After(2 * time.Second)
	for {
		probes, _ := fake.calls()
		if probes >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected periodic probes, got %d", probes)
		case <-time.After(5 * time.Millisecond):
		}
	}

	store.Dispose()
	store.Dispose()
	select {
	case <-store.Done():
	case <-time.After(time.Second):
		t.Fatalf("store did not finish disposing")
	}
	probes, _ := fake.calls()
	time.Sleep(40 * time.Millisecond)
	if after, _ := fake.calls(); after > probes+1 {
		t.Fatalf("expected no probes after dispose, went from %d to %d", probes, after)
	}
}

func TestStartDisposesWithParentContext(t *testing.T) {
	store := New(&fakeClient{probes: []probeStep{{user: student()}}}, WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	store.Start(ctx)
	cancel()

	select {
	case <-store.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected parent cancel to dispose the store")
	}
}

func TestProbeMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	fake := &fakeClient{
		probes:    []probeStep{{err: errUnauthorized}, {user: student()}},
		refreshes: []error{nil},
	}
	store := New(fake, WithMetrics(metrics))
	store.Revalidate(context.Background())

	if got := testutil.ToFloat64(metrics.probes.WithLabelValues("unauthorized")); got != 1 {
		t.Fatalf("expected 1 unauthorized probe, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.probes.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok probe, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.refreshes.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok refresh, got %v", got)
	}
}
