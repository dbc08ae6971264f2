package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/config"
	"gotow/internal/models"
	"gotow/internal/repositories/memory"
	"gotow/pkg/logger"
	"gotow/pkg/transport"
)

const (
	testLat = 12.9716
	testLng = 77.5946
)

func testDispatchConfig() *config.DispatchConfig {
	return &config.DispatchConfig{
		SearchRadiusKM:        10,
		MaxSearchRadiusKM:     50,
		RadiusGrowthFactor:    1.5,
		MaxFanoutRounds:       3,
		RoundBackoff:          0,
		CandidateTimeout:      45 * time.Second,
		RequestTTL:            10 * time.Minute,
		MaxCandidatesPerRound: 10,
		SweepInterval:         5 * time.Second,
		AverageSpeedKMH:       30,
	}
}

// dispatchEnv wires the full service stack over the in-memory
// repositories, the way main does over MongoDB.
type dispatchEnv struct {
	requestRepo  *memory.RequestRepository
	providerRepo *memory.ProviderRepository
	eventRepo    *memory.EventRepository
	outboxRepo   *memory.OutboxRepository
	deliverer    *transport.CompositeDeliverer
	tracker      TrackerService
	fanout       FanoutService
	intake       IntakeService
	arbiter      ArbiterService
	providers    ProviderService
	roundDone    chan struct{}
}

func newDispatchEnv(cfg *config.DispatchConfig) *dispatchEnv {
	log := logger.NewNopLogger()

	env := &dispatchEnv{
		requestRepo:  memory.NewRequestRepository(),
		providerRepo: memory.NewProviderRepository(),
		eventRepo:    memory.NewEventRepository(),
		outboxRepo:   memory.NewOutboxRepository(),
		roundDone:    make(chan struct{}, 32),
	}

	env.deliverer = transport.NewCompositeDeliverer(NewOutboxStore(env.outboxRepo), nil, log)
	env.tracker = NewTrackerService(env.requestRepo, env.eventRepo, nil, log)
	env.fanout = NewFanoutService(env.requestRepo, env.providerRepo, env.tracker, env.deliverer, nil, nil, nil, cfg, log)
	env.intake = NewIntakeService(env.requestRepo, nil, env.tracker, &roundNotifier{inner: env.fanout, done: env.roundDone}, env.deliverer, cfg, log)
	env.arbiter = NewArbiterService(env.requestRepo, env.providerRepo, env.eventRepo, env.tracker, env.fanout, log)
	env.providers = NewProviderService(env.providerRepo, env.requestRepo, env.deliverer, log)

	return env
}

// roundNotifier signals after each fanout round so tests can wait for
// the asynchronous kick Submit fires off.
type roundNotifier struct {
	inner Dispatcher
	done  chan struct{}
}

func (d *roundNotifier) DispatchRound(ctx context.Context, requestID primitive.ObjectID) error {
	err := d.inner.DispatchRound(ctx, requestID)
	d.done <- struct{}{}
	return err
}

func (e *dispatchEnv) addProvider(t *testing.T, lat, lng float64) *models.Provider {
	t.Helper()

	provider := &models.Provider{
		UserID:        primitive.NewObjectID(),
		Name:          "Test Towing",
		Phone:         "+919876543210",
		Status:        models.ProviderStatusOnline,
		Available:     true,
		TowingCapable: true,
		Location:      models.NewLocation(lat, lng),
	}
	if err := e.providers.Register(context.Background(), provider); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	return provider
}

func (e *dispatchEnv) submit(t *testing.T, key string) *models.TowRequest {
	t.Helper()

	request, created, err := e.intake.Submit(context.Background(), &SubmitInput{
		RequesterID:    primitive.NewObjectID(),
		IdempotencyKey: key,
		VehicleInfo:    models.VehicleInfo{Type: "sedan", Plate: "KA01AB1234"},
		Latitude:       testLat,
		Longitude:      testLng,
		Reason:         "engine_failure",
		Severity:       models.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !created {
		t.Fatal("Expected a newly created request")
	}

	// The first round runs off the submitting goroutine; wait for it
	// so the candidate set is settled before the test proceeds.
	select {
	case <-e.roundDone:
	case <-time.After(2 * time.Second):
		t.Fatal("First fanout round did not finish")
	}

	return request
}

// recordingDispatcher stands in for the fanout service where a test
// only needs to observe the kick.
type recordingDispatcher struct {
	mu    sync.Mutex
	kicks []primitive.ObjectID
}

func (d *recordingDispatcher) DispatchRound(ctx context.Context, requestID primitive.ObjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kicks = append(d.kicks, requestID)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.kicks)
}

func (d *recordingDispatcher) waitForCount(t *testing.T, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d fanout kicks, got %d", want, d.count())
}

// blockingDispatcher holds its round open until released, to observe
// whether callers wait on it.
type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingDispatcher() *blockingDispatcher {
	return &blockingDispatcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *blockingDispatcher) DispatchRound(ctx context.Context, requestID primitive.ObjectID) error {
	d.once.Do(func() { close(d.started) })
	<-d.release
	return nil
}
