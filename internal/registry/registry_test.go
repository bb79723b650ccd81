package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sensorflow/sensorflow-core/internal/broker"
	"github.com/sensorflow/sensorflow-core/internal/codec"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/logging"
)

func testRegistry(t *testing.T, repo Repository) *Registry {
	t.Helper()

	c, err := codec.New(
		[]byte("12345678901234567890123456789012"),
		[]byte("1234567890123456"),
	)
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}

	opts := Options{
		Topics:         broker.Topics{Base: "sensorflow/test"},
		QoS:            1,
		ClientIDPrefix: "sensorflow-test",
		// Keep retry loops quiet for the test's lifetime.
		ReconnectInitial: time.Minute,
		ReconnectMax:     time.Minute,
	}
	return New(repo, c, broker.Handlers{}, opts, logging.Default())
}

func startedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := testRegistry(t, NewMemoryRepository())
	if err := r.Start(context.Background(), "localhost:1883"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRegister_Lifecycle(t *testing.T) {
	r := startedRegistry(t)

	if err := r.Register(context.Background(), "rpi9", "localhost:1884"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := r.Register(context.Background(), "rpi9", "localhost:1885"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate Register() error = %v, want ErrAlreadyRegistered", err)
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "rpi9" {
		t.Errorf("Names() = %v, want [rpi9]", names)
	}

	states := r.States()
	if _, ok := states[broker.PrimaryName]; !ok {
		t.Error("States() missing primary connection")
	}
	if _, ok := states["rpi9"]; !ok {
		t.Error("States() missing rpi9")
	}

	endpoint, err := r.Endpoint("rpi9")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if endpoint != "tcp://localhost:1884" {
		t.Errorf("Endpoint() = %q, want tcp://localhost:1884", endpoint)
	}

	if err := r.Unregister(context.Background(), "rpi9"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if err := r.Unregister(context.Background(), "rpi9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Unregister() error = %v, want ErrNotFound", err)
	}
	if got := r.Names(); len(got) != 0 {
		t.Errorf("Names() after unregister = %v, want empty", got)
	}
}

func TestRegister_ReservedPrimaryName(t *testing.T) {
	r := startedRegistry(t)

	if err := r.Register(context.Background(), broker.PrimaryName, "localhost:1884"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Register(primary) error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestUnregister_Primary(t *testing.T) {
	r := startedRegistry(t)

	if err := r.Unregister(context.Background(), broker.PrimaryName); !errors.Is(err, ErrPrimary) {
		t.Errorf("Unregister(primary) error = %v, want ErrPrimary", err)
	}
}

func TestRegister_BeforeStart(t *testing.T) {
	r := testRegistry(t, NewMemoryRepository())

	if err := r.Register(context.Background(), "rpi9", "localhost:1884"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Register() before Start error = %v, want ErrNotStarted", err)
	}
}

func TestRegister_InvalidName(t *testing.T) {
	r := startedRegistry(t)

	tests := []struct {
		name   string
		device string
	}{
		{name: "empty", device: ""},
		{name: "slash", device: "rpi/9"},
		{name: "plus wildcard", device: "rpi+"},
		{name: "hash wildcard", device: "rpi#"},
		{name: "whitespace", device: "rpi 9"},
		{name: "too long", device: strings.Repeat("x", maxNameLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(context.Background(), tt.device, "localhost:1884"); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Register(%q) error = %v, want ErrInvalidName", tt.device, err)
			}
		})
	}
}

func TestRegister_InvalidEndpoint(t *testing.T) {
	r := startedRegistry(t)

	if err := r.Register(context.Background(), "rpi9", "http://nope"); !errors.Is(err, broker.ErrInvalidEndpoint) {
		t.Errorf("Register() error = %v, want broker.ErrInvalidEndpoint", err)
	}
	if len(r.Names()) != 0 {
		t.Error("failed registration must not be recorded")
	}
}

func TestStart_RestoresPersistedRegistrations(t *testing.T) {
	repo := NewMemoryRepository()
	seed := []Registration{
		{Name: "rpi9", Endpoint: "tcp://localhost:1884", CreatedAt: time.Now().UTC()},
		{Name: "rpi10", Endpoint: "tcp://localhost:1885", CreatedAt: time.Now().UTC().Add(time.Second)},
	}
	for _, reg := range seed {
		if err := repo.Create(context.Background(), reg); err != nil {
			t.Fatalf("seeding repo: %v", err)
		}
	}

	r := testRegistry(t, repo)
	if err := r.Start(context.Background(), "localhost:1883"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Close)

	names := r.Names()
	if len(names) != 2 || names[0] != "rpi10" || names[1] != "rpi9" {
		t.Errorf("Names() = %v, want [rpi10 rpi9]", names)
	}
}

func TestClose_RejectsFurtherOperations(t *testing.T) {
	r := startedRegistry(t)
	r.Close()
	r.Close() // idempotent

	if err := r.Register(context.Background(), "rpi9", "localhost:1884"); !errors.Is(err, ErrClosed) {
		t.Errorf("Register() after Close error = %v, want ErrClosed", err)
	}
	if err := r.Unregister(context.Background(), "rpi9"); !errors.Is(err, ErrClosed) {
		t.Errorf("Unregister() after Close error = %v, want ErrClosed", err)
	}
}

func TestRegister_ConcurrentSameName(t *testing.T) {
	r := startedRegistry(t)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.Register(context.Background(), "rpi9", "localhost:1884")
		}()
	}
	wg.Wait()

	var winners, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyRegistered):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if duplicates != racers-1 {
		t.Errorf("duplicates = %d, want %d", duplicates, racers-1)
	}
}
