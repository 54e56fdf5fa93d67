// Package machinepool implements MachinePool: a bounded
// reservation pool over the MachineProvider adapter, with a best-effort
// fair per-user reservation queue for requests that arrive at capacity.
// Start and Stop run the queue's drain loop, and a sync.Mutex guards the
// queued reservations.
package machinepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/machineprovider"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// Pool is MachinePool.
type Pool struct {
	cfg      Config
	provider machineprovider.Provider
	machines repo.MachineRepository

	mu       sync.Mutex
	queue    []reservationRequest
	queueLen map[string]int // userID -> count in queue, for the per-user bound

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

type reservationRequest struct {
	userID string
	region string
	result chan ReservationOutcome
}

// ReservationOutcome is delivered on a QueueReserve channel once a queued
// request is resolved, either by a freed slot or a terminal error.
type ReservationOutcome struct {
	Machine *models.Machine
	Err     error
}

// New constructs a Pool.
func New(cfg Config, provider machineprovider.Provider, machines repo.MachineRepository) *Pool {
	return &Pool{
		cfg:      cfg,
		provider: provider,
		machines: machines,
		queueLen: make(map[string]int),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background worker that drains the reservation queue as
// capacity frees up. Safe to call once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.drainLoop(ctx)
}

// Stop signals the drain loop to exit and waits for it.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Reserve fails fast with ExhaustedError when capacity is exceeded, never
// blocking indefinitely.
func (p *Pool) Reserve(ctx context.Context, userID, region string) (*models.Machine, error) {
	if region == "" {
		region = p.cfg.DefaultRegion
	}

	count, err := p.machines.ActiveCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("check active count: %w", err)
	}
	if count >= p.cfg.MaxActiveMachines {
		return nil, &ExhaustedError{CurrentMachines: count, MaxMachines: p.cfg.MaxActiveMachines}
	}

	return p.create(ctx, userID, region)
}

func (p *Pool) create(ctx context.Context, userID, region string) (*models.Machine, error) {
	machineID := uuid.NewString()
	result, err := p.provider.Create(ctx, machineprovider.CreateRequest{
		MachineID: machineID,
		Region:    region,
		Image:     p.cfg.DefaultImage,
		Labels:    map[string]string{"owner": userID},
	})
	if err != nil {
		return nil, fmt.Errorf("provision machine: %w", err)
	}

	machine := &models.Machine{
		ID:        result.MachineID,
		IPv4:      result.IPv4,
		Status:    models.MachineStatusReserved,
		Provider:  models.MachineProviderManagedCloud,
		Region:    region,
		CreatedAt: result.CreatedAt,
	}
	if result.URL != "" {
		machine.URL = &result.URL
	}

	if err := p.machines.Reserve(ctx, machine); err != nil {
		_ = p.provider.Destroy(ctx, machineID)
		return nil, fmt.Errorf("record reservation: %w", err)
	}
	return machine, nil
}

// QueueReserve implements the asynchronous reservation queue: on
// POOL_EXHAUSTED, a caller may enqueue instead of giving up outright. The
// returned channel receives exactly one outcome once a slot frees up. A
// request beyond the per-user bound is refused at once with an error and
// no channel.
func (p *Pool) QueueReserve(userID, region string) (<-chan ReservationOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queueLen[userID] >= p.cfg.ReservationQueueMaxPerUser {
		return nil, fmt.Errorf("reservation queue full for user %s", userID)
	}

	req := reservationRequest{userID: userID, region: region, result: make(chan ReservationOutcome, 1)}
	p.queue = append(p.queue, req)
	p.queueLen[userID]++
	p.signalWake()
	return req.result, nil
}

// Release implements MachinePool.release: idempotent, starts eventual
// destruction, and wakes the drain loop so a queued reservation can claim
// the freed slot.
func (p *Pool) Release(ctx context.Context, machineID string) error {
	if err := p.machines.Release(ctx, machineID); err != nil {
		return fmt.Errorf("release machine %s: %w", machineID, err)
	}
	go func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.provider.Destroy(releaseCtx, machineID); err != nil {
			slog.Error("destroy released machine failed", "machine_id", machineID, "error", err)
		}
	}()

	p.mu.Lock()
	p.signalWake()
	p.mu.Unlock()
	return nil
}

// ActiveCount implements MachinePool.activeCount.
func (p *Pool) ActiveCount(ctx context.Context) (int, error) {
	return p.machines.ActiveCount(ctx)
}

func (p *Pool) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// drainLoop processes the reservation queue FIFO, best-effort fair across
// users, whenever capacity may have freed up.
func (p *Pool) drainLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-p.wake:
			p.drainOnce(ctx)
		case <-ticker.C:
			p.drainOnce(ctx)
		}
	}
}

func (p *Pool) drainOnce(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		next := p.queue[0]
		p.mu.Unlock()

		machine, err := p.Reserve(ctx, next.userID, next.region)
		if err != nil && errors.Is(err, ErrPoolExhausted) {
			return
		}

		p.mu.Lock()
		p.queue = p.queue[1:]
		p.queueLen[next.userID]--
		p.mu.Unlock()

		next.result <- ReservationOutcome{Machine: machine, Err: err}
	}
}
