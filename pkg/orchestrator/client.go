package orchestrator

import (
	"context"
	"fmt"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

// WorkerClient is the subset of pkg/workerapi.Client the orchestrator
// drives. Declared here, at the consumer, so tests substitute a fake
// instead of making real HTTP calls — the same pattern eventpoller.WorkerClient
// and pkg/workerapi's own server-side interfaces use.
type WorkerClient interface {
	Health(ctx context.Context) error
	Start(ctx context.Context, req workerapi.StartRequest) (*workerapi.StartResponse, error)
	Prompt(ctx context.Context, text string) error
	Interrupt(ctx context.Context) error
	ClaudeState(ctx context.Context) (*workerapi.ClaudeStateResponse, error)
	RestoreSnapshot(ctx context.Context, presignedURLs []string) error
}

// WorkerClientFactory builds a WorkerClient addressing baseURL, sealing
// traffic under key. The zero value is not usable; New defaults
// to DefaultWorkerClientFactory when nil.
type WorkerClientFactory func(baseURL string, key []byte) WorkerClient

// DefaultWorkerClientFactory wraps pkg/workerapi.NewClient.
func DefaultWorkerClientFactory(baseURL string, key []byte) WorkerClient {
	return workerapi.NewClient(baseURL, key)
}

// clientFor derives an agent's worker key and addresses its current
// machine. Returns an error if the agent has no attached machine.
func (o *Orchestrator) clientFor(agent *models.Agent) (WorkerClient, error) {
	if agent.MachineID == nil {
		return nil, fmt.Errorf("agent %s has no attached machine", agent.ID)
	}
	machine, err := o.machines.FindByID(context.Background(), *agent.MachineID)
	if err != nil {
		return nil, fmt.Errorf("find machine %s: %w", *agent.MachineID, err)
	}
	return o.clientForMachine(agent, machine)
}

func (o *Orchestrator) clientForMachine(agent *models.Agent, machine *models.Machine) (WorkerClient, error) {
	baseURL := "http://" + machine.IPv4 + ":8090"
	if machine.URL != nil && *machine.URL != "" {
		baseURL = *machine.URL
	}
	key, err := workerapi.DeriveKey(agent.WorkerSecret)
	if err != nil {
		return nil, fmt.Errorf("derive worker key: %w", err)
	}
	return o.clients(baseURL, key), nil
}
