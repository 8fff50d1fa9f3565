package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Config holds Temporal connection settings.
type Config struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// Manager owns the Temporal client and worker lifecycle.
type Manager struct {
	client client.Client
	worker worker.Worker
	cfg    Config
}

// New creates a Temporal client and worker, registering all workflows and activities.
func New(cfg Config, acts *Activities) (*Manager, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client dial: %w", err)
	}

	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	// Register workflows.
	w.RegisterWorkflow(LogRoutingDecisionWorkflow)

	// Register activities.
	w.RegisterActivity(acts.RecordDecision)

	return &Manager{
		client: c,
		worker: w,
		cfg:    cfg,
	}, nil
}

// Start begins the worker polling for tasks.
func (m *Manager) Start() error {
	return m.worker.Start()
}

// Client returns the Temporal client for starting workflows.
func (m *Manager) Client() client.Client {
	return m.client
}

// TaskQueue returns the configured task queue name.
func (m *Manager) TaskQueue() string {
	return m.cfg.TaskQueue
}

// LogDecision starts LogRoutingDecisionWorkflow and returns as soon as
// Temporal accepts it — it does not wait for the workflow to complete.
// The caller treats a start error as a signal to fall back to direct
// logging; it never propagates into the request/response path.
func (m *Manager) LogDecision(ctx context.Context, input DecisionAuditInput) error {
	opts := client.StartWorkflowOptions{
		ID:        "decision-audit-" + input.RequestID,
		TaskQueue: m.cfg.TaskQueue,
	}
	_, err := m.client.ExecuteWorkflow(ctx, opts, LogRoutingDecisionWorkflow, input)
	return err
}

// Stop gracefully stops the worker and closes the client.
func (m *Manager) Stop() {
	if m.worker != nil {
		m.worker.Stop()
	}
	if m.client != nil {
		m.client.Close()
	}
}
