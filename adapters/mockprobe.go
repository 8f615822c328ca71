package adapters

import (
	"context"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
)

// MockProbe implements a mocked UsageProbe returning fixed records
type MockProbe struct {
	kind    domain.SourceKind
	records []domain.UsageRecord
	err     error
	delay   time.Duration
}

var _ ports.UsageProbe = (*MockProbe)(nil)

// NewMockProbe initializes a MockProbe of the given kind
func NewMockProbe(kind domain.SourceKind, records ...domain.UsageRecord) *MockProbe {
	return &MockProbe{kind: kind, records: records}
}

// Failing makes the probe return err
func (m *MockProbe) Failing(err error) *MockProbe {
	m.err = err
	return m
}

// Slow makes the probe block for d before answering
func (m *MockProbe) Slow(d time.Duration) *MockProbe {
	m.delay = d
	return m
}

func (m *MockProbe) Kind() domain.SourceKind {
	return m.kind
}

func (m *MockProbe) ListUsage(ctx context.Context) ([]domain.UsageRecord, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

// MockConnector implements a mocked ScanTargetConnector, keyed by target display name
type MockConnector struct {
	probes   map[string][]ports.UsageProbe
	failures map[string]error
}

var _ ports.ScanTargetConnector = (*MockConnector)(nil)

// NewMockConnector initializes the MockConnector struct and its maps
func NewMockConnector() *MockConnector {
	return &MockConnector{
		probes:   map[string][]ports.UsageProbe{},
		failures: map[string]error{},
	}
}

func (m *MockConnector) WithProbes(target string, probes ...ports.UsageProbe) *MockConnector {
	m.probes[target] = append(m.probes[target], probes...)
	return m
}

// WithAuthFailure makes Connect fail for target
func (m *MockConnector) WithAuthFailure(target string, err error) *MockConnector {
	m.failures[target] = err
	return m
}

func (m *MockConnector) Connect(_ context.Context, target domain.ScanTarget) ([]ports.UsageProbe, error) {
	if err, ok := m.failures[target.DisplayName()]; ok {
		return nil, err
	}
	return m.probes[target.DisplayName()], nil
}
