// Package services tracks external dependencies for readiness reporting and
// provides the Redis-backed generation cache.
package services

import (
	"context"
)

// Provider is an external dependency that can report its health
type Provider interface {
	// Type returns the dependency type name
	Type() string

	// HealthCheck checks if the dependency is available
	HealthCheck(ctx context.Context) error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	serviceType string
}

// Type returns the service type
func (p *BaseProvider) Type() string {
	return p.serviceType
}
