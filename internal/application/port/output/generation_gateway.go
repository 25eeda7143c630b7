package output

import (
	"context"
	"time"
)

// GenerationGateway is the interface to the external generation service.
// The core treats it as a black box; it only bounds and assembles the
// context bundle handed to it.
type GenerationGateway interface {
	// Generate produces output for an assembled context bundle
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// HealthCheck verifies if the generation service is available
	HealthCheck(ctx context.Context) error
}

// GenerateRequest carries one bounded context bundle
type GenerateRequest struct {
	Bundle  string        // The assembled context bundle text
	Timeout time.Duration // Caller-supplied deadline; zero means none
}

// GenerateResult is the service's opaque output
type GenerateResult struct {
	Output   string        // Generated text
	Duration time.Duration // Wall time of the call
	Backend  string        // Which backend produced it
}
