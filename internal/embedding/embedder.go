package embedding

// Embedder turns text into a fixed-dimension vector. Implementations wrap an
// external model endpoint; failures must be returned, never panicked, so
// callers can degrade to keyword-only retrieval.
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimension() int
}

// HealthChecker is implemented by embedders backed by an external service.
type HealthChecker interface {
	HealthCheck() error
}
