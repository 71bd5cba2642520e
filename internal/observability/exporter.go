package observability

// ExporterType selects the OTLP transport protocol.
type ExporterType string

const (
	// ExporterGRPC exports over OTLP/gRPC (default).
	ExporterGRPC ExporterType = "grpc"
	// ExporterHTTP exports over OTLP/HTTP.
	ExporterHTTP ExporterType = "http"
)
