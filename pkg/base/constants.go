package base

const (
	UPTRACE_DSN_ENV_VAR = "UPTRACE_DSN"
	UPTRACE_ENDPOINT    = "otlp.uptrace.dev"
	SERVICE_NAME        = "epar"
	SERVICE_VERSION     = "1.0.0"
)
