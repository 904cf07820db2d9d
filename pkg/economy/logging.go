package economy

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing economy operation.
type OperationLog struct {
	Operation string
	Username  Username
	Receiver  Username
	Amount    int64
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithRetryPolicy overrides how the second write of a multi-write operation
// is retried before the operation is declared partially applied.
func WithRetryPolicy(policy RetryPolicy) ServiceOption {
	return func(service *Service) {
		if policy != nil {
			service.retryPolicy = policy
		}
	}
}
