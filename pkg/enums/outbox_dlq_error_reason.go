package enums

// OutboxDLQErrorReason says why the publisher stopped retrying an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: the transport kept failing until the
	// attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row can never publish as stored,
	// e.g. an unknown event type or a payload that fails to decode.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validDLQReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool {
	return member(validDLQReasons, r)
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse("dead letter reason", validDLQReasons, value)
}
