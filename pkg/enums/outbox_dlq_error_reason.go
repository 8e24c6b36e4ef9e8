package enums

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means Pub/Sub kept failing until the
	// attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable covers terminal errors with no finer reason.
	OutboxDLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnsupportedEvent OutboxDLQErrorReason = "unsupported_event"
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	// OutboxDLQReasonUndeliverable marks a notification nobody can receive,
	// such as a receipt with neither an email nor a customer.
	OutboxDLQReasonUndeliverable    OutboxDLQErrorReason = "undeliverable"
	OutboxDLQReasonTopicUnavailable OutboxDLQErrorReason = "topic_unavailable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonUnsupportedEvent,
	OutboxDLQReasonMalformedPayload,
	OutboxDLQReasonUndeliverable,
	OutboxDLQReasonTopicUnavailable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
