package core

// JobKind classifies a confirmation job. The poller never interprets it; it
// is carried verbatim into the terminal event so downstream handlers can
// route on it.
type JobKind string

const (
	JobKindPayment       JobKind = "payment"
	JobKindChatOperation JobKind = "chat_operation"
)

// ConfirmationJob is the self-describing payload carried by the queue. It is
// re-enqueued with RetryCount incremented on every non-terminal poll.
type ConfirmationJob struct {
	TransactionID string            `json:"transaction_id"`
	Kind          JobKind           `json:"kind"`
	RetryCount    int               `json:"retry_count"`
	Auxiliary     map[string]string `json:"auxiliary,omitempty"`
}

// Event returns the terminal event payload for this job.
func (j *ConfirmationJob) Event() TransactionEvent {
	return TransactionEvent{
		TransactionID: j.TransactionID,
		Kind:          string(j.Kind),
		Auxiliary:     j.Auxiliary,
	}
}

// TransactionEvent is the shape shared by the three terminal events:
// TransactionConfirmed, TransactionFailed and TransactionSkipped.
type TransactionEvent struct {
	TransactionID string            `json:"transaction_id"`
	Kind          string            `json:"kind"`
	Auxiliary     map[string]string `json:"auxiliary,omitempty"`
}
