package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Reason categorizes a failed connection.
type Reason string

const (
	ReasonDecode       Reason = "decode"
	ReasonVerification Reason = "verification"
	ReasonDispatch     Reason = "dispatch"
	ReasonTimeout      Reason = "timeout"
	ReasonRead         Reason = "read"
	ReasonInternal     Reason = "internal"
)

// Outcome is the single result of one accepted connection. It is passed by
// value into the notification queue and never mutated after Notify.
type Outcome struct {
	ID      string    `json:"id"`
	Seq     uint64    `json:"seq"`
	Kind    Kind      `json:"kind"`
	Payload string    `json:"payload,omitempty"`
	Reason  Reason    `json:"reason,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Remote  string    `json:"remote,omitempty"`
	At      time.Time `json:"at"`
}

func Success(payload string) Outcome {
	return Outcome{
		ID:      uuid.NewString(),
		Kind:    KindSuccess,
		Payload: payload,
		At:      time.Now(),
	}
}

func Failure(reason Reason, detail string) Outcome {
	return Outcome{
		ID:     uuid.NewString(),
		Kind:   KindFailure,
		Reason: reason,
		Detail: detail,
		At:     time.Now(),
	}
}

func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Message is the user-facing notice text: the payload for a success, the
// failure reason for a failure.
func (o Outcome) Message() string {
	if o.OK() {
		return o.Payload
	}
	switch o.Reason {
	case ReasonVerification:
		return "Invalid QR Code: Verification Failed"
	case ReasonDecode:
		return withDetail("Invalid QR Code: Decode Failed", o.Detail)
	case ReasonTimeout:
		return "Invalid QR Code: Read Timeout"
	case ReasonDispatch:
		return withDetail("Access Service Error", o.Detail)
	case ReasonRead:
		return withDetail("Connection Error", o.Detail)
	default:
		return withDetail("Internal Error", o.Detail)
	}
}

func withDetail(msg, detail string) string {
	if detail == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, detail)
}

type Decision string

const (
	DecisionRestart Decision = "restart"
	DecisionStop    Decision = "stop"
)

// StopEvent announces that the listener loop faulted and needs a decision.
type StopEvent struct {
	Addr     string    `json:"addr"`
	Err      string    `json:"error"`
	Restarts int       `json:"restarts"`
	At       time.Time `json:"at"`
}
