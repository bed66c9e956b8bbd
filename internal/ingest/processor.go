package ingest

import (
	"context"

	"github.com/danmuck/qrgate/internal/codec"
	"github.com/danmuck/qrgate/internal/dispatch"
	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/verify"
)

// Processor runs one raw message through decode, verification and dispatch.
// Every stage failure is returned as a failure Outcome.
type Processor struct {
	gate      *verify.Gate
	forwarder dispatch.Forwarder
}

func NewProcessor(gate *verify.Gate, forwarder dispatch.Forwarder) *Processor {
	return &Processor{gate: gate, forwarder: forwarder}
}

func (p *Processor) Process(ctx context.Context, raw []byte) notify.Outcome {
	payload, err := codec.Decode(raw)
	if err != nil {
		return notify.Failure(notify.ReasonDecode, err.Error())
	}

	res := p.gate.Verify(payload)
	if !res.Valid {
		return notify.Failure(notify.ReasonVerification, res.Detail)
	}

	if p.forwarder == nil {
		return notify.Failure(notify.ReasonDispatch, "no access service configured")
	}
	out := p.forwarder.Dispatch(ctx, res.Payload)
	if !out.OK {
		return notify.Failure(notify.ReasonDispatch, out.Detail)
	}
	return notify.Success(res.Payload)
}
