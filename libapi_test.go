package warren

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestNewToleratesNilInputs(t *testing.T) {
	app := New[struct{}](nil, nil, struct{}{}, Dependencies{})
	if app == nil {
		t.Fatal("expected an app instance")
	}

	if err := app.Run(context.Background()); !errors.Is(err, ErrNoHandlers) {
		t.Fatalf("expected ErrNoHandlers, got: %v", err)
	}
}

func TestHandlerConfigExport(t *testing.T) {
	cfg := NewHandlerConfig()
	if cfg.Exchange != DirectExchange {
		t.Fatalf("unexpected default exchange: %q", cfg.Exchange)
	}
	if cfg.Prefetch != DefaultPrefetch {
		t.Fatalf("unexpected default prefetch: %d", cfg.Prefetch)
	}
	if got := cfg.WithQueue("custom").QueueName("orders.create"); got != "custom" {
		t.Fatalf("unexpected queue name: %q", got)
	}
}

func TestResponderExports(t *testing.T) {
	responder := ProtoResponder(func(herr *HandlerError) *wrapperspb.StringValue {
		return wrapperspb.String(herr.Error())
	})

	payload, err := responder.Encode(wrapperspb.String("ok"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded wrapperspb.StringValue
	if err := proto.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.GetValue() != "ok" {
		t.Fatalf("unexpected round-trip value: %q", decoded.GetValue())
	}

	raw := BytesResponder(func(*HandlerError) []byte { return nil })
	if got, _ := raw.Encode([]byte("raw")); string(got) != "raw" {
		t.Fatalf("unexpected bytes encoding: %q", got)
	}

	void := VoidResponder()
	if got, _ := void.Encode(Void{}); got != nil {
		t.Fatalf("void responder produced a payload: %q", got)
	}
}

func TestErrorConstructors(t *testing.T) {
	cause := errors.New("bad payload")

	herr := InvalidRequest(cause)
	if herr.Kind != ErrorKindInvalidRequest || !errors.Is(herr, cause) {
		t.Fatalf("unexpected error: %+v", herr)
	}

	herr = InternalError(cause)
	if herr.Kind != ErrorKindInternal || !errors.Is(herr, cause) {
		t.Fatalf("unexpected error: %+v", herr)
	}
}

func TestBroadcastExport(t *testing.T) {
	b := NewBroadcast()
	b.Trigger()
	if !b.Triggered() {
		t.Fatal("broadcast should be triggered")
	}
}
