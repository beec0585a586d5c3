//go:build integration

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestBusPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	b, err := New(ctx, "redis://"+endpoint, "aos-test", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	fwd := NewForwarder(b)
	if err := fwd.Forward(ctx, delegation.Specialist{Name: "Infra"}, delegation.Handoff{Utterance: "restart the cluster", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ch := b.Subscribe(subCtx, SpecialistStream("Infra"), true)

	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed before delivering")
		}
		if env.Kind != KindHandoff || env.From != "aos-test" {
			t.Errorf("unexpected envelope: %+v", env)
		}
		var h delegation.Handoff
		if err := env.Decode(&h); err != nil {
			t.Fatal(err)
		}
		if h.Utterance != "restart the cluster" {
			t.Errorf("utterance = %q", h.Utterance)
		}
	case <-subCtx.Done():
		t.Fatal("timed out waiting for hand-off")
	}
}
