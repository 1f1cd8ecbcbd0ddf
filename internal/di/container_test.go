package di

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ukisoft/ownplate/internal/payments"
	"github.com/ukisoft/ownplate/internal/platform/config"
	"github.com/ukisoft/ownplate/internal/repositories/memory"
)

func testConfig() config.Config {
	return config.Config{
		Region: config.RegionConfig{
			Currency:      "JPY",
			Multiple:      1,
			Timezone:      "Asia/Tokyo",
			DefaultLocale: "ja",
		},
	}
}

func TestNewContainerBuildsServices(t *testing.T) {
	container, err := NewContainer(testConfig(), Infrastructure{
		Store:     memory.NewStore(),
		Processor: payments.DisabledProcessor{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if container.Services.Orders == nil || container.Services.Payments == nil {
		t.Fatalf("expected services to be wired, got %+v", container.Services)
	}
}

func TestNewContainerRequiresInfrastructure(t *testing.T) {
	if _, err := NewContainer(testConfig(), Infrastructure{Processor: payments.DisabledProcessor{}}); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := NewContainer(testConfig(), Infrastructure{Store: memory.NewStore()}); err == nil {
		t.Fatalf("expected missing processor error")
	}

	cfg := testConfig()
	cfg.Region.Multiple = 0
	_, err := NewContainer(cfg, Infrastructure{Store: memory.NewStore(), Processor: payments.DisabledProcessor{}})
	if err == nil || !strings.Contains(err.Error(), "order service") {
		t.Fatalf("expected order service error for zero multiple, got %v", err)
	}
}

func TestRegionFromConfig(t *testing.T) {
	region := RegionFromConfig(testConfig().Region)
	if region.Currency != "JPY" || region.Multiple != 1 || region.Locale != "ja" {
		t.Fatalf("unexpected region %+v", region)
	}
	if region.Location == nil || region.Location.String() != "Asia/Tokyo" {
		t.Fatalf("expected Asia/Tokyo location, got %v", region.Location)
	}
}

func TestCloseRunsHooksInReverseOrder(t *testing.T) {
	container, err := NewContainer(testConfig(), Infrastructure{
		Store:     memory.NewStore(),
		Processor: payments.DisabledProcessor{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var order []string
	failure := errors.New("close failed")
	container.OnClose(func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	container.OnClose(func(context.Context) error {
		order = append(order, "second")
		return failure
	})

	err = container.Close(context.Background())
	if !errors.Is(err, failure) {
		t.Fatalf("expected joined close error, got %v", err)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Fatalf("unexpected close order %v", order)
	}
	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}
}
