package app

import (
	"testing"
	"time"

	"github.com/appetiteclub/delivery/services/delivery/internal/delivery"
	"github.com/aquamarinepk/aqm"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *aqm.Config
		wantErr bool
	}{
		{name: "withConfig", config: aqm.NewConfig()},
		{name: "withoutConfig", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.config, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && a.logger == nil {
				t.Error("New() should default the logger")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	a, err := New(aqm.NewConfig(), aqm.NewNoopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	fee, err := a.deliveryFee()
	if err != nil {
		t.Fatalf("deliveryFee() error = %v", err)
	}
	if !fee.Equal(delivery.MustMoney(delivery.DefaultDeliveryFee)) {
		t.Errorf("fee = %s, want %s", fee, delivery.DefaultDeliveryFee)
	}
	if loc := a.location(); loc != time.UTC {
		t.Errorf("location = %v, want UTC", loc)
	}
}
