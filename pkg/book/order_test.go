package book

import (
	"strings"
	"testing"
)

func validOrder() Order {
	return Order{
		FromAsset:  "ETH",
		ToAsset:    "USDC",
		FromAmount: "1000000000000000000",
		ToAmount:   "2000000000000000000",
		Side:       Sell,
		Owner:      "0xU",
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Order)
		wantErr string // substring of a reason, "" = valid
	}{
		{"valid", func(o *Order) {}, ""},
		{"equal assets", func(o *Order) { o.ToAsset = o.FromAsset }, "must differ"},
		{"missing from asset", func(o *Order) { o.FromAsset = "" }, "fromAsset is required"},
		{"missing owner", func(o *Order) { o.Owner = "" }, "ownerAddress is required"},
		{"bad side", func(o *Order) { o.Side = "long" }, "side must be"},
		{"zero amount", func(o *Order) { o.FromAmount = "0" }, "fromAmount must be a positive"},
		{"negative amount", func(o *Order) { o.FromAmount = "-5" }, "fromAmount must be a positive"},
		{"garbage price", func(o *Order) { o.ToAmount = "abc" }, "toAmount must be a positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(&o)
			reasons := o.Validate()
			if tt.wantErr == "" {
				if len(reasons) != 0 {
					t.Errorf("expected valid, got reasons %v", reasons)
				}
				return
			}
			found := false
			for _, r := range reasons {
				if strings.Contains(r, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("reasons %v missing %q", reasons, tt.wantErr)
			}
		})
	}
}

func TestNormalizeDeadline(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"seconds converted", 1_700_000_000, 1_700_000_000_000},
		{"millis unchanged", 1_700_000_000_000, 1_700_000_000_000},
		{"zero unchanged", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDeadline(tt.in); got != tt.want {
				t.Errorf("NormalizeDeadline(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewOrderID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewOrderID(1_700_000_000_000)
		if !strings.HasPrefix(id, "ord-1700000000000-") {
			t.Fatalf("unexpected id shape %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
