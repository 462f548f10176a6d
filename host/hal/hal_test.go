package hal

import (
	"testing"
)

// =============================================================================
// Speed Tests
// =============================================================================

func TestSpeed_String(t *testing.T) {
	tests := []struct {
		speed    Speed
		expected string
	}{
		{SpeedUnknown, "Unknown"},
		{SpeedLow, "Low Speed"},
		{SpeedFull, "Full Speed"},
		{SpeedHigh, "High Speed"},
		{SpeedSuper, "SuperSpeed"},
		{Speed(255), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.speed.String(); got != tt.expected {
				t.Errorf("Speed(%d).String() = %q, want %q", tt.speed, got, tt.expected)
			}
		})
	}
}

// =============================================================================
// EndpointDescriptor Tests
// =============================================================================

func TestEndpointDescriptor(t *testing.T) {
	tests := []struct {
		name     string
		ep       EndpointDescriptor
		number   uint8
		isIn     bool
		xferType TransferType
	}{
		{"bulk in", EndpointDescriptor{Address: 0x81, Attributes: 0x02}, 1, true, TransferBulk},
		{"bulk out", EndpointDescriptor{Address: 0x02, Attributes: 0x02}, 2, false, TransferBulk},
		{"interrupt in", EndpointDescriptor{Address: 0x83, Attributes: 0x03}, 3, true, TransferInterrupt},
		{"iso out", EndpointDescriptor{Address: 0x0F, Attributes: 0x01}, 15, false, TransferIsochronous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.Number(); got != tt.number {
				t.Errorf("Number() = %d, want %d", got, tt.number)
			}
			if got := tt.ep.IsIn(); got != tt.isIn {
				t.Errorf("IsIn() = %v, want %v", got, tt.isIn)
			}
			if got := tt.ep.TransferType(); got != tt.xferType {
				t.Errorf("TransferType() = %v, want %v", got, tt.xferType)
			}
		})
	}
}

// =============================================================================
// Bulk Endpoint Selection Tests
// =============================================================================

func TestSelectBulkEndpoints(t *testing.T) {
	eps := []EndpointDescriptor{
		{Address: 0x83, Attributes: 0x03}, // interrupt in, ignored
		{Address: 0x02, Attributes: 0x02},
		{Address: 0x81, Attributes: 0x02},
		{Address: 0x84, Attributes: 0x02}, // second bulk in, ignored
	}

	got, ok := SelectBulkEndpoints(eps)
	if !ok {
		t.Fatal("SelectBulkEndpoints() ok = false, want true")
	}
	if got.In != 0x81 || got.Out != 0x02 {
		t.Errorf("SelectBulkEndpoints() = %+v, want In=0x81 Out=0x02", got)
	}
	if !got.Valid() {
		t.Errorf("%+v.Valid() = false, want true", got)
	}

	if _, ok := SelectBulkEndpoints(eps[:2]); ok {
		t.Error("SelectBulkEndpoints() without bulk in: ok = true, want false")
	}
}

func TestBulkEndpoints_Valid(t *testing.T) {
	tests := []struct {
		eps  BulkEndpoints
		want bool
	}{
		{BulkEndpoints{In: 0x81, Out: 0x01}, true},
		{BulkEndpoints{In: 0x01, Out: 0x01}, false},
		{BulkEndpoints{In: 0x81, Out: 0x81}, false},
		{BulkEndpoints{In: 0x80, Out: 0x01}, false},
	}

	for _, tt := range tests {
		if got := tt.eps.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.eps, got, tt.want)
		}
	}
}
