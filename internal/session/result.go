package session

import (
	"github.com/srg/blite/internal/device"
)

// ScanResult resolves StartScan with every device accepted by the scan filters,
// in discovery order.
type ScanResult struct {
	Devices []device.Device `json:"devices"`
	Error   *device.Error   `json:"error"`
}

type StopScanResult struct {
	IsScanning bool          `json:"isScanning"`
	Error      *device.Error `json:"error"`
}

// ConnectResult resolves both Connect and Disconnect.
type ConnectResult struct {
	IsConnected bool          `json:"isConnected"`
	Error       *device.Error `json:"error"`
}

type ServicesResult struct {
	Services []device.ServiceInfo `json:"services"`
	Error    *device.Error        `json:"error"`
}

// TransactionResult resolves reads and writes. Bytes is the raw payload;
// Value is its text form when AutoDecodeBytes is set.
type TransactionResult struct {
	Value string        `json:"value,omitempty"`
	Bytes []byte        `json:"bytes"`
	Error *device.Error `json:"error"`
}

type NotificationResult struct {
	Service        string        `json:"service"`
	Characteristic string        `json:"characteristic"`
	IsNotifying    bool          `json:"isNotifying"`
	Error          *device.Error `json:"error"`
}

type MTUResult struct {
	MTU   int           `json:"mtu"`
	Error *device.Error `json:"error"`
}

type DestroyResult struct {
	IsDestroyed bool `json:"isDestroyed"`
}
