package pending

// Kind identifies an operation slot. At most one operation per Kind is
// pending at any time.
type Kind int

const (
	Scan Kind = iota
	StopScan
	Connect
	Disconnect
	DiscoverServices
	Read
	Write
	MTU
	Notifications
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{Scan, StopScan, Connect, Disconnect, DiscoverServices, Read, Write, MTU, Notifications}

var kindNames = map[Kind]string{
	Scan:             "SCAN",
	StopScan:         "STOP_SCAN",
	Connect:          "CONNECT",
	Disconnect:       "DISCONNECT",
	DiscoverServices: "DISCOVER_SERVICES",
	Read:             "READ",
	Write:            "WRITE",
	MTU:              "MTU",
	Notifications:    "NOTIFICATIONS",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}
