package domain

// NetworkClass is the coarse type of the active network connection.
type NetworkClass string

const (
	NetworkWiFi      NetworkClass = "wifi"
	NetworkEthernet  NetworkClass = "ethernet"
	NetworkVPN       NetworkClass = "vpn"
	NetworkWiMAX     NetworkClass = "wimax"
	NetworkBluetooth NetworkClass = "bluetooth"
	NetworkCellular  NetworkClass = "cellular"
	NetworkNone      NetworkClass = "none"
	NetworkUnknown   NetworkClass = "unknown"
)

// Unrestricted reports whether downloads may proceed without confirmation.
func (c NetworkClass) Unrestricted() bool {
	switch c {
	case NetworkWiFi, NetworkEthernet, NetworkVPN, NetworkWiMAX, NetworkBluetooth:
		return true
	default:
		return false
	}
}

// ParseNetworkClass maps a configuration string to a class.
func ParseNetworkClass(s string) NetworkClass {
	switch c := NetworkClass(s); c {
	case NetworkWiFi, NetworkEthernet, NetworkVPN, NetworkWiMAX, NetworkBluetooth, NetworkCellular, NetworkNone:
		return c
	default:
		return NetworkUnknown
	}
}
