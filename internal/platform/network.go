// Package platform adapts host facilities the session depends on.
package platform

import (
	"context"
	"fmt"
	"net"
	"strings"

	"spokestack-tray/internal/domain"
)

// StaticNetwork reports a fixed network class, typically from configuration.
type StaticNetwork domain.NetworkClass

// Class returns the configured class.
func (n StaticNetwork) Class(context.Context) (domain.NetworkClass, error) {
	return domain.NetworkClass(n), nil
}

// NetworkProbe classifies the host's active interfaces by name.
type NetworkProbe struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// NewNetworkProbe creates a probe backed by the operating system.
func NewNetworkProbe() *NetworkProbe {
	return &NetworkProbe{
		interfaces: net.Interfaces,
		addrs:      func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() },
	}
}

var interfacePrefixes = []struct {
	prefix string
	class  domain.NetworkClass
}{
	{"wlan", domain.NetworkWiFi},
	{"wlp", domain.NetworkWiFi},
	{"wl", domain.NetworkWiFi},
	{"wi-fi", domain.NetworkWiFi},
	{"eth", domain.NetworkEthernet},
	{"enp", domain.NetworkEthernet},
	{"eno", domain.NetworkEthernet},
	{"ens", domain.NetworkEthernet},
	{"en", domain.NetworkEthernet},
	{"ethernet", domain.NetworkEthernet},
	{"utun", domain.NetworkVPN},
	{"tun", domain.NetworkVPN},
	{"tap", domain.NetworkVPN},
	{"wg", domain.NetworkVPN},
	{"ppp", domain.NetworkVPN},
	{"bnep", domain.NetworkBluetooth},
	{"wwan", domain.NetworkCellular},
	{"rmnet", domain.NetworkCellular},
	{"ccmni", domain.NetworkCellular},
	{"pdp_ip", domain.NetworkCellular},
}

var virtualPrefixes = []string{"docker", "br-", "veth", "virbr", "vmnet", "vboxnet", "awdl", "llw", "anpi", "bridge"}

// rank orders classes from most to least preferred when several are up.
var rank = map[domain.NetworkClass]int{
	domain.NetworkEthernet:  0,
	domain.NetworkWiFi:      1,
	domain.NetworkVPN:       2,
	domain.NetworkBluetooth: 3,
	domain.NetworkCellular:  4,
	domain.NetworkUnknown:   5,
}

// Class returns the best class among interfaces that are up and addressed.
func (p *NetworkProbe) Class(context.Context) (domain.NetworkClass, error) {
	ifaces, err := p.interfaces()
	if err != nil {
		return domain.NetworkUnknown, fmt.Errorf("list network interfaces: %w", err)
	}

	best := domain.NetworkNone
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		name := strings.ToLower(iface.Name)
		if isVirtual(name) {
			continue
		}
		addrs, err := p.addrs(iface)
		if err != nil || len(addrs) == 0 {
			continue
		}

		class := classify(name)
		if best == domain.NetworkNone || rank[class] < rank[best] {
			best = class
		}
	}
	return best, nil
}

func classify(name string) domain.NetworkClass {
	for _, candidate := range interfacePrefixes {
		if strings.HasPrefix(name, candidate.prefix) {
			return candidate.class
		}
	}
	return domain.NetworkUnknown
}

func isVirtual(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
