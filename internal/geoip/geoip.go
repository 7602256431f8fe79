// Package geoip maps player addresses to country codes using a configured
// table of networks.
package geoip

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/cache"
)

// Unknown is reported for addresses outside every configured network.
const Unknown = "--"

type network struct {
	ipNet *net.IPNet
	code  string
}

// Table resolves country codes. Lookups are cached per address.
type Table struct {
	networks []network
	cache    *cache.Cache
}

// NewTable parses the configured networks. More specific networks should be
// listed first; the first match wins.
func NewTable(networks []core.GeoIPNetwork, ttl time.Duration) (*Table, error) {
	t := &Table{cache: cache.New(ttl)}
	for _, n := range networks {
		_, ipNet, err := net.ParseCIDR(n.CIDR)
		if err != nil {
			return nil, fmt.Errorf("invalid geoip network %q: %w", n.CIDR, err)
		}
		t.networks = append(t.networks, network{ipNet: ipNet, code: strings.ToUpper(n.Code)})
	}
	return t, nil
}

// Lookup returns the country code of ip, or Unknown.
func (t *Table) Lookup(ip string) string {
	if v, ok := t.cache.Get(ip); ok {
		return v.(string)
	}

	code := Unknown
	if addr := net.ParseIP(ip); addr != nil {
		for _, n := range t.networks {
			if n.ipNet.Contains(addr) {
				code = n.code
				break
			}
		}
	}
	t.cache.Put(ip, code, 0)
	return code
}
