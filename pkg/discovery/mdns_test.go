package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
)

func TestAddrOf(t *testing.T) {
	addr, ok := addrOf(&mdns.ServiceEntry{AddrV4: net.IPv4(192, 168, 1, 20), Port: 8080})
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.20:8080", addr)

	_, ok = addrOf(&mdns.ServiceEntry{Port: 8080})
	assert.False(t, ok)
	_, ok = addrOf(&mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1)})
	assert.False(t, ok)
	_, ok = addrOf(nil)
	assert.False(t, ok)
}
