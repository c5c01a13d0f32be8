package identity

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceIDExactFormat(t *testing.T) {
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	assert.NoError(t, err)

	assert.Equal(t, "mmd-rv1-ddeeff-1", DeviceID(mac, "/dev/ttyUSB1"))
}

func TestPortSuffixExtractsTrailingDigits(t *testing.T) {
	assert.Equal(t, "1", portSuffix("/dev/ttyUSB1"))
	assert.Equal(t, "23", portSuffix("/dev/ttyS23"))
}

func TestPortSuffixDefaultsWhenNoTrailingDigits(t *testing.T) {
	assert.Equal(t, "0", portSuffix("/dev/ttyUSB"))
}

func TestResolveMACSkipsLoopback(t *testing.T) {
	mac, err := ResolveMAC()
	if err != nil {
		t.Skipf("no usable network interface in this environment: %v", err)
	}
	assert.NotEmpty(t, mac)
}
