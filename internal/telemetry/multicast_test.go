package telemetry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspifpv/internal/geo"
	"raspifpv/internal/wire"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer c.Close()
	return c.LocalAddr().(*net.UDPAddr).Port
}

// TestMulticast_EndToEnd runs a real publisher and subscriber over the host's
// multicast route with loopback enabled.
func TestMulticast_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("multicast")
	}
	port := freeUDPPort(t)

	sub, err := NewSubscriber(DefaultMulticastAddress, port)
	require.NoError(t, err)
	if err := sub.Start(context.Background()); err != nil {
		t.Skipf("multicast listen unavailable: %v", err)
	}
	defer sub.Stop()

	positions := []wire.Position{
		{Latitude: 37.0, Longitude: -122.0, Altitude: 100, Bearing: 90},
		{Latitude: 37.001, Longitude: -122.0, Altitude: 100, Bearing: 90},
	}
	next := 0
	pub, err := NewPublisher(DefaultMulticastAddress, port, Sources{
		Position: PositionFunc(func() (wire.Position, bool) {
			if next >= len(positions) {
				return wire.Position{}, false
			}
			p := positions[next]
			next++
			return p, true
		}),
	}, PublisherOptions{Interval: 20 * time.Millisecond, Loopback: true})
	require.NoError(t, err)
	if err := pub.Start(context.Background()); err != nil {
		t.Skipf("multicast send unavailable: %v", err)
	}
	defer pub.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for sub.Stats().Received < 2 {
		if time.Now().After(deadline) {
			t.Skipf("no multicast loopback delivery on this host (received=%d)", sub.Stats().Received)
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := sub.Snapshot()
	assert.Equal(t, Location{Latitude: 37.0, Longitude: -122.0, Altitude: 100}, snap.Home)
	assert.Equal(t, Location{Latitude: 37.001, Longitude: -122.0, Altitude: 100}, snap.Location)

	d := geo.Distance(snap.Home.Latitude, snap.Home.Longitude, snap.Location.Latitude, snap.Location.Longitude)
	assert.InEpsilon(t, 111.0, d, 0.01)
}
