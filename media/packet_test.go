package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/types"
)

func TestPacketRescaleTimeStamps(t *testing.T) {
	pkt := NewPacket()
	pkt.TimeBase = types.NewRational(1, 1000)
	pkt.PTS = 40
	pkt.DTS = 20
	pkt.Duration = 40
	pkt.Data = []byte{1, 2, 3}

	cpy := pkt.Clone()
	cpy.RescaleTimeStamps(types.NewRational(1, 90000))
	require.Equal(t, int64(3600), cpy.PTS)
	require.Equal(t, int64(1800), cpy.DTS)
	require.Equal(t, int64(3600), cpy.Duration)
	require.Equal(t, 40*time.Millisecond, cpy.FrameDuration())

	require.Equal(t, int64(40), pkt.PTS, "the original must be untouched")
	cpy.Data[0] = 9
	require.Equal(t, byte(1), pkt.Data[0])
}

func TestPacketReset(t *testing.T) {
	pkt := NewPacket()
	pkt.PTS = 1
	pkt.Complete = true
	pkt.Data = append(pkt.Data, 1, 2)
	pkt.Reset()
	require.Equal(t, types.NoPTS, pkt.PTS)
	require.False(t, pkt.IsComplete())
	require.Zero(t, pkt.Size())
}

func TestPosition(t *testing.T) {
	a := NewAudio(48000, types.ChannelLayoutStereo, 1)
	require.Zero(t, a.Position())
	a.TimeBase = types.NewRational(1, 48000)
	a.PTS = 48000
	require.Equal(t, time.Second, a.Position())
	a.SetTimeBase(types.NewRational(1, 1000))
	require.Equal(t, int64(1000), a.PTS)
}
