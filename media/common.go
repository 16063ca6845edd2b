package media

import (
	"time"

	"github.com/xaionaro-go/avcore/types"
)

// Common holds the metadata shared by every media unit.
type Common struct {
	PTS      int64
	TimeBase types.Rational

	// Complete is false until the unit was filled with valid data.
	Complete bool
	Key      bool

	// Discontinuous marks the first unit after a gap in the time line.
	Discontinuous bool
}

func (c *Common) GetCommon() *Common {
	return c
}

func (c *Common) IsComplete() bool {
	return c != nil && c.Complete
}

// Position returns the time stamp as a duration; zero if the time stamp is
// not set.
func (c *Common) Position() time.Duration {
	if c.PTS == types.NoPTS {
		return 0
	}
	return toDuration(c.PTS, c.TimeBase.Float64())
}

// SetTimeBase rebases PTS into the given time base.
func (c *Common) SetTimeBase(tb types.Rational) {
	c.PTS = types.Rescale(c.PTS, c.TimeBase, tb)
	c.TimeBase = tb
}

func toDuration(ts int64, timeBase float64) time.Duration {
	seconds := float64(ts) * float64(timeBase)
	return time.Duration(float64(time.Second) * seconds)
}

// Media is any unit that flows through the data path.
type Media interface {
	GetCommon() *Common
	IsComplete() bool
}
