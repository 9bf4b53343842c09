package segbuffer

import (
	"testing"

	"github.com/matryer/is"

	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
)

func testItem(start, duration float64) Item {
	return Item{
		Segment: m3u8.Segment{
			ID:        "seg",
			URI:       "seg.mp4",
			Duration:  duration,
			StartTime: start,
		},
		Bandwidth: 800000,
		Path:      "/tmp/seg.mp4",
	}
}

func TestRegisterTracksDurationAndUpTo(t *testing.T) {
	is := is.New(t)
	b := New(20, 5)

	b.Register(testItem(0, 4))
	is.Equal(b.BufferedDuration(), 4.0) // one 4s item registered
	is.Equal(b.BufferedUpTo(), 4.0)     // buffered through first item end

	b.Register(testItem(4, 4))
	is.Equal(b.BufferedDuration(), 8.0)
	is.Equal(b.BufferedUpTo(), 8.0)
}

func TestInitiallyReadyFiresExactlyOnce(t *testing.T) {
	is := is.New(t)
	b := New(20, 5)

	ready := 0
	increased := 0
	b.SetHandlers(Handlers{
		InitiallyReady: func() { ready++ },
		Increased:      func() { increased++ },
	})

	b.Register(testItem(0, 4))
	is.Equal(ready, 0) // 4s buffered, below 5s minimum
	is.Equal(increased, 1)

	b.Register(testItem(4, 4))
	is.Equal(ready, 1) // crossed the minimum
	is.Equal(increased, 2)

	b.Register(testItem(8, 4))
	is.Equal(ready, 1) // one-shot, must not fire again
	is.Equal(increased, 3)
}

func TestReadinessThresholds(t *testing.T) {
	is := is.New(t)
	b := New(10, 5)

	is.True(b.ShouldFill())
	is.True(!b.IsReadyToPlay())

	b.Register(testItem(0, 6))
	is.True(b.ShouldFill()) // 6s < 10s target
	is.True(b.IsReadyToPlay())

	b.Register(testItem(6, 6))
	is.True(!b.ShouldFill()) // 12s >= 10s target
}

func TestTakeNextFIFOAndDurationDecrement(t *testing.T) {
	is := is.New(t)
	b := New(20, 5)

	b.Register(testItem(0, 4))
	b.Register(testItem(4, 3))

	item, ok := b.TakeNext()
	is.True(ok)
	is.Equal(item.Segment.StartTime, 0.0)
	is.Equal(b.BufferedDuration(), 3.0)

	item, ok = b.TakeNext()
	is.True(ok)
	is.Equal(item.Segment.StartTime, 4.0)
	is.Equal(b.BufferedDuration(), 0.0)

	_, ok = b.TakeNext()
	is.True(!ok) // cursor at tail
}

func TestPeekNextDoesNotConsume(t *testing.T) {
	is := is.New(t)
	b := New(20, 5)

	b.Register(testItem(0, 4))

	item, ok := b.PeekNext()
	is.True(ok)
	is.Equal(item.Segment.StartTime, 0.0)
	is.Equal(b.BufferedDuration(), 4.0) // unchanged

	again, ok := b.PeekNext()
	is.True(ok)
	is.Equal(again.Segment.StartTime, 0.0) // cursor unchanged
}

func TestFlushResetsEverything(t *testing.T) {
	is := is.New(t)
	b := New(20, 5)

	ready := 0
	b.SetHandlers(Handlers{InitiallyReady: func() { ready++ }})

	b.Register(testItem(0, 6))
	is.Equal(ready, 1)
	is.True(b.IsReadyToPlay())

	b.Flush()

	is.Equal(b.BufferedDuration(), 0.0)
	is.Equal(b.BufferedUpTo(), 0.0)
	is.Equal(b.Len(), 0)
	is.True(!b.IsReadyToPlay()) // only Flush makes readiness false again
	_, ok := b.TakeNext()
	is.True(!ok)

	// The one-shot flag resets with the buffer instance state.
	b.Register(testItem(0, 6))
	is.Equal(ready, 2)
}

func TestSetBufferedUpTo(t *testing.T) {
	is := is.New(t)
	b := New(20, 5)

	b.SetBufferedUpTo(30)
	is.Equal(b.BufferedUpTo(), 30.0) // forced position for post-seek fill

	// A later Register overrides the forced position with its own end time.
	b.Register(testItem(30, 4))
	is.Equal(b.BufferedUpTo(), 34.0)
}

func TestDefaultThresholds(t *testing.T) {
	is := is.New(t)
	b := New(0, 0)

	is.Equal(b.target, DefaultTargetDuration)
	is.Equal(b.minimum, DefaultMinimumDuration)
}
