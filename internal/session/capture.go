package session

import (
	"context"
	"log/slog"

	"github.com/kryptik-dev/omni/internal/live"
	"github.com/kryptik-dev/omni/pkg/audio"
)

// captureLoop forwards microphone frames to the transport in capture order.
// Each frame feeds the listening-phase meter tap, is encoded to wire PCM,
// and sent; frames arriving after teardown has begun are dropped on the
// floor. The loop exits when the input's frame channel closes.
func (s *Session) captureLoop(conn live.Conn, in audio.Input, done chan struct{}) {
	defer s.wg.Done()

	for frame := range in.Frames() {
		select {
		case <-done:
			// Teardown has begun: keep draining so the device goroutine can
			// finish, but send nothing.
			continue
		default:
		}

		if s.state.State() == Listening {
			s.meter.Set(audio.RMS(frame.Samples))
		}

		pcm := audio.EncodePCM16(frame.Samples)
		if err := conn.SendAudio(pcm); err != nil {
			slog.Warn("send capture frame", "err", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.AudioFramesSent.Add(context.Background(), 1)
		}
	}
}
