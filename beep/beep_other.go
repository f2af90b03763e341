//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"

	"github.com/gen2brain/malgo"

	"halo/log"
)

var (
	playCtx     *malgo.AllocatedContext
	playCtxOnce sync.Once
)

func playbackContext() *malgo.AllocatedContext {
	playCtxOnce.Do(func() {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			log.Warnf("malgo playback init error: %v", err)
			return
		}
		playCtx = ctx
	})
	return playCtx
}

func playSamples(samples []int16) {
	ctx := playbackContext()
	if ctx == nil || len(samples) == 0 {
		return
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 2
	cfg.SampleRate = sampleRate

	done := make(chan struct{})
	var once sync.Once
	pos := 0
	onData := func(out, _ []byte, frameCount uint32) {
		n := int(frameCount) * 2
		for i := 0; i < n; i++ {
			var s int16
			if pos < len(samples) {
				s = samples[pos]
				pos++
			}
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		if pos >= len(samples) {
			once.Do(func() { close(done) })
		}
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		log.Warnf("malgo playback error: %v", err)
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		log.Warnf("malgo playback error: %v", err)
		return
	}
	<-done
	dev.Stop()
}
