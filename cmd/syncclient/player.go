package main

import (
	"sync"
	"time"
)

// virtualPlayer is a player without output: its position advances with the
// wall clock while playing.
type virtualPlayer struct {
	mu       sync.Mutex
	videoRef string
	position float64
	playing  bool
	since    time.Time
}

func (p *virtualPlayer) Load(videoRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.videoRef = videoRef
	p.position = 0
	p.playing = false
	return nil
}

func (p *virtualPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		p.playing = true
		p.since = time.Now()
	}
	return nil
}

func (p *virtualPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.position = p.positionLocked()
	p.playing = false
	return nil
}

func (p *virtualPlayer) Seek(position float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.position = position
	p.since = time.Now()
	return nil
}

func (p *virtualPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.positionLocked()
}

func (p *virtualPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.playing
}

func (p *virtualPlayer) VideoRef() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.videoRef
}

func (p *virtualPlayer) positionLocked() float64 {
	if !p.playing {
		return p.position
	}

	return p.position + time.Since(p.since).Seconds()
}
