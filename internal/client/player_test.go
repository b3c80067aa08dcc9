package client

import "sync"

type recordingPlayer struct {
	mu       sync.Mutex
	videoRef string
	position float64
	playing  bool
}

func (p *recordingPlayer) Load(videoRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoRef, p.position, p.playing = videoRef, 0, false
	return nil
}

func (p *recordingPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	return nil
}

func (p *recordingPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *recordingPlayer) Seek(position float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	return nil
}

func (p *recordingPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *recordingPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *recordingPlayer) VideoRef() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoRef
}
