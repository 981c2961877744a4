package skinanalysis

import (
	"context"
	"sync"
	"time"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegBytes = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), make([]byte, 32)...)
	webpBytes = append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), make([]byte, 32)...)
	textBytes = []byte("definitely not a photo of a rash")
)

type stubPredictor struct {
	mu     sync.Mutex
	calls  int
	result *InferenceResult
	err    error
	last   string
}

func (s *stubPredictor) Predict(_ context.Context, filename, contentType string, _ []byte) (*InferenceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = filename + "|" + contentType
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubLimiter struct {
	counts map[string]int64
	err    error
}

func (s *stubLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}
