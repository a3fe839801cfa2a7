package speech

import "sync"

// MockSink records every call for tests and for running the bridge without
// a real synthesizer.
type MockSink struct {
	mu      sync.Mutex
	spoken  []string
	braille []string
	stops   int

	// SpeakErr, when set, is returned by every Speak call.
	SpeakErr error
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Initialize() bool { return true }

func (m *MockSink) Speak(text string, interrupt bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SpeakErr != nil {
		return m.SpeakErr
	}
	if text == "" {
		return nil
	}
	m.spoken = append(m.spoken, text)
	return nil
}

func (m *MockSink) DisplayBraille(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if text == "" {
		return nil
	}
	m.braille = append(m.braille, text)
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *MockSink) Active() bool { return false }

// Spoken returns a copy of all texts passed to Speak.
func (m *MockSink) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// BrailleShown returns a copy of all texts passed to DisplayBraille.
func (m *MockSink) BrailleShown() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.braille...)
}

// StopCalls reports how many times Stop was invoked.
func (m *MockSink) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
