package sensor

import "sync"

// Simulated is a Port returning fixed values, used on hosts without the
// measurement hardware.
type Simulated struct {
	mu       sync.Mutex
	values   Values
	settings Settings
	closed   bool
}

func NewSimulated(v Values) *Simulated {
	return &Simulated{values: v}
}

func (s *Simulated) ReadVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Voltage, nil
}

func (s *Simulated) ReadCurrent() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Current, nil
}

func (s *Simulated) ReadPower() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Power, nil
}

// Set replaces the values returned by subsequent reads.
func (s *Simulated) Set(v Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = v
}

func (s *Simulated) Configure(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Simulated) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
