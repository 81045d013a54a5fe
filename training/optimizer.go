package training

import "sync"

// LRSetter is the part of an optimizer a scheduler needs: reading and
// replacing its learning rate
type LRSetter interface {
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// BasicOptimizer holds only a learning rate. It stands in for a real
// optimizer in loops that read the scheduled value back as a scalar.
type BasicOptimizer struct {
	learningRate float64
	mutex        sync.RWMutex
}

// NewBasicOptimizer creates a BasicOptimizer starting at lr
func NewBasicOptimizer(lr float64) *BasicOptimizer {
	return &BasicOptimizer{learningRate: lr}
}

// GetLR returns the current learning rate
func (o *BasicOptimizer) GetLR() float64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.learningRate
}

// SetLR sets the learning rate
func (o *BasicOptimizer) SetLR(lr float64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.learningRate = lr
}
