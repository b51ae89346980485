// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dptx

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected      = errors.New("sink not connected")
	ErrTimeout           = errors.New("aux timeout")
	ErrNack              = errors.New("aux nack")
	ErrDefer             = errors.New("aux defer")
	ErrChannel           = errors.New("aux receive error")
	ErrNoFurtherFallback = errors.New("no further fallback")
	ErrSizeViolation     = errors.New("aux payload exceeds 16 bytes")
	ErrNoCapability      = errors.New("sink capability unreadable")
	ErrConnectorLimit    = errors.New("connector limit reached")
)

// TrainingError is returned when a training phase gives up.
// Err, if set, is the AUX or cancellation error that ended the phase.
type TrainingError struct {
	Phase      Phase
	Iterations int
	Err        error
}

func (e *TrainingError) Error() string {
	s := fmt.Sprintf("link training failed: %v after %d iterations",
		e.Phase, e.Iterations)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *TrainingError) Unwrap() error { return e.Err }

// ConfigMissingError names the calibration or board entry that is absent.
type ConfigMissingError struct {
	Key string
}

func (e *ConfigMissingError) Error() string {
	return "config missing: " + e.Key
}

// SignalError rejects a drive level whose swing and pre-emphasis exceed 3.
type SignalError struct {
	Lane   int
	Signal Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("lane %d: invalid drive level %v", e.Lane, e.Signal)
}

// IsFatal reports errors that abort an enable rather than trigger fallback.
func IsFatal(err error) bool {
	var cm *ConfigMissingError
	var se *SignalError
	return errors.As(err, &cm) || errors.As(err, &se)
}

// TrainingPhase returns the failed phase if err is a TrainingError.
func TrainingPhase(err error) (Phase, bool) {
	var te *TrainingError
	if errors.As(err, &te) {
		return te.Phase, true
	}
	return 0, false
}
