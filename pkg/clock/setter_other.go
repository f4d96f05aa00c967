//go:build !linux

package clock

import (
	"errors"
	"time"
)

type SystemSetter struct{}

func (SystemSetter) Set(time.Time) error {
	return errors.New("setting the system clock is only supported on linux")
}
