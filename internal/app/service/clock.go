package service

import "time"

// Clock abstrae time.Now para poder manejar el tiempo en los tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func RealClock() Clock { return realClock{} }
