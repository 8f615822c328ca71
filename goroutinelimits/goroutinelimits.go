package goroutinelimits

import (
	"context"
	"fmt"
)

const (
	MaxCatalogRoutines = 8
)

/*
limit the number of goroutines we run to a specific number(e.g 8)
see this idiom: https://play.golang.org/p/seEp-erXjG6 ,
*/
type CoroutineGuardian struct {
	Guard chan struct{}
}

func CreateCoroutineGuardian(maximumRoutines int) (*CoroutineGuardian, error) {
	if maximumRoutines < 1 {
		return nil, fmt.Errorf("maximum routines must be positive, got %d", maximumRoutines)
	}
	return &CoroutineGuardian{Guard: make(chan struct{}, maximumRoutines)}, nil
}

// WaitContext takes a slot, giving up when ctx is done
func (guardi *CoroutineGuardian) WaitContext(ctx context.Context) error {
	select {
	case guardi.Guard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (guardi *CoroutineGuardian) Release() {
	<-guardi.Guard
}
