package providers

import (
	"errors"
	"io"
	"time"
)

// shutdownTimeout bounds how long Shutdown waits for in-flight runs and
// HTTP requests.
const shutdownTimeout = 30 * time.Second

// closeAll closes every element that holds resources and joins the errors.
func closeAll[T any](items []T) error {
	var errs []error
	for _, it := range items {
		if c, ok := any(it).(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
