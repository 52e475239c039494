package adapter

import (
	"context"
	"fmt"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/export"
)

// CallbackFunc is a user-supplied sink for exported spans. A returned
// error marks the batch as failed without panicking the processor.
type CallbackFunc func(spans []*cleanspan.CleanSpan) error

// Callback is the "callback" adapter class: it hands each batch to a
// host-application function, catching panics the same way
// DataDog-dd-trace-go's stats reporter recovers around user-supplied
// hooks so one bad callback cannot take down the batch processor.
type Callback struct {
	Fn CallbackFunc
}

// NewCallback wraps fn as an Adapter.
func NewCallback(fn CallbackFunc) *Callback {
	return &Callback{Fn: fn}
}

func (c *Callback) Name() string { return string(export.ClassCallback) }

func (c *Callback) ExportSpans(ctx context.Context, spans []*cleanspan.CleanSpan) (result export.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = export.Failed(fmt.Errorf("adapter/callback: panic: %v", r))
		}
	}()
	if c.Fn == nil {
		return export.OK()
	}
	if err := c.Fn(spans); err != nil {
		return export.Failed(err)
	}
	return export.OK()
}

func (c *Callback) Shutdown(ctx context.Context) export.Result { return export.OK() }
