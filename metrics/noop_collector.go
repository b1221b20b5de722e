package metrics

import (
	"time"
)

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (c *NoopCollector) ApiErrorOccurred()                        {}
func (c *NoopCollector) ServerPanicked(error)                     {}
func (c *NoopCollector) OperationSubmitted(uint64)                {}
func (c *NoopCollector) OperationDropped(uint64)                  {}
func (c *NoopCollector) OperationSponsored(uint64)                {}
func (c *NoopCollector) RateLimited(string)                       {}
func (c *NoopCollector) MeasureRequestDuration(time.Time, string) {}
