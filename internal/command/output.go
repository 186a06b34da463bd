package command

import (
	"StrategyVault/internal/observability"
)

// ChannelOutput fans command outputs out to the shell workers. The persist
// channel uses a BLOCKING send so nothing is lost: if persistence falls
// behind, the runner stalls. Projection and publish sends are NON-BLOCKING
// and drop when full; projections rebuild from the event log and downstream
// consumers can read it directly.
type ChannelOutput struct {
	persist    chan<- Output
	projection chan<- Output
	publish    chan<- Output
	metrics    *observability.Metrics
}

func NewChannelOutput(persist, projection, publish chan<- Output, metrics *observability.Metrics) *ChannelOutput {
	return &ChannelOutput{
		persist:    persist,
		projection: projection,
		publish:    publish,
		metrics:    metrics,
	}
}

func (c *ChannelOutput) Emit(out Output) {
	if c.persist != nil {
		select {
		case c.persist <- out:
		default:
			if c.metrics != nil {
				c.metrics.PersistBackpressure.Inc()
			}
			c.persist <- out
		}
	}

	if len(out.Events) == 0 {
		return
	}

	if c.projection != nil {
		select {
		case c.projection <- out:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.Inc()
			}
		}
	}

	if c.publish != nil && !out.Replayed {
		select {
		case c.publish <- out:
		default:
			if c.metrics != nil {
				c.metrics.PublishDrops.Inc()
			}
		}
	}
}
