// Package channel carries live coordinate updates from the streaming reader
// to the aggregation engine.
package channel

import (
	"context"
	"sync"

	"cometflow/logger"
	"cometflow/models"
)

type LiveStats struct {
	Sent    int64
	Dropped int64
}

type Channels struct {
	Live chan models.LiveCoordinates

	stats      LiveStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(liveBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Live: make(chan models.LiveCoordinates, liveBufferSize),
		log:  log,
	}

	log.WithComponent("live_channels").WithFields(logger.Fields{
		"live_buffer_size": liveBufferSize,
	}).Info("live channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Live)
	c.log.WithComponent("live_channels").Info("live channels closed")
}

// SendLive offers a coordinate sample without blocking. A full buffer drops
// the sample; live positions are superseded by the next tick anyway.
func (c *Channels) SendLive(ctx context.Context, msg models.LiveCoordinates) bool {
	select {
	case c.Live <- msg:
		c.incrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementDropped()
		return false
	}
}

func (c *Channels) incrementSent() {
	c.statsMutex.Lock()
	c.stats.Sent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementDropped() {
	c.statsMutex.Lock()
	c.stats.Dropped++
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() LiveStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
