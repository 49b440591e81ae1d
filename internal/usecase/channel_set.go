package usecase

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/user/meter-logger/internal/buffer"
	"github.com/user/meter-logger/internal/domain"
	"github.com/user/meter-logger/internal/source"
)

// ChannelPipeline ties one channel's source collection to its transfer
// buffer. The source side is safe for concurrent producers; the buffer side
// is owned by the transfer loop.
type ChannelPipeline struct {
	Channel *domain.Channel
	Source  *source.MemorySource
	Buffer  *buffer.TransferBuffer
}

// ChannelSet owns the per-channel pipelines shared by the ingest and
// transfer use cases. Pipelines are created on first use of a channel name.
type ChannelSet struct {
	mu             sync.RWMutex
	pipelines      map[string]*ChannelPipeline
	targetCapacity int
	logger         *slog.Logger
}

// NewChannelSet creates an empty channel set. targetCapacity is applied to
// every transfer buffer the set creates.
func NewChannelSet(targetCapacity int, logger *slog.Logger) *ChannelSet {
	return &ChannelSet{
		pipelines:      make(map[string]*ChannelPipeline),
		targetCapacity: targetCapacity,
		logger:         logger,
	}
}

// Get returns the pipeline for the named channel, creating it on first use.
func (cs *ChannelSet) Get(name string) *ChannelPipeline {
	cs.mu.RLock()
	p, ok := cs.pipelines[name]
	cs.mu.RUnlock()
	if ok {
		return p
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if p, ok := cs.pipelines[name]; ok {
		return p
	}
	ch := domain.NewChannel(name, "")
	p = &ChannelPipeline{
		Channel: ch,
		Source:  source.New(),
		Buffer:  buffer.New(cs.targetCapacity, buffer.WithLogger(cs.logger)),
	}
	cs.pipelines[name] = p
	cs.logger.Info("registered channel", "channel", name, "channel_id", ch.ID)
	return p
}

// All returns every pipeline, ordered by channel name for deterministic
// transfer cycles.
func (cs *ChannelSet) All() []*ChannelPipeline {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	names := make([]string, 0, len(cs.pipelines))
	for name := range cs.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*ChannelPipeline, 0, len(names))
	for _, name := range names {
		out = append(out, cs.pipelines[name])
	}
	return out
}
