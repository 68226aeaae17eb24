package train

import (
	"math/rand/v2"

	"hedgesim/internal/policy"
	"hedgesim/internal/sim"
)

const (
	EvictFIFO   = "fifo"
	EvictRandom = "random"

	SampleRecent  = "recent"
	SampleUniform = "uniform"
)

// replayBuffer 有界转移缓冲。淘汰与采样策略可配，
// rng 由 run seed 派生，保证相同配置下采样序列可复现。
// 非并发安全，collector 独占。
type replayBuffer struct {
	capacity int
	eviction string
	sampling string
	rng      *rand.Rand
	items    []policy.Transition
}

func newReplayBuffer(capacity int, eviction, sampling string, seed uint64) (*replayBuffer, error) {
	if capacity <= 0 {
		return nil, &sim.ConfigError{Field: "training.buffer_capacity", Reason: "需 > 0"}
	}
	switch eviction {
	case "", EvictFIFO:
		eviction = EvictFIFO
	case EvictRandom:
	default:
		return nil, &sim.ConfigError{Field: "training.buffer_eviction", Reason: "未知策略 " + eviction}
	}
	switch sampling {
	case "", SampleRecent:
		sampling = SampleRecent
	case SampleUniform:
	default:
		return nil, &sim.ConfigError{Field: "training.buffer_sampling", Reason: "未知策略 " + sampling}
	}
	return &replayBuffer{
		capacity: capacity,
		eviction: eviction,
		sampling: sampling,
		rng:      rand.New(rand.NewPCG(seed, seed^seedBufferMix)),
		items:    make([]policy.Transition, 0, capacity),
	}, nil
}

const seedBufferMix = 0x6a09e667f3bcc909

func (b *replayBuffer) Len() int { return len(b.items) }

func (b *replayBuffer) Add(trs ...policy.Transition) {
	for _, tr := range trs {
		if len(b.items) < b.capacity {
			b.items = append(b.items, tr)
			continue
		}
		switch b.eviction {
		case EvictRandom:
			b.items[b.rng.IntN(len(b.items))] = tr
		default: // fifo
			copy(b.items, b.items[1:])
			b.items[len(b.items)-1] = tr
		}
	}
}

// Sample 取一个训练批次。recent 取最近 n 条，uniform 做有放回均匀抽样。
func (b *replayBuffer) Sample(n int) []policy.Transition {
	if n <= 0 || len(b.items) == 0 {
		return nil
	}
	if n > len(b.items) {
		n = len(b.items)
	}
	out := make([]policy.Transition, n)
	if b.sampling == SampleUniform {
		for i := range out {
			out[i] = b.items[b.rng.IntN(len(b.items))]
		}
		return out
	}
	copy(out, b.items[len(b.items)-n:])
	return out
}
