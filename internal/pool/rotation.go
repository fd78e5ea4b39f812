package pool

import (
	"context"

	"github.com/rs/zerolog/log"
)

// NextPoolKey returns the next pool credential using the durable rotation
// counter: index (n-1) mod len. A failed increment degrades to the first
// member. ok is false when the pool is empty.
func (p *Pool) NextPoolKey(ctx context.Context) (key string, ok bool) {
	keys := p.PoolKeys(ctx)
	if len(keys) == 0 {
		return "", false
	}

	st, err := p.cascade.Store(ctx)
	if err != nil {
		p.metrics.RecordRotation(true)
		log.Warn().Err(err).Msg("pool: rotation counter unavailable, using first key")
		return keys[0], true
	}
	n, err := st.Incr(ctx, RotationCounterKey)
	if err != nil {
		p.metrics.RecordRotation(true)
		log.Warn().Err(err).Msg("pool: rotation increment failed, using first key")
		return keys[0], true
	}

	p.metrics.RecordRotation(false)
	idx := int((n - 1) % int64(len(keys)))
	if idx < 0 {
		idx += len(keys)
	}
	return keys[idx], true
}
