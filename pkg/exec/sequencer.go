package exec

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Sequencer serializes all broadcasts from one signing address and owns
// nonce allocation for it. Reading "next nonce" fresh per request races
// under concurrent executions; here the nonce is handed out under a
// single mutex held across sign+send (never across the receipt wait).
type Sequencer struct {
	addr  common.Address
	chain Broadcaster

	mu     sync.Mutex
	next   uint64
	primed bool
}

func NewSequencer(addr common.Address, chain Broadcaster) *Sequencer {
	return &Sequencer{addr: addr, chain: chain}
}

// Broadcast runs send with an allocated nonce, serialized against every
// other broadcast from this signer. On success the local nonce advances;
// on failure it is discarded and the next call re-reads the pending nonce
// from the node, since we cannot know whether the tx reached the mempool.
func (s *Sequencer) Broadcast(ctx context.Context, send func(nonce uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		n, err := s.chain.PendingNonce(ctx, s.addr)
		if err != nil {
			return infraErr("nonce read", err)
		}
		s.next = n
		s.primed = true
	}

	if err := send(s.next); err != nil {
		s.primed = false
		return err
	}
	s.next++
	return nil
}
