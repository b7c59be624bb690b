// Package sync implements the block/header download state machine:
// building a locator from the local tip, turning a peer's header
// batch into a list of missing block hashes, and tracking in-flight
// downloads with timeout-based requeue.
package sync

import (
	"sync"

	"btpc.dev/node/chainindex"
	"btpc.dev/node/consensus"
	"btpc.dev/node/internal/log"
)

// MaxInFlight bounds how many block requests a Manager will have
// outstanding to a single peer at once.
const MaxInFlight = 16

// RequestTimeoutSeconds is how long a requested block may remain
// in flight before it is considered lost and requeued.
const RequestTimeoutSeconds = 30

// Manager tracks the download frontier for a single peer session. The
// chain engine itself remains the source of truth for what is already
// connected; Manager only tracks requests this session has made but
// not yet resolved.
type Manager struct {
	mu sync.Mutex

	chain *chainindex.Engine

	queued    []consensus.Hash
	inFlight  map[consensus.Hash]uint64 // hash -> request time
	completed map[consensus.Hash]struct{}

	nowFn func() uint64
}

// NewManager constructs a download Manager against chain, using nowFn
// as the clock for request timeouts.
func NewManager(chain *chainindex.Engine, nowFn func() uint64) *Manager {
	return &Manager{
		chain:     chain,
		inFlight:  make(map[consensus.Hash]uint64),
		completed: make(map[consensus.Hash]struct{}),
		nowFn:     nowFn,
	}
}

// BuildLocator returns the local chain's block locator, to be sent to
// a peer as a getheaders request.
func (m *Manager) BuildLocator() []consensus.Hash {
	return m.chain.Locator()
}

// ProcessHeaders accepts a batch of headers received from a peer
// (already in connect order), submits each to the chain engine's
// header index, and returns the hashes of any blocks it still needs
// the bodies for.
func (m *Manager) ProcessHeaders(headers []consensus.BlockHeader) []consensus.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []consensus.Hash
	for _, h := range headers {
		hash := h.Hash()
		if err := m.chain.SubmitHeader(h); err != nil {
			log.Sync.Debug().Err(err).Str("hash", hash.String()).Msg("sync: header rejected")
			continue
		}
		if m.chain.HasBlock(hash) {
			continue
		}
		if _, done := m.completed[hash]; done {
			continue
		}
		missing = append(missing, hash)
	}
	m.queued = append(m.queued, missing...)
	return missing
}

// NextRequests returns up to MaxInFlight-len(inFlight) queued hashes
// to request next, marking them as in flight.
func (m *Manager) NextRequests() []consensus.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requeueExpiredLocked()

	slots := MaxInFlight - len(m.inFlight)
	if slots <= 0 || len(m.queued) == 0 {
		return nil
	}
	if slots > len(m.queued) {
		slots = len(m.queued)
	}
	batch := m.queued[:slots]
	m.queued = m.queued[slots:]

	now := m.nowFn()
	for _, h := range batch {
		m.inFlight[h] = now
	}
	return batch
}

func (m *Manager) requeueExpiredLocked() {
	now := m.nowFn()
	for hash, requestedAt := range m.inFlight {
		if now-requestedAt > RequestTimeoutSeconds {
			delete(m.inFlight, hash)
			m.queued = append(m.queued, hash)
			log.Sync.Debug().Str("hash", hash.String()).Msg("sync: block request timed out, requeued")
		}
	}
}

// ProcessBlock hands a downloaded block to the chain engine. On
// success the hash is marked completed and removed from in-flight
// tracking; on failure it is requeued for a retry (e.g. from a
// different peer).
func (m *Manager) ProcessBlock(block *consensus.Block, now uint64) error {
	hash := block.Header.Hash()

	err := m.chain.SubmitBlock(block, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, hash)
	if err != nil {
		log.Sync.Warn().Err(err).Str("hash", hash.String()).Msg("sync: block rejected, requeuing")
		m.queued = append(m.queued, hash)
		return err
	}
	m.completed[hash] = struct{}{}
	return nil
}

// Pending reports the number of hashes still queued or in flight.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queued) + len(m.inFlight)
}
