package crypto

import (
	"fmt"
	"sync"

	"github.com/opd-ai/afvoice/limits"
)

// ChannelSet routes datagrams for several logical streams that share one
// transport, keyed by channel tag.
type ChannelSet struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewChannelSet creates an empty set.
func NewChannelSet() *ChannelSet {
	return &ChannelSet{channels: make(map[string]*Channel)}
}

// Add registers a channel, replacing any channel with the same tag.
func (s *ChannelSet) Add(ch *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.Tag()] = ch
}

// Remove drops the channel for tag.
func (s *ChannelSet) Remove(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, tag)
}

// Get returns the channel for tag.
func (s *ChannelSet) Get(tag string) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[tag]
	return ch, ok
}

// Len returns the number of registered channels.
func (s *ChannelSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// EncodeDatagram encodes payload on the channel registered for channelTag.
func (s *ChannelSet) EncodeDatagram(channelTag string, payload []byte) ([]byte, error) {
	ch, ok := s.Get(channelTag)
	if !ok {
		return nil, fmt.Errorf("%w: no channel %q", ErrChannelTagMismatch, channelTag)
	}
	return ch.EncodeDatagram(payload)
}

// DecodeDatagram peeks the header tag and hands the datagram to the matching
// channel. Unknown tags are reported as ErrChannelTagMismatch.
func (s *ChannelSet) DecodeDatagram(b []byte) (Datagram, error) {
	if err := limits.ValidateDatagram(b); err != nil {
		return Datagram{}, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	h, _, err := DecodeHeader(b)
	if err != nil {
		return Datagram{}, err
	}
	ch, ok := s.Get(h.ChannelTag)
	if !ok {
		return Datagram{}, fmt.Errorf("%w: no channel %q", ErrChannelTagMismatch, h.ChannelTag)
	}
	return ch.DecodeDatagram(b)
}
