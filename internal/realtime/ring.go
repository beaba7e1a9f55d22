package realtime

import "github.com/tonebox/backend/internal/events"

// envelopeRing is a fixed-capacity circular buffer of recently published
// envelopes for one room. When full, the oldest envelope is overwritten; a
// client whose watermark falls behind the oldest retained envelope must
// perform a full resync instead of replaying.
type envelopeRing struct {
	buf   []*events.Envelope
	head  int
	count int

	// lastEvicted is the server sequence of the newest envelope pushed out of
	// the ring. A client whose watermark is below it has an unbridgeable gap.
	lastEvicted uint64
}

func newEnvelopeRing(capacity int) *envelopeRing {
	return &envelopeRing{buf: make([]*events.Envelope, capacity)}
}

func (r *envelopeRing) push(env *events.Envelope) {
	idx := (r.head + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		r.lastEvicted = r.buf[r.head].ServerSeq
		r.buf[idx] = env
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.buf[idx] = env
		r.count++
	}
}

// since returns all retained envelopes with ServerSeq > afterSeq, oldest first.
func (r *envelopeRing) since(afterSeq uint64) []*events.Envelope {
	var out []*events.Envelope
	for i := 0; i < r.count; i++ {
		env := r.buf[(r.head+i)%len(r.buf)]
		if env.ServerSeq > afterSeq {
			out = append(out, env)
		}
	}
	return out
}
