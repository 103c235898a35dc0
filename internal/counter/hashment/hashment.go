// Package hashment turns sections of text into hashments: the identity and
// size of every countable segment, with the text itself discarded.
package hashment

import (
	"iter"

	"github.com/babblebase/filecount/internal/counter/segmentation"
)

// Hashment is the digest of one segment. Words is always positive; segments
// without words never become hashments.
type Hashment struct {
	ID         ID
	Words      int
	Characters int
}

// Producer applies a segmentation Policy and a Hasher to sections.
type Producer struct {
	policy segmentation.Policy
	hasher Hasher
}

// NewProducer returns a Producer. A nil hasher selects DefaultHasher.
func NewProducer(policy segmentation.Policy, hasher Hasher) *Producer {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &Producer{policy: policy, hasher: hasher}
}

func (p *Producer) Hasher() Hasher {
	return p.hasher
}

// Produce returns the hashments of section in segment order.
func (p *Producer) Produce(section string) []Hashment {
	return p.appendSection(nil, section)
}

// ProduceMany concatenates the hashments of every section in order.
func (p *Producer) ProduceMany(sections []string) []Hashment {
	var out []Hashment
	for _, section := range sections {
		out = p.appendSection(out, section)
	}
	return out
}

// All yields the hashments of sections lazily. Stopping the iteration early
// stops segmentation of the remaining text.
func (p *Producer) All(sections []string) iter.Seq[Hashment] {
	return func(yield func(Hashment) bool) {
		for _, section := range sections {
			for _, segment := range p.policy.Segment(section) {
				h, ok := p.digest(segment)
				if !ok {
					continue
				}
				if !yield(h) {
					return
				}
			}
		}
	}
}

func (p *Producer) appendSection(out []Hashment, section string) []Hashment {
	for _, segment := range p.policy.Segment(section) {
		if h, ok := p.digest(segment); ok {
			out = append(out, h)
		}
	}
	return out
}

func (p *Producer) digest(segment string) (Hashment, bool) {
	words := p.policy.CountWords(segment)
	if words <= 0 {
		return Hashment{}, false
	}
	return Hashment{
		ID:         p.hasher.Hash(segment),
		Words:      words,
		Characters: p.policy.CountCharacters(segment),
	}, true
}

// Produce segments section with policy and hashes with DefaultHasher.
func Produce(section string, policy segmentation.Policy) []Hashment {
	return NewProducer(policy, nil).Produce(section)
}

// ProduceMany is Produce over several sections, concatenated in order.
func ProduceMany(sections []string, policy segmentation.Policy) []Hashment {
	return NewProducer(policy, nil).ProduceMany(sections)
}
