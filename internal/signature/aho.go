package signature

import "errors"

// AhoMatcher finds literal keywords case-insensitively (ASCII folding) in a
// single pass. Folding is byte-for-byte, so reported spans index the
// original input.
type AhoMatcher struct {
	nodes []ahoNode
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  []int // lengths of keywords ending here
}

func NewAhoMatcher(keywords []string) (*AhoMatcher, error) {
	if len(keywords) == 0 {
		return nil, errors.New("keywords are required")
	}

	nodes := []ahoNode{{next: map[byte]int{}, fail: 0}}
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		current := 0
		for i := 0; i < len(keyword); i++ {
			b := foldByte(keyword[i])
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, ahoNode{next: map[byte]int{}, fail: 0})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}
		nodes[current].out = append(nodes[current].out, len(keyword))
	}

	if len(nodes) == 1 {
		return nil, errors.New("no non-empty keywords")
	}

	queue := make([]int, 0)
	for _, next := range nodes[0].next {
		nodes[next].fail = 0
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for {
				if target, ok := nodes[fail].next[b]; ok {
					nodes[next].fail = target
					break
				}
				if fail == 0 {
					nodes[next].fail = 0
					break
				}
				fail = nodes[fail].fail
			}
			nodes[next].out = append(nodes[next].out, nodes[nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	return &AhoMatcher{nodes: nodes}, nil
}

// Find returns the span of the keyword that finishes earliest in input.
func (m *AhoMatcher) Find(input string) (int, int, bool) {
	state := 0
	for i := 0; i < len(input); i++ {
		b := foldByte(input[i])
		for state != 0 {
			if next, ok := m.nodes[state].next[b]; ok {
				state = next
				break
			}
			state = m.nodes[state].fail
		}
		if state == 0 {
			if next, ok := m.nodes[0].next[b]; ok {
				state = next
			}
		}

		if out := m.nodes[state].out; len(out) > 0 {
			end := i + 1
			return end - out[0], end, true
		}
	}

	return 0, 0, false
}

func foldByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
