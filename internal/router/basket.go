package router

import "sync"

// selectionBasket tracks which languages a sender has picked during the
// current interactive flow. Transient and in-memory only; cleared on
// confirmation or reset and never written to durable storage.
type selectionBasket struct {
	mu    sync.Mutex
	picks map[string][]string
}

func newSelectionBasket() *selectionBasket {
	return &selectionBasket{picks: make(map[string][]string)}
}

func (b *selectionBasket) add(sender, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.picks[sender] {
		if c == code {
			return
		}
	}
	b.picks[sender] = append(b.picks[sender], code)
}

func (b *selectionBasket) list(sender string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.picks[sender]))
	copy(out, b.picks[sender])
	return out
}

func (b *selectionBasket) clear(sender string) {
	b.mu.Lock()
	delete(b.picks, sender)
	b.mu.Unlock()
}
