package zerodha

import (
	"sync"
)

// instrumentMapper maps trading symbols to Kite instrument tokens and back.
type instrumentMapper struct {
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
	mu            sync.RWMutex
}

func newInstrumentMapper(known map[string]uint32) *instrumentMapper {
	im := &instrumentMapper{
		symbolToToken: make(map[string]uint32, len(known)),
		tokenToSymbol: make(map[uint32]string),
	}
	for symbol, token := range known {
		im.symbolToToken[symbol] = token
	}
	return im
}

// activate marks symbol as streamed and returns its token.
func (im *instrumentMapper) activate(symbol string) (uint32, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()

	token, ok := im.symbolToToken[symbol]
	if ok {
		im.tokenToSymbol[token] = symbol
	}
	return token, ok
}

// deactivate stops routing ticks for symbol and returns its token.
func (im *instrumentMapper) deactivate(symbol string) (uint32, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()

	token, ok := im.symbolToToken[symbol]
	if ok {
		delete(im.tokenToSymbol, token)
	}
	return token, ok
}

// symbol returns the active symbol for a token, or "".
func (im *instrumentMapper) symbol(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.tokenToSymbol[token]
}

func (im *instrumentMapper) activeTokens() []uint32 {
	im.mu.RLock()
	defer im.mu.RUnlock()

	tokens := make([]uint32, 0, len(im.tokenToSymbol))
	for token := range im.tokenToSymbol {
		tokens = append(tokens, token)
	}
	return tokens
}
