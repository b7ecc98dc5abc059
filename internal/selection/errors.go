package selection

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrSymbolNotFound  = errors.New("symbol not found")
)

// SymbolNotFoundError is returned by ResolveSymbol when neither the canonical
// table nor the catalog knows the symbol. Provider is the id, ProviderName
// the display name used in the message.
type SymbolNotFoundError struct {
	Symbol       string
	Provider     string
	ProviderName string
}

func (e *SymbolNotFoundError) Error() string {
	name := e.ProviderName
	if name == "" {
		name = e.Provider
	}
	return fmt.Sprintf("symbol %q not found on %s", e.Symbol, name)
}

func (e *SymbolNotFoundError) Is(target error) bool { return target == ErrSymbolNotFound }
