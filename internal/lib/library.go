package lib

import "github.com/lauf-vm/lauf/internal/abi"

// Standard collects every builtin library this port ships, in the order a
// fresh VM configuration should register them.
func Standard() []abi.Library {
	return []abi.Library{Bits, Int, Heap, Limits, Test, Debug}
}
