package pipeline

// btbSize is the number of entries in the branch target buffer, matching
// BTB_SIZE in the reference implementation.
const btbSize = 4

// outcome bit values for the 2-bit saturating counter.
const (
	strongNotTaken uint8 = 0
	weakNotTaken   uint8 = 1
	weakTaken      uint8 = 2
	strongTaken    uint8 = 3
)

type btbEntry struct {
	address           int32
	calculatedAddress int32
	taken             bool
	valid             bool
	outcomeBits       uint8
	resolved          bool
}

// BranchTargetBuffer is a fixed-size FIFO buffer of branch predictions,
// indexed by a linear search over instruction address, paired with a
// 2-bit saturating predictor per entry.
type BranchTargetBuffer struct {
	entries [btbSize]btbEntry
	head    int
}

// NewBranchTargetBuffer returns an empty BTB.
func NewBranchTargetBuffer() *BranchTargetBuffer {
	return &BranchTargetBuffer{}
}

func (b *BranchTargetBuffer) find(address int32) int {
	for i := range b.entries {
		if b.entries[i].valid && b.entries[i].address == address {
			return i
		}
	}
	return -1
}

// Lookup is called by fetch for any control-transfer instruction. If the
// address isn't present, a new weakly-not-taken entry is inserted (FIFO
// replacement) and the lookup reports no prediction. If present and
// weakly/strongly taken, it reports the trained target.
func (b *BranchTargetBuffer) Lookup(address int32) (target int32, predictedTaken bool) {
	i := b.find(address)
	if i < 0 {
		b.insert(address)
		return 0, false
	}

	e := b.entries[i]
	if e.outcomeBits >= weakTaken {
		return e.calculatedAddress, true
	}
	return 0, false
}

func (b *BranchTargetBuffer) insert(address int32) {
	b.entries[b.head] = btbEntry{
		address:     address,
		valid:       true,
		outcomeBits: weakNotTaken,
	}
	b.head = (b.head + 1) % btbSize
}

// Train updates (or creates) the entry for address on branch resolution:
// it saturates the outcome counter toward taken or not-taken and records
// the resolved target.
func (b *BranchTargetBuffer) Train(address, target int32, taken bool) {
	i := b.find(address)
	if i < 0 {
		b.insert(address)
		i = b.find(address)
	}

	e := &b.entries[i]
	if taken {
		e.outcomeBits = increment(e.outcomeBits)
	} else {
		e.outcomeBits = decrement(e.outcomeBits)
	}
	e.taken = taken
	e.calculatedAddress = target
	e.resolved = true
	e.valid = true
}

func increment(bits uint8) uint8 {
	if bits < strongTaken {
		return bits + 1
	}
	return strongTaken
}

func decrement(bits uint8) uint8 {
	if bits > strongNotTaken {
		return bits - 1
	}
	return strongNotTaken
}
