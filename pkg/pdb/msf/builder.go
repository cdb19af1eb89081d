package msf

import (
	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
)

// DefaultBlockSize is the block size the builder uses. 4096 is what
// current toolchains emit.
const DefaultBlockSize = 4096

// InvalidStreamSize is the directory sentinel for an absent stream. It
// must never be produced as the length of a registered stream.
const InvalidStreamSize = 0xFFFFFFFF

// maxStreamSize is the largest representable stream length.
const maxStreamSize = InvalidStreamSize - 1

// maxBlocks bounds the container: block indices and the superblock's
// block count are 32-bit, so 1<<32 blocks is already unrepresentable.
const maxBlocks = 1 << 32

// Builder assembles an MSF container. It moves through three phases with
// no re-entry: stream registration, block layout, and finalization.
// Registering a stream after Finalize, or finalizing twice, returns a
// StateError.
type Builder struct {
	blockSize uint32
	streams   [][]byte
	finalized bool
}

// NewBuilder creates a Builder using DefaultBlockSize.
func NewBuilder() *Builder {
	return &Builder{blockSize: DefaultBlockSize}
}

// AddStream registers a finished stream buffer and returns its stream
// index. Indices are assigned monotonically in registration order. The
// builder does not copy data; callers must not mutate it afterwards.
func (b *Builder) AddStream(data []byte) (uint32, error) {
	if b.finalized {
		return 0, &StateError{Op: "AddStream", Phase: "finalized"}
	}
	if uint64(len(data)) > maxStreamSize {
		return 0, &CapacityError{What: "stream", Size: uint64(len(data)), Limit: maxStreamSize}
	}
	b.streams = append(b.streams, data)
	return uint32(len(b.streams) - 1), nil
}

// NumStreams returns the number of registered streams.
func (b *Builder) NumStreams() int {
	return len(b.streams)
}

// Finalize lays every stream out across blocks, then writes the
// superblock, free block map, stream directory and directory block map,
// returning the complete file image. The builder cannot be reused.
func (b *Builder) Finalize() ([]byte, error) {
	if b.finalized {
		return nil, &StateError{Op: "Finalize", Phase: "finalized"}
	}
	b.finalized = true

	// Block layout phase. Block 0 is the superblock; FPM blocks are
	// reserved at indices 1 and 2 of every BlockSize-sized interval (the
	// format reserves them at BlockSize stride even though one FPM block
	// describes BlockSize*8 blocks).
	alloc := &blockAllocator{next: 3, stride: uint64(b.blockSize)}

	blockLists := make([][]uint32, len(b.streams))
	totalStreamBlocks := 0
	for i, s := range b.streams {
		n := blocksFor(uint64(len(s)), b.blockSize)
		blockLists[i] = alloc.take(n)
		totalStreamBlocks += n
	}

	dirBytes := uint64(4 + 4*len(b.streams) + 4*totalStreamBlocks)
	dirBlocks := alloc.take(blocksFor(dirBytes, b.blockSize))

	// The block map must fit in a single block.
	if uint64(len(dirBlocks)) > uint64(b.blockSize)/4 {
		return nil, &CapacityError{
			What:  "stream directory",
			Size:  dirBytes,
			Limit: uint64(b.blockSize) / 4 * uint64(b.blockSize),
		}
	}
	blockMapAddr := alloc.take(1)[0]

	numBlocks := alloc.next
	if err := checkBlockCount(numBlocks); err != nil {
		return nil, err
	}

	// Finalization phase: materialize the image.
	out := make([]byte, numBlocks*uint64(b.blockSize))

	sb := &SuperBlock{
		BlockSize:         b.blockSize,
		FreeBlockMapBlock: 1,
		NumBlocks:         uint32(numBlocks),
		NumDirectoryBytes: uint32(dirBytes),
		BlockMapAddr:      blockMapAddr,
	}
	copy(sb.Magic[:], MSFMagic)
	sbw := buf.NewWriter(SuperBlockSize)
	sb.appendTo(sbw)
	copy(out, sbw.Data())

	b.writeFreeBlockMap(out, numBlocks)

	for i, s := range b.streams {
		b.writeBlocks(out, blockLists[i], s)
	}

	dir := buf.NewWriter(int(dirBytes))
	dir.U32(uint32(len(b.streams)))
	for _, s := range b.streams {
		dir.U32(uint32(len(s)))
	}
	for _, blocks := range blockLists {
		for _, blk := range blocks {
			dir.U32(blk)
		}
	}
	b.writeBlocks(out, dirBlocks, dir.Data())

	bm := buf.NewWriter(4 * len(dirBlocks))
	for _, blk := range dirBlocks {
		bm.U32(blk)
	}
	b.writeBlocks(out, []uint32{blockMapAddr}, bm.Data())

	return out, nil
}

// writeFreeBlockMap fills the active FPM blocks. The map is one bit per
// block, set when the block is free; it is the concatenation of the FPM
// blocks at stride intervals. Every block below numBlocks, including the
// superblock and reserved FPM blocks, is marked allocated.
func (b *Builder) writeFreeBlockMap(out []byte, numBlocks uint64) {
	bs := uint64(b.blockSize)
	for k := uint64(0); 1+k*bs < numBlocks; k++ {
		base := (1 + k*bs) * bs
		for j := uint64(0); j < bs; j++ {
			firstBlock := (k*bs + j) * 8
			var v byte
			switch {
			case firstBlock+7 < numBlocks:
				v = 0x00
			case firstBlock >= numBlocks:
				v = 0xFF
			default:
				for bit := uint64(0); bit < 8; bit++ {
					if firstBlock+bit >= numBlocks {
						v |= 1 << bit
					}
				}
			}
			out[base+j] = v
		}
	}
}

// writeBlocks scatters data across the given block list.
func (b *Builder) writeBlocks(out []byte, blocks []uint32, data []byte) {
	bs := int(b.blockSize)
	for i, blk := range blocks {
		chunk := data[i*bs:]
		if len(chunk) > bs {
			chunk = chunk[:bs]
		}
		copy(out[int(blk)*bs:], chunk)
	}
}

// checkBlockCount rejects containers whose block count would truncate
// when stored in the superblock's 32-bit NumBlocks field.
func checkBlockCount(numBlocks uint64) error {
	if numBlocks >= maxBlocks {
		return &CapacityError{What: "container", Size: numBlocks, Limit: maxBlocks - 1}
	}
	return nil
}

// blocksFor returns ceil(size / blockSize).
func blocksFor(size uint64, blockSize uint32) int {
	return int((size + uint64(blockSize) - 1) / uint64(blockSize))
}

// blockAllocator hands out block indices in increasing order, skipping
// the reserved free-map slots of each interval.
type blockAllocator struct {
	next   uint64
	stride uint64
}

func (a *blockAllocator) take(n int) []uint32 {
	blocks := make([]uint32, 0, n)
	for len(blocks) < n {
		if r := a.next % a.stride; r == 1 || r == 2 {
			a.next++
			continue
		}
		blocks = append(blocks, uint32(a.next))
		a.next++
	}
	return blocks
}
