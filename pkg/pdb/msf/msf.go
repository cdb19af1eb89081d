package msf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// File provides read access to an MSF container image held in memory.
// It is the verification counterpart to Builder.
type File struct {
	superBlock *SuperBlock
	directory  *StreamDirectory
	data       []byte
}

// StreamDirectory is the parsed directory of all streams in the file.
type StreamDirectory struct {
	NumStreams   uint32
	StreamSizes  []uint32
	StreamBlocks [][]uint32
}

// Read parses an MSF container from a byte image.
func Read(data []byte) (*File, error) {
	sb, err := ReadSuperBlock(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}

	if int64(len(data)) < sb.FileSize() {
		return nil, fmt.Errorf("truncated MSF: %d bytes, superblock declares %d", len(data), sb.FileSize())
	}

	f := &File{superBlock: sb, data: data}

	if err := f.readStreamDirectory(); err != nil {
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}

	return f, nil
}

// SuperBlock returns the MSF SuperBlock.
func (f *File) SuperBlock() *SuperBlock {
	return f.superBlock
}

// BlockSize returns the block size used by this MSF file.
func (f *File) BlockSize() uint32 {
	return f.superBlock.BlockSize
}

// NumStreams returns the number of streams in the file.
func (f *File) NumStreams() int {
	return int(f.directory.NumStreams)
}

// StreamSize returns the byte length of the stream at the given index.
// Absent streams (directory sentinel 0xFFFFFFFF) report size 0.
func (f *File) StreamSize(index int) (uint32, error) {
	if index < 0 || index >= len(f.directory.StreamSizes) {
		return 0, fmt.Errorf("stream index %d out of range [0, %d)", index, len(f.directory.StreamSizes))
	}
	size := f.directory.StreamSizes[index]
	if size == InvalidStreamSize {
		return 0, nil
	}
	return size, nil
}

// StreamBlocks returns the block indices that make up the stream.
func (f *File) StreamBlocks(index int) ([]uint32, error) {
	if index < 0 || index >= len(f.directory.StreamBlocks) {
		return nil, fmt.Errorf("stream index %d out of range [0, %d)", index, len(f.directory.StreamBlocks))
	}
	return f.directory.StreamBlocks[index], nil
}

// StreamData assembles the stream's bytes from its possibly
// non-contiguous blocks.
func (f *File) StreamData(index int) ([]byte, error) {
	size, err := f.StreamSize(index)
	if err != nil {
		return nil, err
	}

	bs := int(f.superBlock.BlockSize)
	out := make([]byte, size)
	read := 0
	for _, blk := range f.directory.StreamBlocks[index] {
		off := int(blk) * bs
		n := bs
		if read+n > len(out) {
			n = len(out) - read
		}
		if off+n > len(f.data) {
			return nil, fmt.Errorf("stream %d references block %d beyond file end", index, blk)
		}
		copy(out[read:read+n], f.data[off:off+n])
		read += n
	}
	if read != len(out) {
		return nil, fmt.Errorf("stream %d: block list covers %d of %d bytes", index, read, len(out))
	}
	return out, nil
}

// readStreamDirectory locates the directory via the block map and parses
// it.
func (f *File) readStreamDirectory() error {
	sb := f.superBlock
	bs := int(sb.BlockSize)

	blockMapOffset := int(sb.BlockMapAddr) * bs
	numDirBlocks := int(sb.NumDirectoryBlocks())
	if blockMapOffset+4*numDirBlocks > len(f.data) {
		return fmt.Errorf("block map at block %d extends beyond file end", sb.BlockMapAddr)
	}

	dirData := make([]byte, sb.NumDirectoryBytes)
	read := 0
	for i := 0; i < numDirBlocks; i++ {
		blk := binary.LittleEndian.Uint32(f.data[blockMapOffset+4*i:])
		off := int(blk) * bs
		n := bs
		if read+n > len(dirData) {
			n = len(dirData) - read
		}
		if off+n > len(f.data) {
			return fmt.Errorf("directory block %d beyond file end", blk)
		}
		copy(dirData[read:read+n], f.data[off:off+n])
		read += n
	}

	return f.parseStreamDirectory(dirData)
}

// parseStreamDirectory parses the stream directory from raw bytes.
func (f *File) parseStreamDirectory(data []byte) error {
	r := bytes.NewReader(data)

	var numStreams uint32
	if err := binary.Read(r, binary.LittleEndian, &numStreams); err != nil {
		return fmt.Errorf("failed to read NumStreams: %w", err)
	}

	streamSizes := make([]uint32, numStreams)
	for i := uint32(0); i < numStreams; i++ {
		if err := binary.Read(r, binary.LittleEndian, &streamSizes[i]); err != nil {
			return fmt.Errorf("failed to read stream size %d: %w", i, err)
		}
	}

	blockSize := f.superBlock.BlockSize
	streamBlocks := make([][]uint32, numStreams)
	for i := uint32(0); i < numStreams; i++ {
		size := streamSizes[i]
		// Size of 0xFFFFFFFF indicates an unused/deleted stream
		if size == InvalidStreamSize {
			streamBlocks[i] = nil
			continue
		}
		numBlocks := (size + blockSize - 1) / blockSize
		blocks := make([]uint32, numBlocks)
		for j := uint32(0); j < numBlocks; j++ {
			if err := binary.Read(r, binary.LittleEndian, &blocks[j]); err != nil {
				return fmt.Errorf("failed to read block index for stream %d: %w", i, err)
			}
		}
		streamBlocks[i] = blocks
	}

	f.directory = &StreamDirectory{
		NumStreams:   numStreams,
		StreamSizes:  streamSizes,
		StreamBlocks: streamBlocks,
	}

	return nil
}
