package msf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderEmptyContainer(t *testing.T) {
	out, err := NewBuilder().Finalize()
	require.NoError(t, err)
	require.Equal(t, 0, len(out)%DefaultBlockSize)

	f, err := Read(out)
	require.NoError(t, err)
	require.Equal(t, 0, f.NumStreams())
	require.Equal(t, uint32(DefaultBlockSize), f.BlockSize())
}

func TestBuilderSuperBlock(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddStream(make([]byte, 10))
	require.NoError(t, err)
	out, err := b.Finalize()
	require.NoError(t, err)

	sb, err := ReadSuperBlock(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, uint32(DefaultBlockSize), sb.BlockSize)
	require.Equal(t, uint32(1), sb.FreeBlockMapBlock)
	require.Equal(t, int64(len(out)), sb.FileSize())
	// Directory: stream count, one size, one block index.
	require.Equal(t, uint32(12), sb.NumDirectoryBytes)
}

func TestBuilderPageMath(t *testing.T) {
	sizes := []int{0, 1, DefaultBlockSize - 1, DefaultBlockSize, DefaultBlockSize + 1, 3 * DefaultBlockSize}
	b := NewBuilder()
	payloads := make([][]byte, len(sizes))
	for i, n := range sizes {
		payloads[i] = bytes.Repeat([]byte{byte(i + 1)}, n)
		idx, err := b.AddStream(payloads[i])
		require.NoError(t, err)
		require.Equal(t, uint32(i), idx)
	}

	out, err := b.Finalize()
	require.NoError(t, err)

	f, err := Read(out)
	require.NoError(t, err)
	require.Equal(t, len(sizes), f.NumStreams())

	for i, n := range sizes {
		size, err := f.StreamSize(i)
		require.NoError(t, err)
		require.Equal(t, uint32(n), size)

		blocks, err := f.StreamBlocks(i)
		require.NoError(t, err)
		wantBlocks := (n + DefaultBlockSize - 1) / DefaultBlockSize
		require.Len(t, blocks, wantBlocks)

		data, err := f.StreamData(i)
		require.NoError(t, err)
		require.Equal(t, payloads[i], data)
	}
}

func TestBuilderSkipsFreeMapBlocks(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddStream(make([]byte, 4*DefaultBlockSize))
	require.NoError(t, err)
	out, err := b.Finalize()
	require.NoError(t, err)

	f, err := Read(out)
	require.NoError(t, err)
	blocks, err := f.StreamBlocks(0)
	require.NoError(t, err)
	for _, blk := range blocks {
		r := blk % DefaultBlockSize
		require.NotEqual(t, uint32(0), blk)
		require.NotEqual(t, uint32(1), r, "block %d collides with FPM1", blk)
		require.NotEqual(t, uint32(2), r, "block %d collides with FPM2", blk)
	}
}

func TestBuilderFreeBlockMap(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddStream(make([]byte, 100))
	require.NoError(t, err)
	out, err := b.Finalize()
	require.NoError(t, err)

	sb, err := ReadSuperBlock(bytes.NewReader(out))
	require.NoError(t, err)

	fpm := out[DefaultBlockSize : 2*DefaultBlockSize]
	for blk := uint32(0); blk < sb.NumBlocks; blk++ {
		bit := fpm[blk/8] & (1 << (blk % 8))
		require.Zero(t, bit, "block %d must be marked allocated", blk)
	}
	// The bit just past the last block is free.
	next := sb.NumBlocks
	require.NotZero(t, fpm[next/8]&(1<<(next%8)))
}

func TestBuilderPhaseErrors(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddStream(nil)
	require.NoError(t, err)
	_, err = b.Finalize()
	require.NoError(t, err)

	_, err = b.AddStream([]byte{1})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "AddStream", stateErr.Op)

	_, err = b.Finalize()
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "Finalize", stateErr.Op)
}

func TestBuilderDeterminism(t *testing.T) {
	build := func() []byte {
		b := NewBuilder()
		for i := 0; i < 5; i++ {
			_, err := b.AddStream(bytes.Repeat([]byte{byte(i)}, 1000*i))
			require.NoError(t, err)
		}
		out, err := b.Finalize()
		require.NoError(t, err)
		return out
	}
	require.Equal(t, build(), build())
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read([]byte("not a pdb"))
	require.Error(t, err)

	b := NewBuilder()
	out, err := b.Finalize()
	require.NoError(t, err)
	_, err = Read(out[:len(out)-1])
	require.Error(t, err)
}

func TestBlockCountBound(t *testing.T) {
	// NumBlocks is stored as a uint32, so 1<<32 blocks must be rejected
	// rather than truncated to 0.
	require.NoError(t, checkBlockCount(1<<32-1))

	err := checkBlockCount(1 << 32)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, "container", capErr.What)
	require.Equal(t, uint64(1<<32), capErr.Size)
}

func TestCapacityErrorMessage(t *testing.T) {
	err := error(&CapacityError{What: "stream", Size: 10, Limit: 5})
	require.Contains(t, err.Error(), "stream")

	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
}
