package ulpfec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumFecPackets(t *testing.T) {
	for _, ca := range []struct {
		name     string
		numMedia int
		factor   uint8
		out      int
	}{
		{"zero factor", 10, 0, 0},
		{"rounds up to one", 10, 13, 1},
		{"half", 10, 128, 5},
		{"full", 48, 255, 48},
		{"single packet", 1, 255, 1},
	} {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.out, NumFecPackets(ca.numMedia, ca.factor))
		})
	}
}

func maskBit(mask []byte, maskSize int, row int, col int) bool {
	return mask[row*maskSize+col/8]&(0x80>>(col%8)) != 0
}

func TestMaskSinglePacket(t *testing.T) {
	mask := make([]byte, 2)
	generatePacketMasks(1, 1, 0, ImportantModeNone, MaskRandom, 2, mask)
	require.Equal(t, []byte{0x80, 0x00}, mask)
}

func TestMaskTablesCoverAllPackets(t *testing.T) {
	for _, maskType := range []MaskType{MaskRandom, MaskBursty} {
		for numMedia := 1; numMedia <= 12; numMedia++ {
			for numFec := 1; numFec <= numMedia; numFec++ {
				mask := make([]byte, numFec*2)
				generatePacketMasks(numMedia, numFec, 0, ImportantModeNone, maskType, 2, mask)

				for col := 0; col < numMedia; col++ {
					covered := false
					for row := 0; row < numFec; row++ {
						covered = covered || maskBit(mask, 2, row, col)
					}
					require.True(t, covered, "type=%d media=%d fec=%d col=%d",
						maskType, numMedia, numFec, col)
				}
			}
		}
	}
}

func TestMaskInterleavedCyclicShift(t *testing.T) {
	// equal protection above the table range is interleaved: the bit at
	// (row, i) equals the bit at (row, i+numFec) while both are in range
	numMedia := 20
	numFec := 5
	maskSize := packetMaskSize(numMedia)
	mask := make([]byte, numFec*maskSize)
	generatePacketMasks(numMedia, numFec, 0, ImportantModeNone, MaskRandom, maskSize, mask)

	for row := 0; row < numFec; row++ {
		for i := 0; i+numFec < numMedia; i++ {
			require.Equal(t,
				maskBit(mask, maskSize, row, i),
				maskBit(mask, maskSize, row, i+numFec),
				"row=%d col=%d", row, i)
		}
	}
}

func TestMaskImportantAllocation(t *testing.T) {
	// half of the FEC packets go to the important prefix
	numMedia := 10
	numFec := 4
	numImportant := 2
	mask := make([]byte, numFec*2)
	generatePacketMasks(numMedia, numFec, numImportant, ImportantModeOverlap, MaskRandom, 2, mask)

	// first two rows protect only the important prefix
	for row := 0; row < 2; row++ {
		for col := numImportant; col < numMedia; col++ {
			require.False(t, maskBit(mask, 2, row, col), "row=%d col=%d", row, col)
		}
	}

	// remaining rows cover the whole group between them
	for col := 0; col < numMedia; col++ {
		covered := false
		for row := 2; row < numFec; row++ {
			covered = covered || maskBit(mask, 2, row, col)
		}
		require.True(t, covered, "col=%d", col)
	}
}

func TestMaskSingleFecFallsBackToEqual(t *testing.T) {
	// one FEC packet over a group dominated by unimportant packets
	// protects everything equally
	mask := make([]byte, 2)
	generatePacketMasks(10, 1, 2, ImportantModeNoOverlap, MaskRandom, 2, mask)
	for col := 0; col < 10; col++ {
		require.True(t, maskBit(mask, 2, 0, col), "col=%d", col)
	}
}

func TestMaskBiasFirstPacket(t *testing.T) {
	// same allocation as the other unequal modes: half of the FEC
	// packets protect the important prefix, the bias only touches the
	// remaining rows
	numMedia := 10
	numFec := 4
	numImportant := 2
	mask := make([]byte, numFec*2)
	generatePacketMasks(numMedia, numFec, numImportant, ImportantModeBiasFirstPacket, MaskRandom, 2, mask)

	// first two rows protect only the important prefix
	for row := 0; row < 2; row++ {
		for col := numImportant; col < numMedia; col++ {
			require.False(t, maskBit(mask, 2, row, col), "row=%d col=%d", row, col)
		}
	}
	for col := 0; col < numImportant; col++ {
		covered := false
		for row := 0; row < 2; row++ {
			covered = covered || maskBit(mask, 2, row, col)
		}
		require.True(t, covered, "col=%d", col)
	}

	// remaining rows overlap the whole group and all carry bit 0
	for row := 2; row < numFec; row++ {
		require.True(t, maskBit(mask, 2, row, 0), "row=%d", row)
	}
	for col := 0; col < numMedia; col++ {
		covered := false
		for row := 2; row < numFec; row++ {
			covered = covered || maskBit(mask, 2, row, col)
		}
		require.True(t, covered, "col=%d", col)
	}
}

func TestMaskNoOverlapShift(t *testing.T) {
	numMedia := 10
	numFec := 4
	numImportant := 2
	mask := make([]byte, numFec*2)
	generatePacketMasks(numMedia, numFec, numImportant, ImportantModeNoOverlap, MaskRandom, 2, mask)

	// remaining rows only protect the trailing packets
	for row := 2; row < numFec; row++ {
		for col := 0; col < numImportant; col++ {
			require.False(t, maskBit(mask, 2, row, col), "row=%d col=%d", row, col)
		}
	}
	for col := numImportant; col < numMedia; col++ {
		covered := false
		for row := 2; row < numFec; row++ {
			covered = covered || maskBit(mask, 2, row, col)
		}
		require.True(t, covered, "col=%d", col)
	}
}
