// Pre-tabulated packet masks for protected groups of up to 12 media
// packets, in the row layout of the RFC 5109 reference tables: entry
// [m-1][f-1] holds f rows of 2 bytes each. Larger groups use the
// interleaved generator in mask.go.

package ulpfec

// maxTableMediaPackets is the largest group size covered by the tables.
const maxTableMediaPackets = 12

var packetMaskRandomTable = [maxTableMediaPackets][][]byte{
	{ // 1 media packet
		{0x80, 0x00},
	},
	{ // 2 media packets
		{0xc0, 0x00},
		{0x80, 0x00, 0x40, 0x00},
	},
	{ // 3 media packets
		{0xe0, 0x00},
		{0xa0, 0x00, 0x40, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00},
	},
	{ // 4 media packets
		{0xf0, 0x00},
		{0xa0, 0x00, 0x50, 0x00},
		{0x90, 0x00, 0x40, 0x00, 0x20, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00},
	},
	{ // 5 media packets
		{0xf8, 0x00},
		{0xa8, 0x00, 0x50, 0x00},
		{0x90, 0x00, 0x48, 0x00, 0x20, 0x00},
		{0x88, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00},
	},
	{ // 6 media packets
		{0xfc, 0x00},
		{0xa8, 0x00, 0x54, 0x00},
		{0x90, 0x00, 0x48, 0x00, 0x24, 0x00},
		{0x88, 0x00, 0x44, 0x00, 0x20, 0x00, 0x10, 0x00},
		{0x84, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00},
	},
	{ // 7 media packets
		{0xfe, 0x00},
		{0xaa, 0x00, 0x54, 0x00},
		{0x92, 0x00, 0x48, 0x00, 0x24, 0x00},
		{0x88, 0x00, 0x44, 0x00, 0x22, 0x00, 0x10, 0x00},
		{0x84, 0x00, 0x42, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00},
		{0x82, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00},
	},
	{ // 8 media packets
		{0xff, 0x00},
		{0xaa, 0x00, 0x55, 0x00},
		{0x92, 0x00, 0x49, 0x00, 0x24, 0x00},
		{0x88, 0x00, 0x44, 0x00, 0x22, 0x00, 0x11, 0x00},
		{0x84, 0x00, 0x42, 0x00, 0x21, 0x00, 0x10, 0x00, 0x08, 0x00},
		{0x82, 0x00, 0x41, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00},
		{0x81, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00},
	},
	{ // 9 media packets
		{0xff, 0x80},
		{0xaa, 0x80, 0x55, 0x00},
		{0x92, 0x00, 0x49, 0x00, 0x24, 0x80},
		{0x88, 0x80, 0x44, 0x00, 0x22, 0x00, 0x11, 0x00},
		{0x84, 0x00, 0x42, 0x00, 0x21, 0x00, 0x10, 0x80, 0x08, 0x00},
		{0x82, 0x00, 0x41, 0x00, 0x20, 0x80, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00},
		{0x81, 0x00, 0x40, 0x80, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00},
		{0x80, 0x80, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80},
	},
	{ // 10 media packets
		{0xff, 0xc0},
		{0xaa, 0x80, 0x55, 0x40},
		{0x92, 0x40, 0x49, 0x00, 0x24, 0x80},
		{0x88, 0x80, 0x44, 0x40, 0x22, 0x00, 0x11, 0x00},
		{0x84, 0x00, 0x42, 0x00, 0x21, 0x00, 0x10, 0x80, 0x08, 0x40},
		{0x82, 0x00, 0x41, 0x00, 0x20, 0x80, 0x10, 0x40, 0x08, 0x00, 0x04, 0x00},
		{0x81, 0x00, 0x40, 0x80, 0x20, 0x40, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00},
		{0x80, 0x80, 0x40, 0x40, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00},
		{0x80, 0x40, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80, 0x00, 0x40},
	},
	{ // 11 media packets
		{0xff, 0xe0},
		{0xaa, 0xa0, 0x55, 0x40},
		{0x92, 0x40, 0x49, 0x20, 0x24, 0x80},
		{0x88, 0x80, 0x44, 0x40, 0x22, 0x20, 0x11, 0x00},
		{0x84, 0x20, 0x42, 0x00, 0x21, 0x00, 0x10, 0x80, 0x08, 0x40},
		{0x82, 0x00, 0x41, 0x00, 0x20, 0x80, 0x10, 0x40, 0x08, 0x20, 0x04, 0x00},
		{0x81, 0x00, 0x40, 0x80, 0x20, 0x40, 0x10, 0x20, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00},
		{0x80, 0x80, 0x40, 0x40, 0x20, 0x20, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00},
		{0x80, 0x40, 0x40, 0x20, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80},
		{0x80, 0x20, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80, 0x00, 0x40},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80, 0x00, 0x40, 0x00, 0x20},
	},
	{ // 12 media packets
		{0xff, 0xf0},
		{0xaa, 0xa0, 0x55, 0x50},
		{0x92, 0x40, 0x49, 0x20, 0x24, 0x90},
		{0x88, 0x80, 0x44, 0x40, 0x22, 0x20, 0x11, 0x10},
		{0x84, 0x20, 0x42, 0x10, 0x21, 0x00, 0x10, 0x80, 0x08, 0x40},
		{0x82, 0x00, 0x41, 0x00, 0x20, 0x80, 0x10, 0x40, 0x08, 0x20, 0x04, 0x10},
		{0x81, 0x00, 0x40, 0x80, 0x20, 0x40, 0x10, 0x20, 0x08, 0x10, 0x04, 0x00, 0x02, 0x00},
		{0x80, 0x80, 0x40, 0x40, 0x20, 0x20, 0x10, 0x10, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00},
		{0x80, 0x40, 0x40, 0x20, 0x20, 0x10, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80},
		{0x80, 0x20, 0x40, 0x10, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80, 0x00, 0x40},
		{0x80, 0x10, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80, 0x00, 0x40, 0x00, 0x20},
		{0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10, 0x00, 0x08, 0x00, 0x04, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x80, 0x00, 0x40, 0x00, 0x20, 0x00, 0x10},
	},
}

var packetMaskBurstyTable = [maxTableMediaPackets][][]byte{
	{ // 1 media packet
		{0x80, 0x00},
	},
	{ // 2 media packets
		{0xc0, 0x00},
		{0xc0, 0x00, 0x40, 0x00},
	},
	{ // 3 media packets
		{0xe0, 0x00},
		{0xc0, 0x00, 0x60, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x20, 0x00},
	},
	{ // 4 media packets
		{0xf0, 0x00},
		{0xe0, 0x00, 0x30, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x10, 0x00},
	},
	{ // 5 media packets
		{0xf8, 0x00},
		{0xe0, 0x00, 0x38, 0x00},
		{0xc0, 0x00, 0x70, 0x00, 0x18, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x08, 0x00},
	},
	{ // 6 media packets
		{0xfc, 0x00},
		{0xf0, 0x00, 0x1c, 0x00},
		{0xe0, 0x00, 0x38, 0x00, 0x0c, 0x00},
		{0xc0, 0x00, 0x70, 0x00, 0x18, 0x00, 0x0c, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x04, 0x00},
	},
	{ // 7 media packets
		{0xfe, 0x00},
		{0xf0, 0x00, 0x1e, 0x00},
		{0xe0, 0x00, 0x38, 0x00, 0x0e, 0x00},
		{0xc0, 0x00, 0x70, 0x00, 0x1c, 0x00, 0x06, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x38, 0x00, 0x0c, 0x00, 0x06, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x02, 0x00},
	},
	{ // 8 media packets
		{0xff, 0x00},
		{0xf8, 0x00, 0x0f, 0x00},
		{0xe0, 0x00, 0x3c, 0x00, 0x07, 0x00},
		{0xe0, 0x00, 0x38, 0x00, 0x0e, 0x00, 0x03, 0x00},
		{0xc0, 0x00, 0x70, 0x00, 0x18, 0x00, 0x0e, 0x00, 0x03, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x38, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x00},
	},
	{ // 9 media packets
		{0xff, 0x80},
		{0xf8, 0x00, 0x0f, 0x80},
		{0xf0, 0x00, 0x1e, 0x00, 0x03, 0x80},
		{0xe0, 0x00, 0x38, 0x00, 0x0e, 0x00, 0x03, 0x80},
		{0xc0, 0x00, 0x70, 0x00, 0x1c, 0x00, 0x07, 0x00, 0x01, 0x80},
		{0xc0, 0x00, 0x70, 0x00, 0x18, 0x00, 0x0e, 0x00, 0x03, 0x00, 0x01, 0x80},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x1c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0x80},
	},
	{ // 10 media packets
		{0xff, 0xc0},
		{0xfc, 0x00, 0x07, 0xc0},
		{0xf0, 0x00, 0x1e, 0x00, 0x03, 0xc0},
		{0xe0, 0x00, 0x3c, 0x00, 0x07, 0x00, 0x01, 0xc0},
		{0xe0, 0x00, 0x38, 0x00, 0x0e, 0x00, 0x03, 0x80, 0x00, 0xc0},
		{0xc0, 0x00, 0x70, 0x00, 0x1c, 0x00, 0x06, 0x00, 0x03, 0x80, 0x00, 0xc0},
		{0xc0, 0x00, 0x60, 0x00, 0x38, 0x00, 0x0c, 0x00, 0x07, 0x00, 0x01, 0x80, 0x00, 0xc0},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x1c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x40},
	},
	{ // 11 media packets
		{0xff, 0xe0},
		{0xfc, 0x00, 0x07, 0xe0},
		{0xf0, 0x00, 0x1f, 0x00, 0x01, 0xe0},
		{0xe0, 0x00, 0x3c, 0x00, 0x07, 0x80, 0x00, 0xe0},
		{0xe0, 0x00, 0x38, 0x00, 0x0e, 0x00, 0x03, 0x80, 0x00, 0xe0},
		{0xc0, 0x00, 0x70, 0x00, 0x1c, 0x00, 0x07, 0x00, 0x01, 0xc0, 0x00, 0x60},
		{0xc0, 0x00, 0x70, 0x00, 0x18, 0x00, 0x0e, 0x00, 0x03, 0x00, 0x01, 0xc0, 0x00, 0x60},
		{0xc0, 0x00, 0x60, 0x00, 0x38, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x80, 0x00, 0xc0, 0x00, 0x60},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0e, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x60},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x60},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x60, 0x00, 0x20},
	},
	{ // 12 media packets
		{0xff, 0xf0},
		{0xfe, 0x00, 0x03, 0xf0},
		{0xf8, 0x00, 0x0f, 0x80, 0x00, 0xf0},
		{0xf0, 0x00, 0x1e, 0x00, 0x03, 0xc0, 0x00, 0x70},
		{0xe0, 0x00, 0x38, 0x00, 0x0f, 0x00, 0x01, 0xc0, 0x00, 0x70},
		{0xe0, 0x00, 0x38, 0x00, 0x0e, 0x00, 0x03, 0x80, 0x00, 0xe0, 0x00, 0x30},
		{0xc0, 0x00, 0x70, 0x00, 0x1c, 0x00, 0x06, 0x00, 0x03, 0x80, 0x00, 0xe0, 0x00, 0x30},
		{0xc0, 0x00, 0x70, 0x00, 0x18, 0x00, 0x0e, 0x00, 0x03, 0x00, 0x01, 0xc0, 0x00, 0x60, 0x00, 0x30},
		{0xc0, 0x00, 0x60, 0x00, 0x38, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x80, 0x00, 0xc0, 0x00, 0x60, 0x00, 0x30},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0e, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x60, 0x00, 0x30},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x60, 0x00, 0x30},
		{0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x18, 0x00, 0x0c, 0x00, 0x06, 0x00, 0x03, 0x00, 0x01, 0x80, 0x00, 0xc0, 0x00, 0x60, 0x00, 0x30, 0x00, 0x10},
	},
}
