package ccittg4

const (
	white = 0
	black = 1
)

const (
	eol            = "000000000001"
	passCode       = "0001"
	horizontalCode = "001"
)

// indexed by a1-b1+3
var verticalCodes = [7]string{
	"0000010", // VL3
	"000010",  // VL2
	"010",     // VL1
	"1",       // V0
	"011",     // VR1
	"000011",  // VR2
	"0000011", // VR3
}

var whiteTerminatingCodes = [64]string{
	"00110101", "000111", "0111", "1000", "1011", "1100", "1110", "1111",
	"10011", "10100", "00111", "01000", "001000", "000011", "110100", "110101",
	"101010", "101011", "0100111", "0001100", "0001000", "0010111", "0000011", "0000100",
	"0101000", "0101011", "0010011", "0100100", "0011000", "00000010", "00000011", "00011010",
	"00011011", "00010010", "00010011", "00010100", "00010101", "00010110", "00010111", "00101000",
	"00101001", "00101010", "00101011", "00101100", "00101101", "00000100", "00000101", "00001010",
	"00001011", "01010010", "01010011", "01010100", "01010101", "00100100", "00100101", "01011000",
	"01011001", "01011010", "01011011", "01001010", "01001011", "00110010", "00110011", "00110100",
}

var blackTerminatingCodes = [64]string{
	"0000110111", "010", "11", "10", "011", "0011", "0010", "00011",
	"000101", "000100", "0000100", "0000101", "0000111", "00000100", "00000111", "000011000",
	"0000010111", "0000011000", "0000001000", "00001100111", "00001101000", "00001101100", "00000110111", "00000101000",
	"00000010111", "00000011000", "000011001010", "000011001011", "000011001100", "000011001101", "000001101000", "000001101001",
	"000001101010", "000001101011", "000011010010", "000011010011", "000011010100", "000011010101", "000011010110", "000011010111",
	"000001101100", "000001101101", "000011011010", "000011011011", "000001010100", "000001010101", "000001010110", "000001010111",
	"000001100100", "000001100101", "000001010010", "000001010011", "000000100100", "000000110111", "000000111000", "000000100111",
	"000000101000", "000001011000", "000001011001", "000000101011", "000000101100", "000001011010", "000001100110", "000001100111",
}

var whiteMakeupCodes = map[int]string{
	64: "11011", 128: "10010", 192: "010111", 256: "0110111",
	320: "00110110", 384: "00110111", 448: "01100100", 512: "01100101",
	576: "01101000", 640: "01100111", 704: "011001100", 768: "011001101",
	832: "011010010", 896: "011010011", 960: "011010100", 1024: "011010101",
	1088: "011010110", 1152: "011010111", 1216: "011011000", 1280: "011011001",
	1344: "011011010", 1408: "011011011", 1472: "010011000", 1536: "010011001",
	1600: "010011010", 1664: "011000", 1728: "010011011",
}

var blackMakeupCodes = map[int]string{
	64: "0000001111", 128: "000011001000", 192: "000011001001", 256: "000001011011",
	320: "000000110011", 384: "000000110100", 448: "000000110101", 512: "0000001101100",
	576: "0000001101101", 640: "0000001001010", 704: "0000001001011", 768: "0000001001100",
	832: "0000001001101", 896: "0000001110010", 960: "0000001110011", 1024: "0000001110100",
	1088: "0000001110101", 1152: "0000001110110", 1216: "0000001110111", 1280: "0000001010010",
	1344: "0000001010011", 1408: "0000001010100", 1472: "0000001010101", 1536: "0000001011010",
	1600: "0000001011011", 1664: "0000001100100", 1728: "0000001100101",
}

// makeup codes for 1792..2560, common to both colors
var sharedMakeupCodes = map[int]string{
	1792: "00000001000", 1856: "00000001100", 1920: "00000001101", 1984: "000000010010",
	2048: "000000010011", 2112: "000000010100", 2176: "000000010101", 2240: "000000010110",
	2304: "000000010111", 2368: "000000011100", 2432: "000000011101", 2496: "000000011110",
	2560: "000000011111",
}
