package ogg

// Ogg's page checksum is a non-reflected CRC-32 with polynomial 0x04C11DB7,
// initial value 0 and no final XOR — distinct from hash/crc32's reflected
// IEEE variant, so this table is built by hand rather than reusing the
// standard library's.
const crcPolynomial uint32 = 0x04C11DB7

var crcTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// crcUpdate folds data into the running checksum, MSB-first per byte.
func crcUpdate(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// pageChecksum computes the CRC-32 of a full page (header + segment table +
// payload) with the header's crc_checksum field treated as zero, per the
// Ogg page format.
func pageChecksum(page []byte, crcFieldOffset int) uint32 {
	var crc uint32
	crc = crcUpdate(crc, page[:crcFieldOffset])
	crc = crcUpdate(crc, []byte{0, 0, 0, 0})
	crc = crcUpdate(crc, page[crcFieldOffset+4:])
	return crc
}
