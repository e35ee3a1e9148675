package hdlc

const (
	fcsInit uint16 = 0xffff
	fcsGood uint16 = 0xf0b8
	fcsPoly uint16 = 0x8408 // x^16 + x^12 + x^5 + 1, bit reversed
)

var fcsTable = makeFcsTable()

func makeFcsTable() (table [256]uint16) {
	for i := range table {
		v := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if v&1 != 0 {
				v = v>>1 ^ fcsPoly
			} else {
				v >>= 1
			}
		}
		table[i] = v
	}
	return
}

func updateFcs(fcs uint16, b byte) uint16 {
	return fcs>>8 ^ fcsTable[byte(fcs)^b]
}

// Fcs returns the 16-bit frame check sequence of data as sent on the wire.
func Fcs(data []byte) uint16 {
	fcs := fcsInit
	for _, b := range data {
		fcs = updateFcs(fcs, b)
	}
	return fcs ^ 0xffff
}
