package flac

import "github.com/jmoon/audiocore/internal/bitio"

// riceEscapeParameter4 and riceEscapeParameter5 are the "this partition uses
// raw unencoded bits" escape codes, per RFC 9639 §9.2.3: all-1s in whichever
// width the residual coding method uses for its partition parameter.
const (
	riceEscapeParameter4 = 0xF
	riceEscapeParameter5 = 0x1F
)

// decodeResidual fills residual[0:blockSize-predictorOrder] with the
// zigzag-decoded prediction residual for one subframe, per RFC 9639 §9.2:
// a 2-bit coding method selects 4-bit (method 0) or 5-bit (method 1) Rice
// parameters, a 4-bit partition order splits the residual into 2^order
// partitions (the first partition short by predictorOrder samples, since
// those are carried as warm-up instead), and each partition is either
// Rice-coded or, on the escape parameter, stored as fixed-width raw bits.
func decodeResidual(br *bitio.BitReader, blockSize int, predictorOrder int, residual []int32) error {
	method, err := br.ReadBits(2)
	if err != nil {
		return err
	}
	var paramBits uint
	var escapeCode uint32
	switch method {
	case 0:
		paramBits = 4
		escapeCode = riceEscapeParameter4
	case 1:
		paramBits = 5
		escapeCode = riceEscapeParameter5
	default:
		return errReservedResidualMethod{}
	}

	partitionOrderBits, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	partitions := 1 << partitionOrderBits
	if blockSize%partitions != 0 {
		return errBadPartitionOrder{}
	}
	samplesPerPartition := blockSize / partitions
	if samplesPerPartition <= predictorOrder {
		return errBadPartitionOrder{}
	}

	pos := 0
	for p := 0; p < partitions; p++ {
		n := samplesPerPartition
		if p == 0 {
			n -= predictorOrder
		}
		param, err := br.ReadBits(paramBits)
		if err != nil {
			return err
		}
		if param == escapeCode {
			rawBits, err := br.ReadBits(5)
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				v, err := readSigned(br, uint(rawBits))
				if err != nil {
					return err
				}
				residual[pos] = v
				pos++
			}
			continue
		}
		for i := 0; i < n; i++ {
			v, err := readRiceValue(br, uint(param))
			if err != nil {
				return err
			}
			residual[pos] = v
			pos++
		}
	}
	return nil
}

// readRiceValue decodes one Rice-coded residual: a unary quotient, k
// remainder bits, and a zigzag fold back to a signed value.
func readRiceValue(br *bitio.BitReader, k uint) (int32, error) {
	q, err := br.ReadUnary()
	if err != nil {
		return 0, err
	}
	var r uint32
	if k > 0 {
		r, err = br.ReadBits(k)
		if err != nil {
			return 0, err
		}
	}
	folded := (q << k) | r
	return zigzagDecode(folded), nil
}

func zigzagDecode(v uint32) int32 {
	if v&1 != 0 {
		return -int32((v + 1) >> 1)
	}
	return int32(v >> 1)
}

// readSigned reads an n-bit (0..32) two's-complement value and sign-extends
// it to int32.
func readSigned(br *bitio.BitReader, n uint) (int32, error) {
	if n == 0 {
		return 0, nil
	}
	v, err := br.ReadBits(n)
	if err != nil {
		return 0, err
	}
	signBit := uint64(1) << (n - 1)
	uv := uint64(v)
	if uv&signBit != 0 {
		uv -= signBit << 1
	}
	return int32(uv), nil
}

type errReservedResidualMethod struct{}

func (errReservedResidualMethod) Error() string { return "flac residual: reserved coding method" }

type errBadPartitionOrder struct{}

func (errBadPartitionOrder) Error() string {
	return "flac residual: partition order incompatible with block size or predictor order"
}
