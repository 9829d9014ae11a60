package flac

import "github.com/jmoon/audiocore/internal/bitio"

// fixedPredictorCoeffs are RFC 9639 §9.2.2's four fixed-predictor formulas,
// expressed as the coefficients applied to the 1..4 preceding samples
// (most recent first): order 0 predicts zero (so an empty coefficient list),
// order 1 predicts the previous sample, and so on.
var fixedPredictorCoeffs = [][]int64{
	{},
	{1},
	{2, -1},
	{3, -3, 1},
	{4, -6, 4, -1},
}

// decodeSubframe reads one channel's subframe from br into out[0:blockSize],
// per RFC 9639 §9.2: a subframe header (type + optional wasted-bits count)
// followed by a CONSTANT, VERBATIM, FIXED, or LPC encoded body. residual is
// reusable scratch at least len(out) long, owned by the caller, so a FIXED
// or LPC body never allocates.
func decodeSubframe(br *bitio.BitReader, blockSize int, bitsPerSample uint8, out, residual []int32, lpcCoeffs []int64) error {
	if _, err := br.ReadBits(1); err != nil { // zero bit
		return err
	}
	typeCode, err := br.ReadBits(6)
	if err != nil {
		return err
	}
	wastedFlag, err := br.ReadBits(1)
	if err != nil {
		return err
	}
	wasted := uint(0)
	if wastedFlag == 1 {
		n, err := br.ReadUnary()
		if err != nil {
			return err
		}
		wasted = uint(n) + 1
	}
	bps := int(bitsPerSample) - int(wasted)
	if bps <= 0 {
		return errWastedBitsExceedDepth{}
	}

	switch {
	case typeCode == 0x00:
		if err := decodeConstant(br, blockSize, uint8(bps), out); err != nil {
			return err
		}
	case typeCode == 0x01:
		if err := decodeVerbatim(br, blockSize, uint8(bps), out); err != nil {
			return err
		}
	case typeCode >= 0x08 && typeCode <= 0x0C:
		order := int(typeCode - 0x08)
		if err := decodeFixed(br, blockSize, uint8(bps), order, out, residual); err != nil {
			return err
		}
	case typeCode >= 0x20:
		order := int(typeCode-0x20) + 1
		if err := decodeLPC(br, blockSize, uint8(bps), order, out, residual, lpcCoeffs); err != nil {
			return err
		}
	default:
		return errReservedSubframeType{}
	}

	if wasted > 0 {
		for i := range out[:blockSize] {
			out[i] <<= wasted
		}
	}
	return nil
}

func decodeConstant(br *bitio.BitReader, blockSize int, bps uint8, out []int32) error {
	v, err := readSigned(br, uint(bps))
	if err != nil {
		return err
	}
	for i := 0; i < blockSize; i++ {
		out[i] = v
	}
	return nil
}

func decodeVerbatim(br *bitio.BitReader, blockSize int, bps uint8, out []int32) error {
	for i := 0; i < blockSize; i++ {
		v, err := readSigned(br, uint(bps))
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

func decodeFixed(br *bitio.BitReader, blockSize int, bps uint8, order int, out, residual []int32) error {
	if order < 0 || order > 4 {
		return errBadPredictorOrder{}
	}
	if order > blockSize {
		return errBadPredictorOrder{}
	}
	for i := 0; i < order; i++ {
		v, err := readSigned(br, uint(bps))
		if err != nil {
			return err
		}
		out[i] = v
	}

	residual = residual[:blockSize-order]
	if err := decodeResidual(br, blockSize, order, residual); err != nil {
		return err
	}

	coeffs := fixedPredictorCoeffs[order]
	for i := order; i < blockSize; i++ {
		var pred int64
		for j, c := range coeffs {
			pred += c * int64(out[i-1-j])
		}
		out[i] = int32(pred) + residual[i-order]
	}
	return nil
}

func decodeLPC(br *bitio.BitReader, blockSize int, bps uint8, order int, out, residual []int32, coeffs []int64) error {
	if order <= 0 || order > 32 || order > blockSize {
		return errBadPredictorOrder{}
	}
	for i := 0; i < order; i++ {
		v, err := readSigned(br, uint(bps))
		if err != nil {
			return err
		}
		out[i] = v
	}

	precisionCode, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	if precisionCode == 0xF {
		return errReservedQLPPrecision{}
	}
	precision := uint(precisionCode) + 1

	shiftCode, err := br.ReadBits(5)
	if err != nil {
		return err
	}
	shift := uint(shiftCode)

	coeffs = coeffs[:order]
	for i := 0; i < order; i++ {
		c, err := readSigned(br, precision)
		if err != nil {
			return err
		}
		coeffs[i] = int64(c)
	}

	residual = residual[:blockSize-order]
	if err := decodeResidual(br, blockSize, order, residual); err != nil {
		return err
	}

	for i := order; i < blockSize; i++ {
		var pred int64
		for j, c := range coeffs {
			pred += c * int64(out[i-1-j])
		}
		pred >>= shift
		out[i] = int32(pred) + residual[i-order]
	}
	return nil
}

type errReservedSubframeType struct{}

func (errReservedSubframeType) Error() string { return "flac subframe: reserved subframe type" }

type errWastedBitsExceedDepth struct{}

func (errWastedBitsExceedDepth) Error() string {
	return "flac subframe: wasted bits count exceeds bit depth"
}

type errBadPredictorOrder struct{}

func (errBadPredictorOrder) Error() string { return "flac subframe: predictor order invalid for block size" }

type errReservedQLPPrecision struct{}

func (errReservedQLPPrecision) Error() string { return "flac subframe: reserved LPC precision code" }
