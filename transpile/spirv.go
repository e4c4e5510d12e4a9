package transpile

import (
	"encoding/binary"
	"errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

const (
	opName        = 5
	opTypeImage   = 25
	opTypeSampler = 26
	opTypePointer = 32
	opVariable    = 59
	spirvHeaderSz = 5
)

var errBadSPIRV = errors.New("invalid SPIR-V module")

// Words converts a little-endian SPIR-V byte stream into words.
func Words(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("SPIR-V byte length not a multiple of 4")
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if len(words) < spirvHeaderSz || words[0] != SPIRVMagic {
		return nil, errBadSPIRV
	}
	return words, nil
}

// Bytes converts SPIR-V words to a little-endian byte stream.
func Bytes(words []uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// Reflection is the subset of SPIR-V module information the GLSL rewrites need.
type Reflection struct {
	// Textures are the names of separate image variables in declaration order.
	Textures []string
	// Samplers are the names of separate sampler variables in declaration order.
	Samplers []string
}

// Reflect walks the instructions of a SPIR-V module collecting texture and sampler names.
func Reflect(words []uint32) (Reflection, error) {
	var r Reflection
	if len(words) < spirvHeaderSz || words[0] != SPIRVMagic {
		return r, errBadSPIRV
	}
	names := make(map[uint32]string)
	images := make(map[uint32]bool)
	samplers := make(map[uint32]bool)
	pointee := make(map[uint32]uint32)
	type variable struct{ typ, id uint32 }
	var vars []variable
	for i := spirvHeaderSz; i < len(words); {
		op := words[i] & 0xffff
		n := int(words[i] >> 16)
		if n == 0 || i+n > len(words) {
			return r, errBadSPIRV
		}
		args := words[i+1 : i+n]
		switch op {
		case opName:
			if len(args) >= 2 {
				names[args[0]] = decodeString(args[1:])
			}
		case opTypeImage:
			images[args[0]] = true
		case opTypeSampler:
			samplers[args[0]] = true
		case opTypePointer:
			if len(args) >= 3 {
				pointee[args[0]] = args[2]
			}
		case opVariable:
			if len(args) >= 2 {
				vars = append(vars, variable{typ: args[0], id: args[1]})
			}
		}
		i += n
	}
	for _, v := range vars {
		t := pointee[v.typ]
		name := names[v.id]
		if name == "" {
			continue
		}
		switch {
		case images[t]:
			r.Textures = append(r.Textures, name)
		case samplers[t]:
			r.Samplers = append(r.Samplers, name)
		}
	}
	return r, nil
}

func decodeString(words []uint32) string {
	b := make([]byte, 0, 4*len(words))
	for _, w := range words {
		for k := 0; k < 4; k++ {
			c := byte(w >> (8 * k))
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}
