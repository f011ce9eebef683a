package engine

import "fmt"

// Memory is a decoded paginated memory snapshot.
//
// On the wire a snapshot is a flat word array: the page size followed by
// repeated (base address, page size bytes) entries. A byte word of zero
// means uninitialised; any other value is the byte plus one.
type Memory struct {
	PageSize int
	Pages    []Page
}

// Page is one page of a memory snapshot.
type Page struct {
	Base  uint32
	Bytes []Byte
}

// Byte is a memory cell that may be uninitialised.
type Byte struct {
	Value byte
	Valid bool
}

// DecodeMemory decodes a flat memory snapshot. An empty input decodes to an
// empty snapshot.
func DecodeMemory(words []uint32) (Memory, error) {
	if len(words) == 0 {
		return Memory{}, nil
	}

	pageSize := int(words[0])
	if pageSize <= 0 {
		return Memory{}, fmt.Errorf("%w: page size %d", ErrMalformedSnapshot, pageSize)
	}

	mem := Memory{PageSize: pageSize}
	for i := 1; i < len(words); {
		if i+1+pageSize > len(words) {
			return Memory{}, fmt.Errorf("%w: truncated page at word %d", ErrMalformedSnapshot, i)
		}
		page := Page{Base: words[i], Bytes: make([]Byte, pageSize)}
		i++
		for j := 0; j < pageSize; j++ {
			w := words[i+j]
			if w > 0x100 {
				return Memory{}, fmt.Errorf("%w: byte value %d at word %d", ErrMalformedSnapshot, w, i+j)
			}
			if w != 0 {
				page.Bytes[j] = Byte{Value: byte(w - 1), Valid: true}
			}
		}
		i += pageSize
		mem.Pages = append(mem.Pages, page)
	}
	return mem, nil
}

// Encode returns the flat wire form of m. An empty snapshot encodes to nil.
func (m Memory) Encode() []uint32 {
	if m.PageSize == 0 {
		return nil
	}

	words := make([]uint32, 0, 1+len(m.Pages)*(1+m.PageSize))
	words = append(words, uint32(m.PageSize))
	for _, page := range m.Pages {
		words = append(words, page.Base)
		for j := 0; j < m.PageSize; j++ {
			var w uint32
			if j < len(page.Bytes) && page.Bytes[j].Valid {
				w = uint32(page.Bytes[j].Value) + 1
			}
			words = append(words, w)
		}
	}
	return words
}

// Empty reports whether the snapshot holds no pages.
func (m Memory) Empty() bool {
	return len(m.Pages) == 0
}
