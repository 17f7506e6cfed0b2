package b2uploader

import "fmt"

// Part is one contiguous byte range of a large file.
type Part struct {
	Number int
	Offset int64
	Size   int64
}

// End is the exclusive end offset of the part.
func (p Part) End() int64 {
	return p.Offset + p.Size
}

// PartPlan is the ordered list of parts for a file. Part numbers start at 1
// and have no gaps; the last part absorbs the remainder.
type PartPlan struct {
	FileSize int64
	PartSize int64
	Parts    []Part
}

// NewPartPlan splits size into parts of partSize bytes.
func NewPartPlan(size, partSize int64) (*PartPlan, error) {
	if size <= 0 {
		return nil, fmt.Errorf("part plan: file size must be positive, got %d", size)
	}
	if partSize <= 0 {
		return nil, fmt.Errorf("part plan: part size must be positive, got %d", partSize)
	}

	count := (size + partSize - 1) / partSize
	parts := make([]Part, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * partSize
		end := offset + partSize
		if end > size {
			end = size
		}
		parts = append(parts, Part{
			Number: int(i) + 1,
			Offset: offset,
			Size:   end - offset,
		})
	}

	return &PartPlan{
		FileSize: size,
		PartSize: partSize,
		Parts:    parts,
	}, nil
}

// Len returns the number of parts.
func (p *PartPlan) Len() int {
	return len(p.Parts)
}

// Batches groups the parts into runs of at most perBatch parts, in order.
func (p *PartPlan) Batches(perBatch int) [][]Part {
	if perBatch <= 0 {
		perBatch = len(p.Parts)
	}

	var batches [][]Part
	for start := 0; start < len(p.Parts); start += perBatch {
		end := start + perBatch
		if end > len(p.Parts) {
			end = len(p.Parts)
		}
		batches = append(batches, p.Parts[start:end])
	}
	return batches
}
