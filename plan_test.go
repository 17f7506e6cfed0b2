package b2uploader

import "testing"

func TestNewPartPlanContiguous(t *testing.T) {
	partSize := int64(7)
	for size := int64(1); size <= 200; size++ {
		plan, err := NewPartPlan(size, partSize)
		if err != nil {
			t.Fatalf("size %d: unexpected error %v", size, err)
		}

		expectedParts := int((size + partSize - 1) / partSize)
		if plan.Len() != expectedParts {
			t.Fatalf("size %d: expected %d parts, got %d", size, expectedParts, plan.Len())
		}

		var next int64
		for i, part := range plan.Parts {
			if part.Number != i+1 {
				t.Fatalf("size %d: expected part number %d, got %d", size, i+1, part.Number)
			}
			if part.Offset != next {
				t.Fatalf("size %d: part %d starts at %d, expected %d", size, part.Number, part.Offset, next)
			}
			if part.Size <= 0 || part.Size > partSize {
				t.Fatalf("size %d: part %d has invalid size %d", size, part.Number, part.Size)
			}
			next = part.End()
		}

		if next != size {
			t.Fatalf("size %d: plan covers %d bytes", size, next)
		}

		last := plan.Parts[plan.Len()-1]
		wantLast := size % partSize
		if wantLast == 0 {
			wantLast = partSize
		}
		if last.Size != wantLast {
			t.Fatalf("size %d: expected last part size %d, got %d", size, wantLast, last.Size)
		}
	}
}

func TestNewPartPlanRejectsInvalidInput(t *testing.T) {
	if _, err := NewPartPlan(0, 10); err == nil {
		t.Fatal("expected error for empty file")
	}
	if _, err := NewPartPlan(10, 0); err == nil {
		t.Fatal("expected error for zero part size")
	}
}

func TestPartPlanBatches(t *testing.T) {
	plan, err := NewPartPlan(500*MiB, 20*MiB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.Len() != 25 {
		t.Fatalf("expected 25 parts, got %d", plan.Len())
	}

	batches := plan.Batches(10)
	sizes := []int{len(batches[0]), len(batches[1]), len(batches[2])}
	if len(batches) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Fatalf("expected batches of 10, 10, 5, got %d batches %v", len(batches), sizes)
	}

	if batches[2][4].Number != 25 || batches[2][4].End() != 500*MiB {
		t.Fatalf("unexpected final part %+v", batches[2][4])
	}
}
