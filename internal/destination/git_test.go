package destination

import (
	"context"
	"testing"
)

func TestVersionControlEnumerateUnsupported(t *testing.T) {
	v := &VersionControl{name: "notes"}
	if _, err := v.Enumerate(context.Background(), "/anything"); err != ErrUnsupported {
		t.Fatalf("Enumerate() error = %v, want ErrUnsupported", err)
	}
}

func TestVersionControlDeleteUnsupported(t *testing.T) {
	v := &VersionControl{name: "notes"}
	if err := v.Delete(context.Background(), "/anything"); err != ErrUnsupported {
		t.Fatalf("Delete() error = %v, want ErrUnsupported", err)
	}
}
