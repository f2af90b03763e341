package clipboard

import (
	"errors"
	"testing"
)

func TestCopyRejectsEmpty(t *testing.T) {
	for _, text := range []string{"", "  ", "\n\t"} {
		if err := Copy(text); !errors.Is(err, ErrEmpty) {
			t.Errorf("Copy(%q) = %v, want ErrEmpty", text, err)
		}
	}
}
