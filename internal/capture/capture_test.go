package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoStage_ConcatPlanesLumaFirst(t *testing.T) {
	out := concatPlanes([][]byte{{1, 2}, {3, 4, 5}})
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, out)
}
