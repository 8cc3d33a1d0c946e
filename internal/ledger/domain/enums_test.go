package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubtractOperation(t *testing.T) {
	assert.Equal(t, OpSubQinQeg, SubtractOperation(UnderQuota, UnderQuota))
	assert.Equal(t, OpSubOQinQeg, SubtractOperation(OverQuota, UnderQuota))
	assert.Equal(t, OpSubQinOQeg, SubtractOperation(UnderQuota, OverQuota))
	assert.Equal(t, OpSubMinMeg, SubtractOperation(Mixed, Mixed))
	assert.Equal(t, OpSubOQinMeg, SubtractOperation(OverQuota, Mixed))
	assert.Equal(t, OpSubMinOQeg, SubtractOperation(Mixed, OverQuota))

	seen := map[OperationType]bool{}
	for _, in := range []QuotaState{UnderQuota, Mixed, OverQuota} {
		for _, eg := range []QuotaState{UnderQuota, Mixed, OverQuota} {
			seen[SubtractOperation(in, eg)] = true
		}
	}
	assert.Len(t, seen, 9)
}

func TestDirectionAllows(t *testing.T) {
	assert.True(t, IOIncoming.Allows(1))
	assert.True(t, IOIncoming.Allows(0))
	assert.False(t, IOIncoming.Allows(-1))
	assert.False(t, IOOutgoing.Allows(1))
	assert.True(t, IOBidirectional.Allows(-1))
}

func TestParseOperationType(t *testing.T) {
	op, err := ParseOperationType("add_cash")
	assert.NoError(t, err)
	assert.Equal(t, OpAddCash, op)

	_, err = ParseOperationType("sub_everything")
	assert.ErrorIs(t, err, ErrInvalidOperationType)

	var scanned OperationType
	assert.NoError(t, scanned.Scan([]byte("rollback")))
	assert.Equal(t, OpRollback, scanned)
}
