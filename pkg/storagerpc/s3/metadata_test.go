package s3

import (
	"testing"

	"github.com/marmos91/storage-gateway/pkg/storagerpc"
	"github.com/stretchr/testify/assert"
)

func TestUserMetadata_RoundTrips(t *testing.T) {
	want := storagerpc.ObjectMetadata{
		Checksum:  []byte{0xde, 0xad, 0xbe, 0xef},
		Timestamp: 1700000000,
		DSize:     12345,
		CNumber:   3,
		Del:       false,
	}

	got := fromUserMetadata(toUserMetadata(want))
	assert.Equal(t, want, got)
}

func TestUserMetadata_TombstoneRoundTrips(t *testing.T) {
	want := storagerpc.ObjectMetadata{Del: true}
	got := fromUserMetadata(toUserMetadata(want))
	assert.True(t, got.Del)
}
