package s3

import (
	"encoding/hex"
	"strconv"

	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// User metadata keys under which storagerpc.ObjectMetadata is round-tripped
// through S3's x-amz-meta-* headers, since S3 itself has no cnumber/del
// concept of its own.
const (
	metaChecksum  = "checksum"
	metaTimestamp = "timestamp"
	metaDSize     = "dsize"
	metaCNumber   = "cnumber"
	metaDel       = "del"
)

func toUserMetadata(meta storagerpc.ObjectMetadata) map[string]string {
	del := "0"
	if meta.Del {
		del = "1"
	}
	return map[string]string{
		metaChecksum:  hex.EncodeToString(meta.Checksum),
		metaTimestamp: strconv.FormatInt(meta.Timestamp, 10),
		metaDSize:     strconv.FormatInt(meta.DSize, 10),
		metaCNumber:   strconv.FormatInt(meta.CNumber, 10),
		metaDel:       del,
	}
}

func fromUserMetadata(m map[string]string) storagerpc.ObjectMetadata {
	checksum, _ := hex.DecodeString(m[metaChecksum])
	timestamp, _ := strconv.ParseInt(m[metaTimestamp], 10, 64)
	dsize, _ := strconv.ParseInt(m[metaDSize], 10, 64)
	cnumber, _ := strconv.ParseInt(m[metaCNumber], 10, 64)
	return storagerpc.ObjectMetadata{
		Checksum:  checksum,
		Timestamp: timestamp,
		DSize:     dsize,
		CNumber:   cnumber,
		Del:       m[metaDel] == "1",
	}
}
