package gateway

import (
	"net/http"

	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// statusFor maps a storagerpc error Kind to the HTTP status the dispatcher
// sends, per spec.md §7. DELETE gets its own NotFound mapping — a delete of
// an absent key is reported as success (204), everything else maps
// uniformly regardless of method.
func statusFor(kind storagerpc.Kind, method string) int {
	switch kind {
	case storagerpc.KindNotFound:
		if method == http.MethodDelete {
			return http.StatusNoContent
		}
		return http.StatusNotFound
	case storagerpc.KindTimeout:
		return http.StatusGatewayTimeout
	case storagerpc.KindBadRange:
		return http.StatusRequestedRangeNotSatisfiable
	case storagerpc.KindBadRequest:
		return http.StatusBadRequest
	case storagerpc.KindRolledBackUpload:
		return http.StatusInternalServerError
	case storagerpc.KindInternalError, storagerpc.KindCacheMiss:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to an HTTP status via its storagerpc.Kind and writes
// it as the response. The error is not logged here.
func (d *Dispatcher) writeError(w http.ResponseWriter, method string, err error) {
	kind := storagerpc.GetKind(err)
	status := statusFor(kind, method)

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	http.Error(w, err.Error(), status)
}
