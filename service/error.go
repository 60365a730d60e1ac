package service

import (
	"fmt"
)

// Verify Interface Compliance
var _ error = (*Err)(nil)

// Err defines service errors.
type Err struct {
	Code    int64  `json:"code"`
	Message string `json:"error"`
}

var (
	NoErr              = Err{0, "success"}
	InternalErr        = Err{500, "internal error"}
	ErrInvalidBlobHash = Err{400, "invalid blob hash"}
	ErrBlobNotFound    = Err{404, "blob not found"}
	ErrBlobNotArchived = Err{404, "blob not archived yet"}
)

func (e Err) Enrich(message string) Err {
	return Err{
		Code:    e.Code,
		Message: fmt.Sprintf("%s: %s", e.Message, message),
	}
}

func (e Err) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}
