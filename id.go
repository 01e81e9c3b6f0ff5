package nova

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newRequestID generates the public identifier for one chat request.
func newRequestID() string {
	return "chatcmpl-" + uuid.Must(uuid.NewV7()).String()
}

// stepRequestID namespaces a generation attempt within a request so that an
// abort for one step can never collide with another in-flight step.
func stepRequestID(requestID string, step int) string {
	return fmt.Sprintf("%s-step-%d", requestID, step)
}

// nowUnix returns current time as Unix seconds.
func nowUnix() int64 {
	return time.Now().Unix()
}
