package benchmark

import (
	"context"
	"fmt"
	"time"
)

func slowFunc(ctx context.Context, ms int) (string, error) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return fmt.Sprintf("result %d", ms), nil
}
