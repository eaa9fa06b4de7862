package dynaquery

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"
)

// IsLambdaEnvironment detects if running in AWS Lambda
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// GetLambdaMemoryMB returns the allocated memory in MB
func GetLambdaMemoryMB() int {
	mem, err := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"))
	if err != nil {
		return 0
	}
	return mem
}

// GetRemainingTimeMillis returns milliseconds until the context deadline, or -1 without one.
func GetRemainingTimeMillis(ctx context.Context) int64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	return time.Until(deadline).Milliseconds()
}

// WithLambdaDeadline returns a context that expires buffer before ctx does,
// leaving the handler time to return a partial result and its cursor.
func WithLambdaDeadline(ctx context.Context, buffer time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-buffer))
}

// LambdaLogger returns the client's logger with the invocation's request id
// and function name, when ctx carries a Lambda context.
func (c *Client) LambdaLogger(ctx context.Context) zerolog.Logger {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok {
		return c.logger
	}
	return c.logger.With().
		Str("aws_request_id", lc.AwsRequestID).
		Str("function", lambdacontext.FunctionName).
		Logger()
}
