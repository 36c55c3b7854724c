package musicapi

import "os"

// IsLambda reports whether the process is running inside the Lambda execution environment.
func IsLambda() bool {
	for _, key := range []string{
		"AWS_LAMBDA_FUNCTION_NAME",
		"AWS_LAMBDA_RUNTIME_API",
		"LAMBDA_TASK_ROOT",
		"AWS_EXECUTION_ENV",
	} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}
