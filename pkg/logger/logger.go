package logger

import (
	"os"

	"go.uber.org/zap"
)

// New builds the process logger. Development mode (human-readable console
// output) is enabled with LOG_DEV=1.
func New() *zap.Logger {
	if os.Getenv("LOG_DEV") == "1" {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
