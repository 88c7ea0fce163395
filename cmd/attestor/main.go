package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/app"
)

func main() {
	if err := app.RootCmd().Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func init() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
}
