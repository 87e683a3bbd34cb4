package main

import (
	_ "github.com/eleven-am/livescribe/docs"
	"github.com/eleven-am/livescribe/internal/bootstrap"
)

// @title Livescribe Relay API
// @version 1.0.0
// @description Relay between capture clients and the speech-to-text sidecar

// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	bootstrap.Run()
}
