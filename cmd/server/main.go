package main

import (
	"github.com/OFFIS-RIT/newsgraph/internal/server"
	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
)

func main() {
	util.LoadEnv()

	cfg := setup.LoadConfig()
	setup.InitLogger(cfg)

	server.Init(cfg)
}
