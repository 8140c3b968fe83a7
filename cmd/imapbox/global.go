package main

import "github.com/mailkit/imapbox/internal/config"

type GlobalFlags struct {
	configFile string
	quiet      bool
	verbose    bool
}

var (
	global GlobalFlags
	cfg    *config.Config
)
