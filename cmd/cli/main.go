package main

import (
	"context"

	"github.com/dmitrijs2005/sshkeeper/internal/cli"
	"github.com/dmitrijs2005/sshkeeper/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	cli.NewApp(cfg).Run(ctx)
}
