package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"matchbook/internal/common"
	"matchbook/internal/engine"
	"matchbook/internal/net"

	"github.com/rs/zerolog/log"
)

func main() {
	address := flag.String("address", "0.0.0.0", "address to listen on")
	port := flag.Int("port", 9001, "port to listen on")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the TCP server and the matching engine.
	eng := engine.New(common.Equities)
	defer eng.Shutdown()

	srv := net.New(*address, *port, eng)
	eng.SetReporter(srv)

	log.Info().Str("address", *address).Int("port", *port).Msg("starting matchbook")

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
