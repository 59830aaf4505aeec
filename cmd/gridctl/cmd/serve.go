package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/griddist/core/internal/lowcomm"
	"github.com/griddist/core/internal/service"
)

var (
	listenAddr string
	peerFlags  []string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start this processor's transfer endpoint",
	Long: `Start a processor's low-comm gRPC endpoint and run its object manager,
multigrid and transfer/refine engines until interrupted.

With no --listen address, the processor runs against an in-process
loopback network instead of real gRPC peers, which only makes sense
when runtime.num_procs is 1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Single-processor run against the loopback network
  ` + binName + ` serve

  # Multi-processor run with a real gRPC transport
  ` + binName + ` serve --listen :7070 --peer 0=host0:7070 --peer 1=host1:7070`

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for this processor's gRPC endpoint (omit to use the in-process loopback network)")
	serveCmd.Flags().StringArrayVar(&peerFlags, "peer", nil, "Peer address as rank=host:port, repeatable; must cover every rank in [0,num_procs)")
}

func parsePeers(flags []string) (lowcomm.AddressBook, error) {
	book := make(lowcomm.AddressBook, len(flags))
	for _, f := range flags {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --peer %q, want rank=host:port", f)
		}
		rank, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid --peer rank %q: %w", parts[0], err)
		}
		book[rank] = parts[1]
	}
	return book, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	c := GetConfig()

	var opts []service.Option
	if listenAddr != "" {
		book, err := parsePeers(peerFlags)
		if err != nil {
			return err
		}
		transport, err := lowcomm.NewGRPCTransport(c.Runtime.Rank, c.Runtime.NumProcs, listenAddr, book, log)
		if err != nil {
			return fmt.Errorf("failed to start gRPC transport: %w", err)
		}
		opts = append(opts, service.WithTransport(transport))
	}

	svc, err := service.New(c, log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	log.Info("processor %d of %d serving (listen=%s)", c.Runtime.Rank, c.Runtime.NumProcs, listenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down...")
	return svc.Stop(context.Background())
}
