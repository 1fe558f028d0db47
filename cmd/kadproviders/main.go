// Command kadproviders queries a kademlia DHT for content provider records.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/libp2p/go-libp2p/core/protocol"
	"golang.org/x/time/rate"

	"github.com/james-lawrence/kadproviders/internal/langx"
	"github.com/james-lawrence/kadproviders/internal/logx"
	"github.com/james-lawrence/kadproviders/kad"
	"github.com/james-lawrence/kadproviders/lookup"
)

type cli struct {
	Key          kad.Key       `arg:"-p,--provider-key,required,env:KAD_PROVIDER_KEY" placeholder:"KEY" help:"key (hex or CID) of the content provider record to query"`
	Bootnode     kad.Bootnode  `arg:"-b,--bootnode,env:KAD_BOOTNODE" placeholder:"MULTIADDR" help:"bootnode multiaddress"`
	Protocol     string        `arg:"-k,--kad-proto,env:KAD_PROTOCOL" placeholder:"PROTOCOL" help:"kademlia protocol name"`
	Prepopulate  uint          `arg:"-n,--prepopulate,env:KAD_PREPOPULATE" help:"number of random FIND_NODE queries issued before the provider lookup"`
	Rate         float64       `arg:"--rate,env:KAD_RATE" help:"maximum DHT commands submitted per second"`
	QueryTimeout time.Duration `arg:"--query-timeout,env:KAD_QUERY_TIMEOUT" help:"upper bound for a single query walk, 0 disables"`
	Verbose      bool          `arg:"-v,--verbose" help:"log state transitions and ignored events to stderr"`
}

func (cli) Description() string {
	return "query kademlia DHT content provider records"
}

func defaults() cli {
	return cli{
		Bootnode:     langx.Must(kad.ParseBootnode(kad.DefaultBootnode)),
		Protocol:     kad.DefaultProtocol,
		Rate:         10,
		QueryTimeout: 2 * time.Minute,
	}
}

func main() {
	args := defaults()
	arg.MustParse(&args)

	ctx, done := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, args)
	done()

	if err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, args cli) (err error) {
	l := logx.Verbose(args.Verbose, logx.New(os.Stderr, "[kadproviders] "))

	node, err := kad.NewNode(
		ctx,
		kad.OptionProtocol(protocol.ID(args.Protocol)),
		kad.OptionBootnode(args.Bootnode),
		kad.OptionRate(rate.Limit(args.Rate), 1),
		kad.OptionQueryTimeout(args.QueryTimeout),
		kad.OptionLogger(l),
	)
	if err != nil {
		return err
	}
	defer node.Close()

	l.Println("local peer", node.ID())

	return lookup.New(
		node,
		node,
		args.Key,
		lookup.OptionPrepopulate(args.Prepopulate),
		lookup.OptionLogger(l),
		lookup.OptionOutput(os.Stdout),
	).Run(ctx)
}
