package kad

import (
	"context"

	pb "github.com/libp2p/go-libp2p-kad-dht/pb"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-msgio/pbio"

	"github.com/james-lawrence/kadproviders/internal/errorsx"
)

// messenger sends kademlia requests over a fresh stream per request.
// messages are varint length delimited protobufs.
type messenger struct {
	host      host.Host
	protocols []protocol.ID
}

func newmessenger(h host.Host, protocols []protocol.ID) pb.MessageSenderWithDisconnect {
	return messenger{host: h, protocols: protocols}
}

func (t messenger) OnDisconnect(context.Context, peer.ID) {}

func (t messenger) SendRequest(ctx context.Context, p peer.ID, req *pb.Message) (_ *pb.Message, err error) {
	s, err := t.open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.Reset() })
	defer stop()

	if err = pbio.NewDelimitedWriter(s).WriteMsg(req); err != nil {
		s.Reset()
		return nil, errorsx.Wrapf(err, "unable to write %s to %s", req.GetType(), p)
	}

	resp := new(pb.Message)
	if err = pbio.NewDelimitedReader(s, network.MessageSizeMax).ReadMsg(resp); err != nil {
		s.Reset()
		return nil, errorsx.Wrapf(errorsx.Compact(ctx.Err(), err), "unable to read %s response from %s", req.GetType(), p)
	}

	return resp, nil
}

func (t messenger) SendMessage(ctx context.Context, p peer.ID, msg *pb.Message) error {
	s, err := t.open(ctx, p)
	if err != nil {
		return err
	}

	if err = pbio.NewDelimitedWriter(s).WriteMsg(msg); err != nil {
		s.Reset()
		return errorsx.Wrapf(err, "unable to write %s to %s", msg.GetType(), p)
	}

	return s.Close()
}

func (t messenger) open(ctx context.Context, p peer.ID) (network.Stream, error) {
	s, err := t.host.NewStream(ctx, p, t.protocols...)
	if err != nil {
		return nil, errorsx.Wrapf(err, "unable to open stream to %s", p)
	}

	if deadline, ok := ctx.Deadline(); ok {
		errorsx.Log(s.SetDeadline(deadline))
	}

	return s, nil
}
