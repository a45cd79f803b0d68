// Package local provides the built-in in-process implementation of the
// node.Factory interface.
//
// The local factory tracks server and aggregator node handles, allocates
// listening ports with conflict detection, and announces commissionable
// nodes over mDNS using the zeroconf library. Pairing codes are generated
// from crypto/rand.
//
// It does not implement a wire protocol itself: fabric and session events
// are injected by an attached protocol backend through Emit. Deployments
// with a full protocol stack replace this package behind node.Factory.
//
// # Usage
//
//	factory := local.NewFactory(local.Options{
//		BasePort: 5540,
//		MDNS:     true,
//		Logger:   logger,
//	})
//	defer factory.Close()
//
//	handle, err := factory.CreateServerNode("plugin-hue", node.NetworkOptions{})
//	if err != nil {
//		return err
//	}
//	if err := factory.StartServerNode(ctx, handle); err != nil {
//		return err
//	}
//	pairing, err := factory.Advertise(handle)
package local
