package node

import (
	"net"

	"github.com/jabolina/go-dfs/pkg/dfs/store"
	"github.com/jabolina/go-dfs/pkg/dfs/transport"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

// TrackerExtensions holds the handlers only the tracker runs, composed
// into a Node rather than subclassed (DESIGN NOTES §9), grounded on
// original_source/tracker.py's Tracker class.
type TrackerExtensions struct {
	n *Node
}

func newTrackerExtensions(n *Node) *TrackerExtensions {
	return &TrackerExtensions{n: n}
}

// handlerTable returns the tracker-only handlers, gated online where the
// source gates them via check_connected (every handler except
// CONNECT_REQUEST itself, since a not-yet-connected peer has nothing to
// check against).
func (t *TrackerExtensions) handlerTable() transport.HandlerTable {
	return transport.HandlerTable{
		wire.ConnectRequest:          t.handleConnectRequest,
		wire.DisconnectRequest:       t.gateOnline(t.handleDisconnectRequest),
		wire.PeerListRequest:         t.gateOnline(t.handlePeerListRequest),
		wire.NewFileAvailable:        t.gateOnline(t.handleNewFileAvailable),
		wire.FileChanged:             t.gateOnline(t.handleFileChanged),
		wire.ListRequest:             t.gateOnline(t.handleListRequest),
		wire.ValidateChecksumRequest: t.gateOnline(t.handleValidateChecksumRequest),
		wire.ArchiveRequest:          t.gateOnline(t.handleArchiveRequest),
		wire.DeleteRequest:           t.gateOnline(t.handleDeleteRequest),
	}
}

// gateOnline wraps a handler so it is skipped entirely when the caller is
// not currently ONLINE in the peer table (looked up by host and advertised
// port when the message carries a port, by host alone otherwise), grounded
// on tracker.py's check_connected decorator.
func (t *TrackerExtensions) gateOnline(handler transport.Handler) transport.Handler {
	return func(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
		host := sourceHost(conn)
		online := false
		if port := peerPortHint(body); port != 0 {
			state, ok, err := t.n.store.GetPeerState(host, port)
			if err != nil {
				return err
			}
			online = ok && state == store.Online
		} else {
			peers, err := t.n.store.AllPeers()
			if err != nil {
				return err
			}
			for _, p := range peers {
				online = online || (p.Host == host && p.State == store.Online)
			}
		}
		if !online {
			t.n.log.Debugf("tracker: dropping %s from %s: not connected", kind, host)
			return nil
		}
		return handler(conn, kind, body)
	}
}

// peerPortHint extracts the advertised port the caller's own message
// body carries, when that kind's schema carries one, so gateOnline can
// look the caller up by (host, port) instead of host alone.
func peerPortHint(body wire.WithRPCHeader) int {
	switch m := body.(type) {
	case wire.DisconnectRequestMsg:
		return m.Port
	case wire.NewFileAvailableMsg:
		return m.Port
	case wire.FileChangedMsg:
		return m.Port
	}
	return 0
}

// handleConnectRequest checks the shared password, registers the caller
// as an online peer on success, re-broadcasts the CONNECT_REQUEST to
// every other online peer so they learn of the new member, and always
// replies, grounded on tracker.py's handle_CONNECT_REQUEST.
func (t *TrackerExtensions) handleConnectRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.ConnectRequestMsg)
	n := t.n

	if msg.Password != n.cfg.Password {
		n.log.Debugf("tracker: connect request from %s: wrong password", sourceHost(conn))
		return wire.Encode(conn, wire.ConnectResponse, wire.ConnectResponseMsg{RPCHeader: n.header(), Successful: false})
	}

	host := sourceHost(conn)
	if err := n.store.UpsertPeer(host, "", msg.Port, store.Online, msg.MaxFileSize, msg.MaxFileSysSize, msg.CurrFileSysSize, false); err != nil {
		return err
	}
	t.broadcastToOnlinePeers(host, msg.Port, wire.ConnectRequest, msg)
	return wire.Encode(conn, wire.ConnectResponse, wire.ConnectResponseMsg{RPCHeader: n.header(), Successful: true})
}

// broadcastToOnlinePeers fans kind/body out to every peer currently
// ONLINE, excluding the tracker itself and the peer identified by
// (exceptHost, exceptPort), used by handleConnectRequest and
// handleDisconnectRequest to gossip membership changes to the rest of
// the cluster.
func (t *TrackerExtensions) broadcastToOnlinePeers(exceptHost string, exceptPort int, kind wire.MessageKind, body wire.WithRPCHeader) {
	n := t.n
	peers, err := n.store.AllPeers()
	if err != nil {
		n.log.Warnf("tracker: broadcast %s: list peers: %v", kind, err)
		return
	}
	for _, p := range peers {
		if p.State != store.Online {
			continue
		}
		if p.Host == exceptHost && p.Port == exceptPort {
			continue
		}
		if p.Host == n.self.Host && p.Port == n.self.Port {
			continue
		}
		n.dialer.Send(transport.PeerID{Host: p.Host, Port: p.Port}, kind, body)
	}
}

// handleDisconnectRequest answers whether the caller must wait because
// it still holds unreplicated files; whenever it is actually cleared to
// go OFFLINE, the DISCONNECT_REQUEST is re-broadcast to every other
// online peer, grounded on tracker.py's handle_DISCONNECT_REQUEST.
func (t *TrackerExtensions) handleDisconnectRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.DisconnectRequestMsg)
	n := t.n
	host := sourceHost(conn)

	if !msg.CheckForUnreplicated {
		n.store.UpdatePeerState(host, msg.Port, store.Offline)
		t.broadcastToOnlinePeers(host, msg.Port, wire.DisconnectRequest, msg)
		return wire.Encode(conn, wire.DisconnectResponse, wire.DisconnectResponseMsg{RPCHeader: n.header(), ShouldWait: false})
	}

	unreplicated, err := n.store.HasUnreplicatedFiles(host, msg.Port)
	if err != nil {
		return err
	}
	if !unreplicated {
		n.store.UpdatePeerState(host, msg.Port, store.Offline)
		t.broadcastToOnlinePeers(host, msg.Port, wire.DisconnectRequest, msg)
	}
	return wire.Encode(conn, wire.DisconnectResponse, wire.DisconnectResponseMsg{RPCHeader: n.header(), ShouldWait: unreplicated})
}

// handlePeerListRequest replies with the peers holding FilePath, or
// every known peer when HasFilePath is false, grounded on tracker.py's
// handle_PEER_LIST_REQUEST.
func (t *TrackerExtensions) handlePeerListRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.PeerListRequestMsg)
	n := t.n

	peers, err := n.store.GetPeersForFile(msg.FilePath, msg.HasFilePath)
	if err != nil {
		return err
	}
	return wire.Encode(conn, wire.PeerList, wire.PeerListMsg{RPCHeader: n.header(), Peers: toPeerAddresses(peers)})
}

// handleNewFileAvailable records the new file, marks the announcing
// peer as a holder, and fans the announcement out to replication
// candidates (capacity and exclusion-pattern aware), grounded on
// tracker.py's handle_NEW_FILE_AVAILABLE and db.py's
// get_peers_to_replicate_file.
func (t *TrackerExtensions) handleNewFileAvailable(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.NewFileAvailableMsg)
	n := t.n
	host := sourceHost(conn)

	rec := fromFileModel(msg.FileModel)
	if err := n.store.UpsertFileWait(rec); err != nil {
		return err
	}
	fileID, _, err := n.store.GetFileID(rec.Path)
	if err != nil {
		return err
	}
	peerID, _, err := n.store.GetPeerID(host, msg.Port)
	if err != nil {
		return err
	}
	n.store.AddFilePeerEntry(fileID, peerID, rec.GoldenChecksum)
	n.store.Drain()

	if host == n.self.Host && msg.Port == n.self.Port {
		return nil
	}

	updated, _, err := n.store.GetFile(rec.Path)
	if err != nil {
		return err
	}
	candidates, err := n.store.GetReplicationCandidates(updated, host, msg.Port, n.cfg.ReplicationLevel)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c.Host == n.self.Host && c.Port == n.self.Port {
			if _, err := n.downloadFile(rec.Path, nil); err != nil {
				n.log.Warnf("tracker: self-replication of %s failed: %v", rec.Path, err)
			}
			continue
		}
		n.dialer.Send(transport.PeerID{Host: c.Host, Port: c.Port}, wire.NewFileAvailable, msg)
	}
	return nil
}

// handleFileChanged has dual semantics depending on whether the
// checksum and version the caller reports already match what the
// tracker has on file: an unchanged match means the caller simply now
// holds a copy; a mismatch is a genuine content change that must be
// recorded and (the tracker applies LocalPeer's own handler too, when it
// holds the file itself) grounded verbatim on tracker.py's
// handle_FILE_CHANGED.
func (t *TrackerExtensions) handleFileChanged(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.FileChangedMsg)
	n := t.n
	host := sourceHost(conn)

	if host == n.self.Host && msg.Port == n.self.Port {
		return nil
	}

	dbFile, ok, err := n.store.GetFile(msg.FileModel.Path)
	if err != nil {
		return err
	}

	if ok && string(dbFile.GoldenChecksum) == string(msg.FileModel.Checksum) && dbFile.LatestVersion == msg.FileModel.LatestVersion {
		n.log.Debugf("tracker: peer %s now holds %s", host, msg.FileModel.Path)
		peerID, _, err := n.store.GetPeerID(host, msg.Port)
		if err != nil {
			return err
		}
		fileID, _, err := n.store.GetFileID(msg.FileModel.Path)
		if err != nil {
			return err
		}
		n.store.AddFilePeerEntry(fileID, peerID, msg.FileModel.Checksum)
	} else {
		n.log.Debugf("tracker: file %s changed, notifying holders", msg.FileModel.Path)
		if err := n.store.UpsertFileWait(fromFileModel(msg.FileModel)); err != nil {
			return err
		}
		peers, err := n.store.GetPeersForFile(msg.FileModel.Path, true)
		if err != nil {
			return err
		}
		for _, p := range peers {
			if p.Host == host && p.Port == msg.Port {
				continue
			}
			n.dialer.Send(transport.PeerID{Host: p.Host, Port: p.Port}, wire.FileChanged, msg)
		}
	}

	// If the tracker itself holds this file, apply the same update the
	// peer-side handler would, since the tracker is also a replication
	// target like any other peer.
	fileID, _, err := n.store.GetFileID(msg.FileModel.Path)
	if err != nil {
		return err
	}
	self, err := n.store.FileExistsLocally(fileID)
	if err == nil && self {
		return n.handleFileChanged(conn, kind, body)
	}
	return nil
}

// handleListRequest replies with every known file, grounded on
// tracker.py's handle_LIST_REQUEST.
func (t *TrackerExtensions) handleListRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	n := t.n
	files, err := n.store.ListFiles()
	if err != nil {
		return err
	}
	return wire.Encode(conn, wire.List, wire.ListMsg{RPCHeader: n.header(), Files: toFileModels(files)})
}

// handleValidateChecksumRequest replies whether checksum matches the
// tracker's golden checksum for FilePath, grounded on tracker.py's
// handle_VALIDATE_CHECKSUM_REQUEST.
func (t *TrackerExtensions) handleValidateChecksumRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.ValidateChecksumRequestMsg)
	n := t.n
	valid, err := n.store.CheckChecksum(msg.FilePath, msg.FileChecksum)
	if err != nil {
		return err
	}
	return wire.Encode(conn, wire.ValidateChecksumResponse, wire.ValidateChecksumResponseMsg{RPCHeader: n.header(), FilePath: msg.FilePath, Valid: valid})
}

// handleArchiveRequest mints a new version number for FilePath and
// notifies every holder, grounded on tracker.py's handle_ARCHIVE_REQUEST.
func (t *TrackerExtensions) handleArchiveRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.ArchiveRequestMsg)
	n := t.n

	rec, ok, err := n.store.GetFile(msg.FilePath)
	if err != nil {
		return err
	}
	if !ok {
		return wire.Encode(conn, wire.ArchiveResponse, wire.ArchiveResponseMsg{RPCHeader: n.header(), FilePath: msg.FilePath, Archived: false})
	}

	rec.LatestVersion++
	if err := n.store.UpsertFileWait(rec); err != nil {
		return err
	}
	if err := wire.Encode(conn, wire.ArchiveResponse, wire.ArchiveResponseMsg{RPCHeader: n.header(), FilePath: msg.FilePath, Archived: true}); err != nil {
		return err
	}

	peers, err := n.store.GetPeersForFile(msg.FilePath, true)
	if err != nil {
		return err
	}
	for _, p := range peers {
		n.dialer.Send(transport.PeerID{Host: p.Host, Port: p.Port}, wire.FileArchived, wire.FileArchivedMsg{RPCHeader: n.header(), FilePath: rec.Path, NewVersion: rec.LatestVersion})
	}
	return nil
}

// handleDeleteRequest allows a delete when the file exists, replying
// with the peer set the caller must notify directly.
//
// original_source/tracker.py leaves handle_DELETE_REQUEST unimplemented
// (a bare pass); this is supplemented here since spec.md's Delete
// operation requires the tracker to arbitrate and report the holder set
// (see SPEC_FULL.md §9).
func (t *TrackerExtensions) handleDeleteRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.DeleteRequestMsg)
	n := t.n

	_, ok, err := n.store.GetFile(msg.FilePath)
	if err != nil {
		return err
	}
	if !ok {
		return wire.Encode(conn, wire.DeleteResponse, wire.DeleteResponseMsg{RPCHeader: n.header(), FilePath: msg.FilePath, CanDelete: false})
	}

	peers, err := n.store.GetPeersForFile(msg.FilePath, true)
	if err != nil {
		return err
	}
	return wire.Encode(conn, wire.DeleteResponse, wire.DeleteResponseMsg{
		RPCHeader: n.header(), FilePath: msg.FilePath, CanDelete: true, Peers: toPeerAddresses(peers),
	})
}

func toPeerAddresses(recs []store.PeerRecord) []wire.PeerAddress {
	out := make([]wire.PeerAddress, 0, len(recs))
	for _, r := range recs {
		out = append(out, wire.PeerAddress{Host: r.Host, Port: r.Port, Name: r.Name})
	}
	return out
}
