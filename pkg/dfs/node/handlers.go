package node

import (
	"net"

	"github.com/jabolina/go-dfs/pkg/dfs/store"
	"github.com/jabolina/go-dfs/pkg/dfs/transport"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

// buildHandlerTable assembles the peer handler set and, when this Node
// is the tracker, layers TrackerExtensions' handlers on top of it
// (DESIGN NOTES: "re-architect as composition" rather than subclassing).
func (n *Node) buildHandlerTable() transport.HandlerTable {
	table := transport.HandlerTable{
		wire.ConnectRequest:      n.handlePeerConnectRequest,
		wire.DisconnectRequest:   n.handlePeerDisconnectRequest,
		wire.PeerList:            n.handlePeerList,
		wire.FileDownloadRequest: n.handleFileDownloadRequest,
		wire.FileChanged:         n.handleFileChanged,
		wire.NewFileAvailable:    n.handleNewFileAvailable,
		wire.FileArchived:        n.handleFileArchived,
		wire.Delete:              n.handleDelete,
		wire.Move:                n.handleMove,
		wire.ListRequest:         n.handleListRequest,
	}
	if n.trackerExt != nil {
		for kind, handler := range n.trackerExt.handlerTable() {
			table[kind] = handler
		}
	}
	return table
}

// handlePeerConnectRequest is the peer-side gossip variant: it simply
// records the sender as an online peer in the local view, grounded on
// original_source/peer.py's LocalPeer.handle_CONNECT_REQUEST (the
// tracker overrides this with its own password-checking variant, see
// tracker.go).
func (n *Node) handlePeerConnectRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.ConnectRequestMsg)
	host := sourceHost(conn)
	return n.store.UpsertPeer(host, "", msg.Port, store.Online, msg.MaxFileSize, msg.MaxFileSysSize, msg.CurrFileSysSize, false)
}

// handlePeerDisconnectRequest is the peer-side gossip variant: mark the
// sender offline in the local view.
func (n *Node) handlePeerDisconnectRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.DisconnectRequestMsg)
	host := sourceHost(conn)
	n.store.UpdatePeerState(host, msg.Port, store.Offline)
	return nil
}

// handlePeerList replaces this node's cached peer view wholesale,
// grounded on LocalPeer.handle_PEER_LIST.
func (n *Node) handlePeerList(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.PeerListMsg)
	n.store.ClearLocalPeers()
	for _, p := range msg.Peers {
		n.store.UpsertPeer(p.Host, p.Name, p.Port, store.Online, 0, 0, 0, false)
	}
	return nil
}

// handleFileDownloadRequest serves the requested file's current bytes,
// or declines if it is not held locally, grounded on
// LocalPeer.handle_FILE_DOWNLOAD_REQUEST.
func (n *Node) handleFileDownloadRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.FileDownloadRequestMsg)

	rec, ok, err := n.store.GetFile(msg.FilePath)
	if err != nil {
		return err
	}
	if !ok || !n.fs.Exists(msg.FilePath, rec.LatestVersion) {
		return wire.Encode(conn, wire.FileDownloadDecline, wire.FileDownloadDeclineMsg{RPCHeader: n.header(), FilePath: msg.FilePath})
	}

	data, err := n.fs.ReadFile(msg.FilePath, rec.LatestVersion, 0, -1)
	if err != nil {
		return wire.Encode(conn, wire.FileDownloadDecline, wire.FileDownloadDeclineMsg{RPCHeader: n.header(), FilePath: msg.FilePath})
	}

	model := wire.FileModel{
		Path: rec.Path, IsDirectory: rec.IsDirectory, Checksum: rec.GoldenChecksum,
		Size: rec.Size, LatestVersion: rec.LatestVersion, ParentID: rec.ParentID, HasParent: rec.HasParent,
		Data: data,
	}
	return wire.Encode(conn, wire.FileData, wire.FileDataMsg{RPCHeader: n.header(), FileModel: model})
}

// handleFileChanged applies an incoming content change to the local
// copy and, if it now matches, notifies the tracker that this peer
// holds the updated version; otherwise it re-requests the file,
// grounded line-by-line on LocalPeer.handle_FILE_CHANGED.
func (n *Node) handleFileChanged(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.FileChangedMsg)
	remote := msg.FileModel

	dbFile, ok, err := n.store.GetFile(remote.Path)
	if err != nil {
		return err
	}
	if ok && string(dbFile.GoldenChecksum) == string(remote.Checksum) {
		n.log.Debugf("node: file change for %s is already reflected locally", remote.Path)
		return nil
	}

	if !n.fs.Exists(remote.Path, remote.LatestVersion) {
		n.log.Warnf("node: file changed message for %s but no local copy exists", remote.Path)
		return nil
	}

	if err := n.fs.WriteFile(remote.Path, remote.LatestVersion, msg.StartOffset, remote.Data); err != nil {
		return err
	}
	newChecksum, err := n.fs.Checksum(remote.Path, remote.LatestVersion)
	if err != nil {
		return err
	}

	if string(newChecksum) == string(remote.Checksum) {
		n.store.UpsertFile(store.FileRecord{
			Path: remote.Path, IsDirectory: remote.IsDirectory, GoldenChecksum: newChecksum,
			Size: remote.Size, LatestVersion: remote.LatestVersion, ParentID: remote.ParentID, HasParent: remote.HasParent,
		})
		reply := msg
		reply.Port = n.self.Port
		return n.dialer.Send(n.tracker, wire.FileChanged, reply)
	}

	n.log.Warnf("node: checksum mismatch applying file change for %s, re-requesting", remote.Path)
	return wire.Encode(conn, wire.FileDownloadRequest, wire.FileDownloadRequestMsg{RPCHeader: n.header(), FilePath: remote.Path})
}

// handleNewFileAvailable fetches a newly-announced file from whichever
// peer holds it, grounded on LocalPeer.handle_NEW_FILE_AVAILABLE.
func (n *Node) handleNewFileAvailable(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.NewFileAvailableMsg)
	_, err := n.downloadFile(msg.FileModel.Path, nil)
	return err
}

// handleFileArchived snapshots the current bytes forward to the new
// version number the tracker just minted, grounded on
// LocalPeer.handle_FILE_ARCHIVED.
func (n *Node) handleFileArchived(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.FileArchivedMsg)

	rec, ok, err := n.store.GetFile(msg.FilePath)
	if err != nil || !ok || rec.LatestVersion == msg.NewVersion {
		return err
	}

	if err := n.fs.CopyVersion(msg.FilePath, rec.LatestVersion, msg.NewVersion); err != nil {
		return err
	}
	rec.LatestVersion = msg.NewVersion
	return n.store.UpsertFileWait(rec)
}

// handleDelete removes the local copy of a file the tracker has
// approved deleting, grounded on LocalPeer.handle_DELETE.
func (n *Node) handleDelete(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.DeleteMsg)
	rec, ok, err := n.store.GetFile(msg.FilePath)
	if err != nil || !ok {
		return err
	}
	return n.fs.DeleteFile(msg.FilePath, rec.LatestVersion)
}

// handleMove renames the local copy of a file, grounded on
// LocalPeer.handle_MOVE.
func (n *Node) handleMove(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	msg := body.(wire.MoveMsg)
	rec, ok, err := n.store.GetFile(msg.SourcePath)
	if err != nil || !ok {
		return err
	}
	return n.fs.Move(msg.SourcePath, msg.DestPath, rec.LatestVersion)
}

// handleListRequest replies with every file this node's metadata store
// knows about, grounded on LocalPeer.handle_LIST_REQUEST.
func (n *Node) handleListRequest(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
	files, err := n.store.ListFiles()
	if err != nil {
		return err
	}
	return wire.Encode(conn, wire.List, wire.ListMsg{RPCHeader: n.header(), Files: toFileModels(files)})
}

func toFileModels(recs []store.FileRecord) []wire.FileModel {
	out := make([]wire.FileModel, 0, len(recs))
	for _, r := range recs {
		out = append(out, wire.FileModel{
			Path: r.Path, IsDirectory: r.IsDirectory, Checksum: r.GoldenChecksum,
			Size: r.Size, LatestVersion: r.LatestVersion, ParentID: r.ParentID, HasParent: r.HasParent,
		})
	}
	return out
}
