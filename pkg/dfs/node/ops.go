package node

import (
	"fmt"
	"os"

	"github.com/jabolina/go-dfs/pkg/dfs/store"
	"github.com/jabolina/go-dfs/pkg/dfs/transport"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

// Connect performs the bootstrap handshake with the tracker: send
// CONNECT_REQUEST, on success fetch and cache the peer list and the
// file list, grounded on LocalPeer.connect.
func (n *Node) Connect() error {
	_, body, err := n.call(n.tracker, wire.ConnectRequest, wire.ConnectRequestMsg{
		RPCHeader: n.header(), Password: n.cfg.Password, Port: n.self.Port,
		MaxFileSize: n.cfg.MaxFileSize, MaxFileSysSize: n.cfg.MaxFileSysSize, CurrFileSysSize: n.cfg.CurrFileSysSize,
	})
	if err != nil {
		return fmt.Errorf("node: connect request: %w", err)
	}
	resp := body.(wire.ConnectResponseMsg)
	if !resp.Successful {
		return fmt.Errorf("node: tracker rejected connect request")
	}
	n.log.Info("connected to tracker")

	peers, err := n.getPeerList("", false)
	if err != nil {
		return fmt.Errorf("node: fetch peer list: %w", err)
	}
	n.store.ClearLocalPeers()
	for _, p := range peers {
		n.store.UpsertPeer(p.Host, p.Name, p.Port, store.Online, 0, 0, 0, false)
	}

	files, err := n.Ls("")
	if err != nil {
		return fmt.Errorf("node: fetch file list: %w", err)
	}
	for _, remote := range files {
		local, ok, err := n.store.GetFile(remote.Path)
		if err != nil {
			return err
		}
		if !ok {
			n.store.UpsertFile(fromFileModel(remote))
			continue
		}
		if remote.LatestVersion == local.LatestVersion && string(remote.Checksum) != string(local.GoldenChecksum) {
			if _, err := n.downloadFile(remote.Path, nil); err != nil {
				n.log.Warnf("node: re-fetch of stale %s failed: %v", remote.Path, err)
			}
		}
	}
	return nil
}

// Disconnect asks the tracker for permission to leave, waiting while the
// tracker reports unreplicated files still need to drain elsewhere,
// grounded on LocalPeer.disconnect.
func (n *Node) Disconnect(checkUnreplicated bool) error {
	for {
		_, body, err := n.call(n.tracker, wire.DisconnectRequest, wire.DisconnectRequestMsg{
			RPCHeader: n.header(), CheckForUnreplicated: checkUnreplicated, Port: n.self.Port,
		})
		if err != nil {
			return fmt.Errorf("node: disconnect request: %w", err)
		}
		resp := body.(wire.DisconnectResponseMsg)
		if !resp.ShouldWait {
			break
		}
	}
	return nil
}

// getPeerList asks the tracker which peers hold filePath, or every peer
// when hasFilePath is false.
func (n *Node) getPeerList(filePath string, hasFilePath bool) ([]wire.PeerAddress, error) {
	_, body, err := n.call(n.tracker, wire.PeerListRequest, wire.PeerListRequestMsg{
		RPCHeader: n.header(), FilePath: filePath, HasFilePath: hasFilePath,
	})
	if err != nil {
		return nil, err
	}
	return body.(wire.PeerListMsg).Peers, nil
}

// Ls asks the tracker for the known file set.
func (n *Node) Ls(dirPath string) ([]wire.FileModel, error) {
	_, body, err := n.call(n.tracker, wire.ListRequest, wire.ListRequestMsg{
		RPCHeader: n.header(), DirPath: dirPath, HasDirPath: dirPath != "",
	})
	if err != nil {
		return nil, err
	}
	return body.(wire.ListMsg).Files, nil
}

// Read returns file_path's bytes, downloading it first if not yet held
// locally, grounded on LocalPeer.read.
func (n *Node) Read(filePath string, offset int64, length int64) ([]byte, error) {
	rec, ok, err := n.store.GetFile(filePath)
	if err == nil && ok && n.fs.Exists(filePath, rec.LatestVersion) {
		return n.fs.ReadFile(filePath, rec.LatestVersion, offset, length)
	}

	if _, err := n.downloadFile(filePath, nil); err != nil {
		return nil, err
	}
	rec, ok, err = n.store.GetFile(filePath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("node: file %q not found after download", filePath)
	}
	return n.fs.ReadFile(filePath, rec.LatestVersion, offset, length)
}

// Write stores newData at offset in filePath, creating it if new, then
// notifies the tracker via NEW_FILE_AVAILABLE or FILE_CHANGED, grounded
// on LocalPeer.write.
func (n *Node) Write(filePath string, newData []byte, offset int64) error {
	rec, existed, err := n.store.GetFile(filePath)
	if err != nil {
		return err
	}
	version := int64(1)
	if existed {
		version = rec.LatestVersion
	}

	if err := n.fs.WriteFile(filePath, version, offset, newData); err != nil {
		return err
	}

	checksum, err := n.fs.Checksum(filePath, version)
	if err != nil {
		return err
	}
	size, err := n.fs.Size(filePath, version)
	if err != nil {
		return err
	}
	full, err := n.fs.ReadFile(filePath, version, 0, -1)
	if err != nil {
		return err
	}

	if err := n.store.UpsertFileWait(store.FileRecord{
		Path: filePath, GoldenChecksum: checksum, Size: size, LatestVersion: version,
	}); err != nil {
		return err
	}
	fileID, _, err := n.store.GetFileID(filePath)
	if err != nil {
		return err
	}
	n.store.AddLocalFile(fileID)

	model := wire.FileModel{Path: filePath, Checksum: checksum, Size: size, LatestVersion: version, Data: full}
	if !existed {
		announce := model
		announce.Data = nil
		return n.dialer.Send(n.tracker, wire.NewFileAvailable, wire.NewFileAvailableMsg{RPCHeader: n.header(), FileModel: announce, Port: n.self.Port})
	}
	return n.dialer.Send(n.tracker, wire.FileChanged, wire.FileChangedMsg{RPCHeader: n.header(), FileModel: model, Port: n.self.Port, StartOffset: offset})
}

// downloadFile fetches filePath from the first peer in peerList (or the
// tracker-provided candidate list when peerList is nil) willing to serve
// it, moving on to the next candidate when a request fails or is
// declined; on a checksum mismatch it starts a new round over the list
// from the first peer, up to maxAttempts rounds, grounded on
// LocalPeer._download_file.
func (n *Node) downloadFile(filePath string, peerList []wire.PeerAddress) (bool, error) {
	if peerList == nil {
		var err error
		peerList, err = n.getPeerList(filePath, true)
		if err != nil {
			return false, err
		}
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var model *wire.FileModel
		for _, p := range peerList {
			peerID := transport.PeerID{Host: p.Host, Port: p.Port}
			kind, body, err := n.dialer.Call(peerID, wire.FileDownloadRequest, wire.FileDownloadRequestMsg{RPCHeader: n.header(), FilePath: filePath})
			if err != nil {
				continue
			}
			if kind != wire.FileData {
				continue
			}
			m := body.(wire.FileDataMsg).FileModel
			model = &m
			break
		}
		if model == nil {
			return false, fmt.Errorf("node: no peer could serve %q", filePath)
		}

		if err := n.fs.WriteFile(filePath, model.LatestVersion, 0, model.Data); err != nil {
			return false, err
		}
		newChecksum, err := n.fs.Checksum(filePath, model.LatestVersion)
		if err != nil {
			return false, err
		}
		if string(newChecksum) == string(model.Checksum) {
			n.store.UpsertFile(fromFileModel(*model))
			n.store.Drain()
			fileID, _, err := n.store.GetFileID(filePath)
			if err != nil {
				return false, err
			}
			n.store.AddLocalFile(fileID)
			reply := wire.FileChangedMsg{RPCHeader: n.header(), FileModel: *model, Port: n.self.Port}
			reply.FileModel.Data = nil
			return true, n.dialer.Send(n.tracker, wire.FileChanged, reply)
		}
		n.log.Warnf("node: downloaded %s but checksum mismatched, retrying (attempt %d)", filePath, attempt+1)
	}
	return false, fmt.Errorf("node: download of %q failed after %d attempts", filePath, maxAttempts)
}

// DownloadFile is the exported entry point for an explicit fetch, e.g.
// from the REPL.
func (n *Node) DownloadFile(filePath string) (bool, error) {
	return n.downloadFile(filePath, nil)
}

// Delete asks the tracker for permission to delete filePath, removes the
// local copy, and notifies every other holder, grounded on
// LocalPeer.delete.
func (n *Node) Delete(filePath string) (bool, error) {
	_, body, err := n.call(n.tracker, wire.DeleteRequest, wire.DeleteRequestMsg{RPCHeader: n.header(), FilePath: filePath})
	if err != nil {
		return false, err
	}
	resp := body.(wire.DeleteResponseMsg)
	if !resp.CanDelete {
		return false, nil
	}

	rec, ok, err := n.store.GetFile(filePath)
	if err == nil && ok {
		if err := n.fs.DeleteFile(filePath, rec.LatestVersion); err != nil && !os.IsNotExist(err) {
			return false, err
		}
	}

	for _, p := range resp.Peers {
		n.dialer.Send(transport.PeerID{Host: p.Host, Port: p.Port}, wire.Delete, wire.DeleteMsg{RPCHeader: n.header(), FilePath: filePath})
	}
	return true, nil
}

// Move asks the tracker to validate a rename, applies it locally, and
// notifies every other holder, grounded on LocalPeer.move.
func (n *Node) Move(srcPath, dstPath string) (bool, error) {
	_, body, err := n.call(n.tracker, wire.MoveRequest, wire.MoveRequestMsg{RPCHeader: n.header(), SourcePath: srcPath, DestPath: dstPath})
	if err != nil {
		return false, err
	}
	resp := body.(wire.MoveResponseMsg)
	if !resp.Valid {
		return false, nil
	}

	rec, ok, err := n.store.GetFile(srcPath)
	if err != nil {
		return false, err
	}
	if ok {
		if err := n.fs.Move(srcPath, dstPath, rec.LatestVersion); err != nil {
			return false, err
		}
	}

	peers, err := n.getPeerList(srcPath, true)
	if err != nil {
		return true, err
	}
	for _, p := range peers {
		n.dialer.Send(transport.PeerID{Host: p.Host, Port: p.Port}, wire.Move, wire.MoveMsg{RPCHeader: n.header(), SourcePath: srcPath, DestPath: dstPath})
	}
	return true, nil
}

// Archive asks the tracker to mint a new version number for filePath and
// snapshots the current bytes forward locally, grounded on
// LocalPeer.archive.
func (n *Node) Archive(filePath string) (bool, error) {
	_, body, err := n.call(n.tracker, wire.ArchiveRequest, wire.ArchiveRequestMsg{RPCHeader: n.header(), FilePath: filePath})
	if err != nil {
		return false, err
	}
	resp := body.(wire.ArchiveResponseMsg)
	if !resp.Archived {
		return false, nil
	}

	rec, ok, err := n.store.GetFile(filePath)
	if err != nil || !ok {
		return false, err
	}
	newVersion := rec.LatestVersion + 1
	if err := n.fs.CopyVersion(filePath, rec.LatestVersion, newVersion); err != nil {
		return false, err
	}
	rec.LatestVersion = newVersion
	if err := n.store.UpsertFileWait(rec); err != nil {
		return false, err
	}
	return true, nil
}

func fromFileModel(m wire.FileModel) store.FileRecord {
	return store.FileRecord{
		Path: m.Path, IsDirectory: m.IsDirectory, GoldenChecksum: m.Checksum,
		Size: m.Size, LatestVersion: m.LatestVersion, ParentID: m.ParentID, HasParent: m.HasParent,
	}
}
