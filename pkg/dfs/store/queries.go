package store

import (
	"database/sql"
	"fmt"
	"path"
)

// UpsertFile enqueues a file upsert and returns immediately; callers
// that need to observe the result call Drain or GetFile afterward.
func (s *Store) UpsertFile(model FileRecord) {
	s.enqueue(&upsertFileCommand{model: model})
}

// UpsertFileWait enqueues a file upsert and blocks until it commits.
func (s *Store) UpsertFileWait(model FileRecord) error {
	reply := make(chan error, 1)
	s.enqueue(&upsertFileCommand{model: model, reply: reply})
	return <-reply
}

// AddVersion enqueues a version history row.
func (s *Store) AddVersion(v VersionRecord) {
	s.enqueue(&addVersionCommand{version: v})
}

// UpsertPeer enqueues a peer upsert. When blocking is true it bypasses
// the queue, used only for bootstrap (the tracker registering itself).
func (s *Store) UpsertPeer(host, name string, port int, state PeerState, maxFileSize, maxFileSysSize, currFileSysSize int64, blocking bool) error {
	cmd := &upsertPeerCommand{
		host: host, name: name, port: port, state: state,
		maxFileSize: maxFileSize, maxFileSysSize: maxFileSysSize, currFileSysSize: currFileSysSize,
	}
	if blocking {
		return s.mutateBlocking(cmd)
	}
	s.enqueue(cmd)
	return nil
}

// UpdatePeerState enqueues a peer state transition.
func (s *Store) UpdatePeerState(host string, port int, state PeerState) {
	s.enqueue(&updatePeerStateCommand{host: host, port: port, state: state})
}

// AddFilePeerEntry enqueues a PeerFile upsert recording that a peer
// holds fileID at checksum.
func (s *Store) AddFilePeerEntry(fileID, peerID int64, checksum []byte) {
	s.enqueue(&addFilePeerEntryCommand{fileID: fileID, peerID: peerID, checksum: checksum})
}

// AddLocalFile enqueues a LocalPeerFiles insert.
func (s *Store) AddLocalFile(fileID int64) {
	s.enqueue(&addLocalFileCommand{fileID: fileID})
}

// AddExclusion enqueues an exclusion-pattern insert.
func (s *Store) AddExclusion(peerID int64, fileNamePattern string) {
	s.enqueue(&addExclusionCommand{peerID: peerID, fileNamePattern: fileNamePattern})
}

// GetFile returns the file record for path, or ok=false if unknown.
func (s *Store) GetFile(filePath string) (rec FileRecord, ok bool, err error) {
	err = s.withReadLock(func() error {
		row := s.db.QueryRow(
			`SELECT Id, Path, IsDirectory, GoldenChecksum, Size, LatestVersionNumber, ParentId FROM Files WHERE Path=?`,
			filePath)
		var isDir int
		var parent sql.NullInt64
		scanErr := row.Scan(&rec.ID, &rec.Path, &isDir, &rec.GoldenChecksum, &rec.Size, &rec.LatestVersion, &parent)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		rec.IsDirectory = isDir != 0
		if parent.Valid {
			rec.HasParent = true
			rec.ParentID = parent.Int64
		}
		ok = true
		return nil
	})
	return rec, ok, err
}

// GetFileID returns the surrogate id for path.
func (s *Store) GetFileID(filePath string) (id int64, ok bool, err error) {
	rec, ok, err := s.GetFile(filePath)
	return rec.ID, ok, err
}

// ListFiles returns every known file record. Hierarchical filtering by
// dirPath is reserved (spec.md §4.6 LIST_REQUEST): all files are
// returned regardless of dirPath.
func (s *Store) ListFiles() (out []FileRecord, err error) {
	err = s.withReadLock(func() error {
		rows, qErr := s.db.Query(`SELECT Id, Path, IsDirectory, GoldenChecksum, Size, LatestVersionNumber, ParentId FROM Files`)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		for rows.Next() {
			var rec FileRecord
			var isDir int
			var parent sql.NullInt64
			if scanErr := rows.Scan(&rec.ID, &rec.Path, &isDir, &rec.GoldenChecksum, &rec.Size, &rec.LatestVersion, &parent); scanErr != nil {
				return scanErr
			}
			rec.IsDirectory = isDir != 0
			if parent.Valid {
				rec.HasParent = true
				rec.ParentID = parent.Int64
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// GetPeerID returns the surrogate id for (host, port).
func (s *Store) GetPeerID(host string, port int) (id int64, ok bool, err error) {
	rec, ok, err := s.getPeerByAddress(host, port)
	return rec.ID, ok, err
}

// GetPeerState returns the current state of (host, port).
func (s *Store) GetPeerState(host string, port int) (state PeerState, ok bool, err error) {
	rec, ok, err := s.getPeerByAddress(host, port)
	return rec.State, ok, err
}

func (s *Store) getPeerByAddress(host string, port int) (rec PeerRecord, ok bool, err error) {
	err = s.withReadLock(func() error {
		row := s.db.QueryRow(
			`SELECT Id, Name, Ip, Port, State, MaxFileSize, MaxFileSysSize, CurrFileSysSize FROM Peers WHERE Ip=? AND Port=?`,
			host, port)
		var state int
		scanErr := row.Scan(&rec.ID, &rec.Name, &rec.Host, &rec.Port, &state, &rec.MaxFileSize, &rec.MaxFileSysSize, &rec.CurrFileSysSize)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		rec.State = PeerState(state)
		ok = true
		return nil
	})
	return rec, ok, err
}

// AllPeers returns every known peer.
func (s *Store) AllPeers() (out []PeerRecord, err error) {
	err = s.withReadLock(func() error {
		rows, qErr := s.db.Query(`SELECT Id, Name, Ip, Port, State, MaxFileSize, MaxFileSysSize, CurrFileSysSize FROM Peers`)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		for rows.Next() {
			var rec PeerRecord
			var state int
			if scanErr := rows.Scan(&rec.ID, &rec.Name, &rec.Host, &rec.Port, &state, &rec.MaxFileSize, &rec.MaxFileSysSize, &rec.CurrFileSysSize); scanErr != nil {
				return scanErr
			}
			rec.State = PeerState(state)
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// GetPeersForFile returns the peers holding filePath (tracker), or, if
// hasFilePath is false, every known peer.
func (s *Store) GetPeersForFile(filePath string, hasFilePath bool) (out []PeerRecord, err error) {
	if !hasFilePath {
		return s.AllPeers()
	}
	err = s.withReadLock(func() error {
		rows, qErr := s.db.Query(
			`SELECT p.Id, p.Name, p.Ip, p.Port, p.State, p.MaxFileSize, p.MaxFileSysSize, p.CurrFileSysSize
			 FROM Peers p JOIN PeerFile pf ON pf.PeerId = p.Id JOIN Files f ON f.Id = pf.FileId
			 WHERE f.Path = ?`, filePath)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		for rows.Next() {
			var rec PeerRecord
			var state int
			if scanErr := rows.Scan(&rec.ID, &rec.Name, &rec.Host, &rec.Port, &state, &rec.MaxFileSize, &rec.MaxFileSysSize, &rec.CurrFileSysSize); scanErr != nil {
				return scanErr
			}
			rec.State = PeerState(state)
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// GetReplicationCandidates returns currently-online peers other than
// excludeHost:excludePort, with enough quota for file.Size, that are not
// excluded by a matching filename pattern, ordered by ascending current
// filesystem usage and limited to level candidates (0 means unlimited).
func (s *Store) GetReplicationCandidates(file FileRecord, excludeHost string, excludePort int, level int) (out []PeerRecord, err error) {
	err = s.withReadLock(func() error {
		var patterns []string
		patternRows, pErr := s.db.Query(`SELECT FileNamePattern FROM PeerExcludedFiles WHERE FileId = ?`, file.ID)
		if pErr == nil {
			defer patternRows.Close()
			for patternRows.Next() {
				var pattern string
				if scanErr := patternRows.Scan(&pattern); scanErr == nil {
					patterns = append(patterns, pattern)
				}
			}
			patternRows.Close()
		}

		rows, qErr := s.db.Query(
			`SELECT Id, Name, Ip, Port, State, MaxFileSize, MaxFileSysSize, CurrFileSysSize FROM Peers
			 WHERE State = ? AND NOT (Ip = ? AND Port = ?)
			 ORDER BY CurrFileSysSize ASC`,
			int(Online), excludeHost, excludePort)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()

		for rows.Next() {
			var rec PeerRecord
			var state int
			if scanErr := rows.Scan(&rec.ID, &rec.Name, &rec.Host, &rec.Port, &state, &rec.MaxFileSize, &rec.MaxFileSysSize, &rec.CurrFileSysSize); scanErr != nil {
				return scanErr
			}
			rec.State = PeerState(state)

			if rec.MaxFileSysSize > 0 && rec.CurrFileSysSize+file.Size > rec.MaxFileSysSize {
				continue
			}
			if matchesAnyPattern(patterns, file.Path) {
				continue
			}

			out = append(out, rec)
			if level > 0 && len(out) >= level {
				break
			}
		}
		return rows.Err()
	})
	return out, err
}

func matchesAnyPattern(patterns []string, filePath string) bool {
	name := path.Base(filePath)
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// HasUnreplicatedFiles reports whether (host, port) holds any file that
// no other peer holds (spec.md §8 property 7, the disconnect gate).
func (s *Store) HasUnreplicatedFiles(host string, port int) (has bool, err error) {
	err = s.withReadLock(func() error {
		row := s.db.QueryRow(
			`SELECT COUNT(*) FROM PeerFile pf
			 JOIN Peers p ON p.Id = pf.PeerId
			 WHERE p.Ip = ? AND p.Port = ?
			 AND pf.FileId NOT IN (
			   SELECT pf2.FileId FROM PeerFile pf2
			   JOIN Peers p2 ON p2.Id = pf2.PeerId
			   WHERE NOT (p2.Ip = ? AND p2.Port = ?)
			 )`, host, port, host, port)
		var count int
		if scanErr := row.Scan(&count); scanErr != nil {
			return scanErr
		}
		has = count > 0
		return nil
	})
	return has, err
}

// FileExistsLocally reports whether fileID is in this peer's
// LocalPeerFiles set.
func (s *Store) FileExistsLocally(fileID int64) (exists bool, err error) {
	err = s.withReadLock(func() error {
		var count int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM LocalPeerFiles WHERE FileId = ?`, fileID)
		if scanErr := row.Scan(&count); scanErr != nil {
			return scanErr
		}
		exists = count > 0
		return nil
	})
	return exists, err
}

// CheckChecksum reports whether the stored golden checksum for filePath
// equals checksum.
func (s *Store) CheckChecksum(filePath string, checksum []byte) (valid bool, err error) {
	rec, ok, err := s.GetFile(filePath)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("store: file %q not found", filePath)
	}
	return string(rec.GoldenChecksum) == string(checksum), nil
}

// ClearLocalPeers truncates the Peers table, used when a peer replaces
// its cached view wholesale after receiving a PEER_LIST.
func (s *Store) ClearLocalPeers() {
	s.enqueue(clearPeersCommand{})
}

type clearPeersCommand struct{}

func (clearPeersCommand) apply(s *Store) error {
	_, err := s.db.Exec(`DELETE FROM Peers`)
	return err
}
