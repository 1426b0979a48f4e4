package store

import "database/sql"

// upsertFileCommand inserts a file if its path is unseen, else updates
// it by primary key (spec.md §4.3 upsertFile).
type upsertFileCommand struct {
	model FileRecord
	reply chan<- error
}

func (c *upsertFileCommand) apply(s *Store) error {
	err := upsertFileTx(s.db, c.model)
	if c.reply != nil {
		c.reply <- err
	}
	return err
}

func upsertFileTx(db *sql.DB, model FileRecord) error {
	res, err := db.Exec(
		`UPDATE Files SET IsDirectory=?, GoldenChecksum=?, Size=?, LatestVersionNumber=?, ParentId=?
		 WHERE Path=?`,
		boolToInt(model.IsDirectory), model.GoldenChecksum, model.Size, model.LatestVersion,
		nullableParent(model), model.Path)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	_, err = db.Exec(
		`INSERT INTO Files(Path, IsDirectory, GoldenChecksum, Size, LatestVersionNumber, ParentId)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		model.Path, boolToInt(model.IsDirectory), model.GoldenChecksum, model.Size,
		model.LatestVersion, nullableParent(model))
	return err
}

// addVersionCommand appends a version history row. It runs only when a
// caller invokes AddVersion; Write and Archive do not.
type addVersionCommand struct {
	version VersionRecord
}

func (c *addVersionCommand) apply(s *Store) error {
	_, err := s.db.Exec(
		`INSERT INTO Version(FileId, VersionNumber, VersionName, FileSize, Checksum)
		 VALUES (?, ?, ?, ?, ?)`,
		c.version.FileID, c.version.VersionNumber, c.version.VersionName,
		c.version.FileSize, c.version.Checksum)
	return err
}

// upsertPeerCommand inserts or updates a Peers row; (host, port) is the
// unique key, so two back-to-back upserts with identical payload leave
// exactly one row (spec.md §8 property 4).
type upsertPeerCommand struct {
	host, name                                   string
	port                                          int
	state                                        PeerState
	maxFileSize, maxFileSysSize, currFileSysSize int64
	reply                                        chan<- error
}

func (c *upsertPeerCommand) apply(s *Store) error {
	err := upsertPeerTx(s.db, c)
	if c.reply != nil {
		c.reply <- err
	}
	return err
}

func upsertPeerTx(db *sql.DB, c *upsertPeerCommand) error {
	res, err := db.Exec(
		`UPDATE Peers SET Name=?, State=?, MaxFileSize=?, MaxFileSysSize=?, CurrFileSysSize=?
		 WHERE Ip=? AND Port=?`,
		c.name, int(c.state), c.maxFileSize, c.maxFileSysSize, c.currFileSysSize, c.host, c.port)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	_, err = db.Exec(
		`INSERT INTO Peers(Name, Ip, Port, State, MaxFileSize, MaxFileSysSize, CurrFileSysSize)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.name, c.host, c.port, int(c.state), c.maxFileSize, c.maxFileSysSize, c.currFileSysSize)
	return err
}

// updatePeerStateCommand toggles a peer's ONLINE/OFFLINE state on
// connect/disconnect.
type updatePeerStateCommand struct {
	host  string
	port  int
	state PeerState
}

func (c *updatePeerStateCommand) apply(s *Store) error {
	_, err := s.db.Exec(`UPDATE Peers SET State=? WHERE Ip=? AND Port=?`, int(c.state), c.host, c.port)
	return err
}

// addFilePeerEntryCommand upserts the PeerFile row recording that a peer
// holds a file at a given checksum (tracker only).
type addFilePeerEntryCommand struct {
	fileID, peerID int64
	checksum       []byte
}

func (c *addFilePeerEntryCommand) apply(s *Store) error {
	res, err := s.db.Exec(
		`UPDATE PeerFile SET Checksum=? WHERE FileId=? AND PeerId=?`,
		c.checksum, c.fileID, c.peerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	_, err = s.db.Exec(
		`INSERT INTO PeerFile(FileId, PeerId, Checksum, PendingUpdate) VALUES (?, ?, ?, 0)`,
		c.fileID, c.peerID, c.checksum)
	return err
}

// addLocalFileCommand marks a file id as held on disk by this peer.
type addLocalFileCommand struct {
	fileID int64
}

func (c *addLocalFileCommand) apply(s *Store) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM LocalPeerFiles WHERE FileId=?`, c.fileID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := s.db.Exec(`INSERT INTO LocalPeerFiles(FileId) VALUES (?)`, c.fileID)
	return err
}

// addExclusionCommand records a filename-pattern rule excluding a peer
// from replication targeting for matching files.
type addExclusionCommand struct {
	peerID          int64
	fileNamePattern string
}

func (c *addExclusionCommand) apply(s *Store) error {
	var err error
	if s.role == RoleTracker {
		_, err = s.db.Exec(`INSERT INTO PeerExcludedFiles(PeerId, FileNamePattern) VALUES (?, ?)`, c.peerID, c.fileNamePattern)
	} else {
		_, err = s.db.Exec(`INSERT INTO LocalPeerExcludedFiles(FileNamePattern) VALUES (?)`, c.fileNamePattern)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableParent(model FileRecord) interface{} {
	if !model.HasParent {
		return nil
	}
	return model.ParentID
}
