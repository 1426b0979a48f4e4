package store

import "fmt"

// Schema bootstrap creates missing tables on construction; failure here is
// fatal (spec.md §4.3) since without a schema nothing else can proceed.
//
// The tracker and peer variants share Files/Version/LocalPeerFiles. The
// Peers table carries capacity columns in both roles for implementation
// simplicity; a peer simply never populates them with
// anything meaningful beyond zero, matching spec.md §6's peer-side
// Peers(id, name, ip, port, state) shape in substance.
const commonTablesDDL = `
CREATE TABLE IF NOT EXISTS Files(
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	Path TEXT UNIQUE,
	IsDirectory INTEGER,
	GoldenChecksum BLOB,
	Size INTEGER,
	LatestVersionNumber INTEGER,
	ParentId INTEGER
);
CREATE TABLE IF NOT EXISTS Version(
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	FileId INTEGER,
	VersionNumber INTEGER,
	VersionName TEXT,
	FileSize INTEGER,
	Checksum BLOB
);
CREATE TABLE IF NOT EXISTS LocalPeerFiles(
	FileId INTEGER
);
CREATE TABLE IF NOT EXISTS Peers(
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	Name TEXT,
	Ip TEXT,
	Port INTEGER,
	State INTEGER,
	MaxFileSize INTEGER,
	MaxFileSysSize INTEGER,
	CurrFileSysSize INTEGER,
	UNIQUE(Ip, Port)
);
`

const trackerOnlyTablesDDL = `
CREATE TABLE IF NOT EXISTS PeerFile(
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	FileId INTEGER,
	PeerId INTEGER,
	Checksum BLOB,
	PendingUpdate INTEGER
);
CREATE TABLE IF NOT EXISTS PeerExcludedFiles(
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	PeerId INTEGER,
	FileId INTEGER,
	FileNamePattern TEXT
);
`

const peerOnlyTablesDDL = `
CREATE TABLE IF NOT EXISTS LocalPeerExcludedFiles(
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	FileId INTEGER,
	FileNamePattern TEXT
);
`

func bootstrapSchema(s *Store) error {
	if _, err := s.db.Exec(commonTablesDDL); err != nil {
		return fmt.Errorf("store: bootstrap common tables: %w", err)
	}

	extra := peerOnlyTablesDDL
	if s.role == RoleTracker {
		extra = trackerOnlyTablesDDL
	}
	if _, err := s.db.Exec(extra); err != nil {
		return fmt.Errorf("store: bootstrap %s tables: %w", s.role, err)
	}
	return nil
}
