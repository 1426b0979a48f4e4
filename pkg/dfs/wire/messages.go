// Package wire implements the length-prefixed frame and the tagged message
// set exchanged between peers and the tracker.
package wire

// MessageKind tags the payload carried inside an Envelope.
type MessageKind uint8

const (
	ConnectRequest MessageKind = iota + 1
	ConnectResponse
	DisconnectRequest
	DisconnectResponse
	PeerListRequest
	PeerList
	FileDownloadRequest
	FileDownloadDecline
	FileData
	FileChanged
	NewFileAvailable
	FileArchived
	ValidateChecksumRequest
	ValidateChecksumResponse
	DeleteRequest
	DeleteResponse
	Delete
	MoveRequest
	MoveResponse
	Move
	ListRequest
	List
	ArchiveRequest
	ArchiveResponse
)

func (k MessageKind) String() string {
	switch k {
	case ConnectRequest:
		return "CONNECT_REQUEST"
	case ConnectResponse:
		return "CONNECT_RESPONSE"
	case DisconnectRequest:
		return "DISCONNECT_REQUEST"
	case DisconnectResponse:
		return "DISCONNECT_RESPONSE"
	case PeerListRequest:
		return "PEER_LIST_REQUEST"
	case PeerList:
		return "PEER_LIST"
	case FileDownloadRequest:
		return "FILE_DOWNLOAD_REQUEST"
	case FileDownloadDecline:
		return "FILE_DOWNLOAD_DECLINE"
	case FileData:
		return "FILE_DATA"
	case FileChanged:
		return "FILE_CHANGED"
	case NewFileAvailable:
		return "NEW_FILE_AVAILABLE"
	case FileArchived:
		return "FILE_ARCHIVED"
	case ValidateChecksumRequest:
		return "VALIDATE_CHECKSUM_REQUEST"
	case ValidateChecksumResponse:
		return "VALIDATE_CHECKSUM_RESPONSE"
	case DeleteRequest:
		return "DELETE_REQUEST"
	case DeleteResponse:
		return "DELETE_RESPONSE"
	case Delete:
		return "DELETE"
	case MoveRequest:
		return "MOVE_REQUEST"
	case MoveResponse:
		return "MOVE_RESPONSE"
	case Move:
		return "MOVE"
	case ListRequest:
		return "LIST_REQUEST"
	case List:
		return "LIST"
	case ArchiveRequest:
		return "ARCHIVE_REQUEST"
	case ArchiveResponse:
		return "ARCHIVE_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// RPCHeader rides along with every message so a recipient on a different
// protocol version can reject it cleanly instead of misreading the body.
type RPCHeader struct {
	ProtocolVersion string
}

// WithRPCHeader is implemented by every message body so CheckRPCHeader can
// extract the header without a type switch per kind.
type WithRPCHeader interface {
	GetRPCHeader() RPCHeader
}

// FileModel mirrors the tracker/peer's shared view of a file's metadata.
// Data is only populated when the model is being used to carry file
// content (FILE_DATA, and the FILE_CHANGED a write sends); it is cleared
// in NEW_FILE_AVAILABLE and in the FILE_CHANGED a peer sends after a
// download to report that it now holds the file.
type FileModel struct {
	Path          string
	IsDirectory   bool
	Checksum      []byte
	Size          int64
	LatestVersion int64
	ParentID      int64
	HasParent     bool
	Data          []byte
}

// PeerAddress is the wire representation of a peer's advertised identity.
// The advertised Port always comes from the message body, never from the
// TCP source port of the connection it arrived on.
type PeerAddress struct {
	Host string
	Port int
	Name string
}

type ConnectRequestMsg struct {
	RPCHeader
	Password        string
	Port            int
	MaxFileSize     int64
	MaxFileSysSize  int64
	CurrFileSysSize int64
}

func (m ConnectRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ConnectResponseMsg struct {
	RPCHeader
	Successful bool
}

func (m ConnectResponseMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type DisconnectRequestMsg struct {
	RPCHeader
	CheckForUnreplicated bool
	Port                 int
}

func (m DisconnectRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type DisconnectResponseMsg struct {
	RPCHeader
	ShouldWait bool
}

func (m DisconnectResponseMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type PeerListRequestMsg struct {
	RPCHeader
	FilePath    string
	HasFilePath bool
}

func (m PeerListRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type PeerListMsg struct {
	RPCHeader
	Peers []PeerAddress
}

func (m PeerListMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type FileDownloadRequestMsg struct {
	RPCHeader
	FilePath string
}

func (m FileDownloadRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type FileDownloadDeclineMsg struct {
	RPCHeader
	FilePath string
}

func (m FileDownloadDeclineMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type FileDataMsg struct {
	RPCHeader
	FileModel FileModel
}

func (m FileDataMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type FileChangedMsg struct {
	RPCHeader
	FileModel   FileModel
	Port        int
	StartOffset int64
}

func (m FileChangedMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type NewFileAvailableMsg struct {
	RPCHeader
	FileModel FileModel
	Port      int
}

func (m NewFileAvailableMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type FileArchivedMsg struct {
	RPCHeader
	FilePath   string
	NewVersion int64
}

func (m FileArchivedMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ValidateChecksumRequestMsg struct {
	RPCHeader
	FilePath     string
	FileChecksum []byte
}

func (m ValidateChecksumRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ValidateChecksumResponseMsg struct {
	RPCHeader
	FilePath string
	Valid    bool
}

func (m ValidateChecksumResponseMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type DeleteRequestMsg struct {
	RPCHeader
	FilePath string
}

func (m DeleteRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type DeleteResponseMsg struct {
	RPCHeader
	FilePath  string
	CanDelete bool
	Peers     []PeerAddress
}

func (m DeleteResponseMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type DeleteMsg struct {
	RPCHeader
	FilePath string
}

func (m DeleteMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type MoveRequestMsg struct {
	RPCHeader
	SourcePath string
	DestPath   string
}

func (m MoveRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type MoveResponseMsg struct {
	RPCHeader
	SourcePath string
	DestPath   string
	Valid      bool
}

func (m MoveResponseMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type MoveMsg struct {
	RPCHeader
	SourcePath string
	DestPath   string
}

func (m MoveMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ListRequestMsg struct {
	RPCHeader
	DirPath    string
	HasDirPath bool
}

func (m ListRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ListMsg struct {
	RPCHeader
	Files []FileModel
}

func (m ListMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ArchiveRequestMsg struct {
	RPCHeader
	FilePath string
}

func (m ArchiveRequestMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }

type ArchiveResponseMsg struct {
	RPCHeader
	FilePath string
	Archived bool
}

func (m ArchiveResponseMsg) GetRPCHeader() RPCHeader { return m.RPCHeader }
